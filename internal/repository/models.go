package repository

import "time"

// User is a registered end user.
type User struct {
	ID           uint      `gorm:"primaryKey"`
	Name         string    `gorm:"column:name;size:100;not null"`
	Email        string    `gorm:"column:email;size:120;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password;size:255;not null"`
	IsApproved   bool      `gorm:"column:is_approved;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}

// Admin is an operator allowed to use the admin API.
type Admin struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"column:username;size:80;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password;size:255;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (Admin) TableName() string {
	return "admins"
}

// Feedback is a rating left by a visitor. UserID is nil for anonymous
// submissions.
type Feedback struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    *uint     `gorm:"column:user_id;index"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL"`
	Rating    int       `gorm:"column:rating;not null"`
	Comment   string    `gorm:"column:comment;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Feedback) TableName() string {
	return "feedback"
}

// Stats aggregates account and feedback counts.
type Stats struct {
	Users         int64
	ApprovedUsers int64
	Feedback      int64
	AverageRating float64
}
