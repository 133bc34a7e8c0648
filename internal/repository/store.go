package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a unique constraint is violated.
	ErrDuplicateKey = errors.New("duplicate key")
)

// Queries is the persistence surface shared by the store and transactions.
type Queries interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id uint) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, user *User) error
	SaveUser(ctx context.Context, user *User) error

	ListFeedback(ctx context.Context) ([]Feedback, error)
	CreateFeedback(ctx context.Context, feedback *Feedback) error

	FindAdminByUsername(ctx context.Context, username string) (*Admin, error)
	CreateAdmin(ctx context.Context, admin *Admin) error
	SaveAdmin(ctx context.Context, admin *Admin) error

	Stats(ctx context.Context) (Stats, error)
}

// Store is the root persistence handle.
type Store interface {
	Queries
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a unit of work. Exactly one of Commit or Rollback must be called.
type Tx interface {
	Queries
	Commit() error
	Rollback() error
}
