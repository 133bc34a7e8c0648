package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/neuroscan/internal/logging"
)

// GormStore implements Store on gorm. Reads outside a transaction are
// retried on transient errors.
type GormStore struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a new store. The *gorm.DB should be opened with
// TranslateError enabled so unique violations map to ErrDuplicateKey.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	return &GormStore{
		db:             db,
		logger:         logger.Named("repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     500 * time.Millisecond,
	}
}

// AutoMigrate ensures the schema is available.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&User{}, &Admin{}, &Feedback{})
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Begin(ctx context.Context) (Tx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, logging.NewOperationError("repository.begin", logging.RequestIDFrom(ctx), tx.Error)
	}
	return &gormTx{GormStore: &GormStore{db: tx, logger: s.logger, retryAttempts: 1}}, nil
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.read(ctx, "repository.find_user_by_email", func(db *gorm.DB) error {
		return db.Where("email = ?", email).First(&user).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*User, error) {
	var user User
	err := s.read(ctx, "repository.get_user", func(db *gorm.DB) error {
		return db.First(&user, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := s.read(ctx, "repository.list_users", func(db *gorm.DB) error {
		return db.Order("id").Find(&users).Error
	})
	return users, err
}

func (s *GormStore) CreateUser(ctx context.Context, user *User) error {
	return s.write(ctx, "repository.create_user", func(db *gorm.DB) error {
		return db.Create(user).Error
	})
}

func (s *GormStore) SaveUser(ctx context.Context, user *User) error {
	return s.write(ctx, "repository.save_user", func(db *gorm.DB) error {
		return db.Save(user).Error
	})
}

func (s *GormStore) ListFeedback(ctx context.Context) ([]Feedback, error) {
	var feedback []Feedback
	err := s.read(ctx, "repository.list_feedback", func(db *gorm.DB) error {
		return db.Preload("User").Order("id").Find(&feedback).Error
	})
	return feedback, err
}

func (s *GormStore) CreateFeedback(ctx context.Context, feedback *Feedback) error {
	return s.write(ctx, "repository.create_feedback", func(db *gorm.DB) error {
		return db.Omit("User").Create(feedback).Error
	})
}

func (s *GormStore) FindAdminByUsername(ctx context.Context, username string) (*Admin, error) {
	var admin Admin
	err := s.read(ctx, "repository.find_admin", func(db *gorm.DB) error {
		return db.Where("username = ?", username).First(&admin).Error
	})
	if err != nil {
		return nil, err
	}
	return &admin, nil
}

func (s *GormStore) CreateAdmin(ctx context.Context, admin *Admin) error {
	return s.write(ctx, "repository.create_admin", func(db *gorm.DB) error {
		return db.Create(admin).Error
	})
}

func (s *GormStore) SaveAdmin(ctx context.Context, admin *Admin) error {
	return s.write(ctx, "repository.save_admin", func(db *gorm.DB) error {
		return db.Save(admin).Error
	})
}

func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.read(ctx, "repository.stats", func(db *gorm.DB) error {
		if err := db.Model(&User{}).Count(&stats.Users).Error; err != nil {
			return err
		}
		if err := db.Model(&User{}).Where("is_approved = ?", true).Count(&stats.ApprovedUsers).Error; err != nil {
			return err
		}
		if err := db.Model(&Feedback{}).Count(&stats.Feedback).Error; err != nil {
			return err
		}
		return db.Model(&Feedback{}).Select("COALESCE(AVG(rating), 0)").Scan(&stats.AverageRating).Error
	})
	return stats, err
}

func (s *GormStore) read(ctx context.Context, operation string, fn func(db *gorm.DB) error) error {
	requestID := logging.RequestIDFrom(ctx)
	return s.executeWithRetry(ctx, operation, requestID, func() error {
		return translate(fn(s.db.WithContext(ctx)))
	})
}

// write runs once; a failed statement inside a transaction cannot be retried.
func (s *GormStore) write(ctx context.Context, operation string, fn func(db *gorm.DB) error) error {
	err := translate(fn(s.db.WithContext(ctx)))
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		logging.WithOperation(s.logger, operation, logging.RequestIDFrom(ctx)).Error("write failed", zap.Error(err))
	}
	return logging.NewOperationError(operation, logging.RequestIDFrom(ctx), err)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	default:
		return err
	}
}

type gormTx struct {
	*GormStore
}

func (t *gormTx) Begin(context.Context) (Tx, error) {
	return nil, errors.New("nested transactions are not supported")
}

func (t *gormTx) Commit() error {
	return t.db.Commit().Error
}

func (t *gormTx) Rollback() error {
	return t.db.Rollback().Error
}
