package usecase

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/auth"
	"github.com/example/neuroscan/internal/domain"
	"github.com/example/neuroscan/internal/logging"
	"github.com/example/neuroscan/internal/repository"
)

// AccountUseCase manages user registration, approval and feedback.
type AccountUseCase struct {
	store  repository.Store
	logger *zap.Logger
}

// StatsSummary aggregates account and feedback figures for the admin dashboard.
type StatsSummary struct {
	Users         int64   `json:"user_count"`
	ApprovedUsers int64   `json:"approved_count"`
	PendingUsers  int64   `json:"pending_count"`
	ApprovalRate  float64 `json:"approval_rate"`
	Feedback      int64   `json:"feedback_count"`
	AverageRating float64 `json:"average_rating"`
}

var _ auth.UserResolver = (*AccountUseCase)(nil)

func NewAccountUseCase(store repository.Store, logger *zap.Logger) *AccountUseCase {
	return &AccountUseCase{store: store, logger: logger.Named("account_usecase")}
}

// Register creates an unapproved account.
func (uc *AccountUseCase) Register(ctx context.Context, name, email, password string) (*repository.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, domain.ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidEmail
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &repository.User{Name: name, Email: email, PasswordHash: hash}
	err = inTx(ctx, uc.store, uc.logger, "usecase.register", func(tx repository.Tx) error {
		if _, err := tx.FindUserByEmail(ctx, email); err == nil {
			return domain.ErrDuplicateEmail
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicateKey) {
				return domain.ErrDuplicateEmail
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.WithOperation(uc.logger, "usecase.register", logging.RequestIDFrom(ctx)).
		Info("user registered", zap.Uint("user_id", user.ID))
	return user, nil
}

// SetApproval approves or rejects a user. Repeating the same decision is
// harmless.
func (uc *AccountUseCase) SetApproval(ctx context.Context, userID uint, approve bool) (*repository.User, error) {
	var user *repository.User
	err := inTx(ctx, uc.store, uc.logger, "usecase.set_approval", func(tx repository.Tx) error {
		found, err := tx.GetUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		found.IsApproved = approve
		if err := tx.SaveUser(ctx, found); err != nil {
			return err
		}
		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.WithOperation(uc.logger, "usecase.set_approval", logging.RequestIDFrom(ctx)).
		Info("user approval changed", zap.Uint("user_id", userID), zap.Bool("approved", approve))
	return user, nil
}

func (uc *AccountUseCase) ListAccounts(ctx context.Context) ([]repository.User, error) {
	return uc.store.ListUsers(ctx)
}

func (uc *AccountUseCase) ListFeedback(ctx context.Context) ([]repository.Feedback, error) {
	return uc.store.ListFeedback(ctx)
}

// SubmitFeedback stores a rating from 1 to 5. userID is nil for anonymous
// visitors.
func (uc *AccountUseCase) SubmitFeedback(ctx context.Context, userID *uint, rating int, comment string) (*repository.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, domain.ErrInvalidRating
	}
	feedback := &repository.Feedback{UserID: userID, Rating: rating, Comment: strings.TrimSpace(comment)}
	err := inTx(ctx, uc.store, uc.logger, "usecase.submit_feedback", func(tx repository.Tx) error {
		return tx.CreateFeedback(ctx, feedback)
	})
	if err != nil {
		return nil, err
	}
	return feedback, nil
}

// Stats summarizes the account base.
func (uc *AccountUseCase) Stats(ctx context.Context) (*StatsSummary, error) {
	stats, err := uc.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	summary := &StatsSummary{
		Users:         stats.Users,
		ApprovedUsers: stats.ApprovedUsers,
		PendingUsers:  stats.Users - stats.ApprovedUsers,
		Feedback:      stats.Feedback,
		AverageRating: stats.AverageRating,
	}
	if stats.Users > 0 {
		summary.ApprovalRate = float64(stats.ApprovedUsers) / float64(stats.Users)
	}
	return summary, nil
}

// EnsureAdmin creates the admin if missing. An existing admin keeps its
// password unless reset is set. The boolean reports whether anything changed.
func (uc *AccountUseCase) EnsureAdmin(ctx context.Context, username, password string, reset bool) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, domain.ErrMissingFields
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}

	changed := false
	err = inTx(ctx, uc.store, uc.logger, "usecase.ensure_admin", func(tx repository.Tx) error {
		admin, err := tx.FindAdminByUsername(ctx, username)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			changed = true
			return tx.CreateAdmin(ctx, &repository.Admin{Username: username, PasswordHash: hash})
		case err != nil:
			return err
		case reset:
			changed = true
			admin.PasswordHash = hash
			return tx.SaveAdmin(ctx, admin)
		default:
			return nil
		}
	})
	return changed, err
}

// ResolveUser maps a session's user id to the current principal, so approval
// changes take effect on the next request.
func (uc *AccountUseCase) ResolveUser(ctx context.Context, userID uint) (domain.Principal, error) {
	user, err := uc.store.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Principal{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Principal{}, err
	}
	return domain.UserPrincipal(user.ID, user.Email, user.IsApproved), nil
}

// GetUser returns the account behind id.
func (uc *AccountUseCase) GetUser(ctx context.Context, id uint) (*repository.User, error) {
	user, err := uc.store.GetUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	return user, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
