package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/logging"
	"github.com/example/neuroscan/internal/repository"
)

// inTx runs fn inside a transaction. Any error from fn or Commit is returned
// after an explicit Rollback.
func inTx(ctx context.Context, store repository.Store, logger *zap.Logger, operation string, fn func(tx repository.Tx) error) error {
	requestID := logging.RequestIDFrom(ctx)
	tx, err := store.Begin(ctx)
	if err != nil {
		return logging.NewOperationError(operation, requestID, err)
	}

	if err := fn(tx); err != nil {
		rollback(tx, logger, operation, requestID)
		return err
	}
	if err := tx.Commit(); err != nil {
		rollback(tx, logger, operation, requestID)
		return logging.NewOperationError(operation, requestID, err)
	}
	return nil
}

func rollback(tx repository.Tx, logger *zap.Logger, operation, requestID string) {
	if err := tx.Rollback(); err != nil {
		logging.WithOperation(logger, operation, requestID).Warn("rollback failed", zap.Error(err))
	}
}
