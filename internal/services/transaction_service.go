package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/ledger"
)

// TransactionService orchestrates transaction application: input checks,
// the atomic dual-write delegated to the store, and the post-commit event.
type TransactionService struct {
	store      ledger.Store
	amqpClient *amqp.Client
}

func NewTransactionService(store ledger.Store, amqpClient *amqp.Client) *TransactionService {
	return &TransactionService{
		store:      store,
		amqpClient: amqpClient,
	}
}

// Apply records an income or withdrawal against the user's balance. The
// balance update and the ledger insert commit together inside the store;
// any store-layer failure surfaces as core.ErrPersistence with prior state
// unchanged. The recorded event is published best-effort: the transaction
// already committed, so a broker failure never fails the request.
func (s *TransactionService) Apply(ctx context.Context, userID int64, t core.TransactionType, amount core.Money) (ledger.ApplyResult, error) {
	if !t.IsValid() {
		return ledger.ApplyResult{}, fmt.Errorf("%w: unknown transaction type %q", core.ErrInvalidInput, t)
	}
	if err := amount.Validate(); err != nil {
		return ledger.ApplyResult{}, core.ErrInvalidAmount
	}

	res, err := s.store.ApplyTransaction(ctx, userID, t, amount)
	if err != nil {
		return ledger.ApplyResult{}, err
	}

	if err := s.publishRecorded(ctx, res.Transaction.ID, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction recorded message",
			"id", res.Transaction.ID, "user_id", userID, "error", err)
	}

	return res, nil
}

func (s *TransactionService) publishRecorded(ctx context.Context, id, userID int64) error {
	if s.amqpClient == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping recorded message")
		return nil
	}
	return s.amqpClient.PublishTransactionRecorded(ctx, id, userID)
}

// Close releases the store (when it owns resources) and the AMQP connection.
func (s *TransactionService) Close() error {
	var errs []error

	if closer, ok := s.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %v", errs)
	}

	return nil
}
