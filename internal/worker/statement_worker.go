package worker

import (
	"context"
	"fmt"
	"log/slog"

	"finanzas/internal/amqp"
	"finanzas/internal/core"
	"finanzas/internal/statement"
	"finanzas/internal/storage"
)

// StatementWorker exports committed ledger entries to the external
// statement. It consumes transaction-recorded events and also scans for
// pending entries periodically in case messages are lost.
type StatementWorker struct {
	storage   *storage.SQLiteRepository
	appender  statement.Appender
	batchSize int
}

func NewStatementWorker(storage *storage.SQLiteRepository, appender statement.Appender, batchSize int) *StatementWorker {
	return &StatementWorker{
		storage:   storage,
		appender:  appender,
		batchSize: batchSize,
	}
}

// HandleRecordedMessage processes a single transaction-recorded event.
func (w *StatementWorker) HandleRecordedMessage(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	slog.InfoContext(ctx, "Processing recorded message",
		"id", msg.ID,
		"user_id", msg.UserID)

	tx, err := w.storage.GetTransaction(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if err := w.exportTransaction(ctx, tx.ID, tx); err != nil {
		return fmt.Errorf("export transaction: %w", err)
	}

	return nil
}

// ProcessPendingTransactions exports any ledger entries that have not been
// synced yet. This is a backup mechanism in case AMQP messages are lost.
func (w *StatementWorker) ProcessPendingTransactions(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	for _, tx := range pending {
		if err := w.exportTransaction(ctx, tx.ID, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "id", tx.ID, "error", err)
			continue
		}
	}

	return nil
}

// StartupSyncCheck exports entries left pending by missed messages or
// worker downtime. Runs with a larger batch than the periodic scan.
func (w *StatementWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncTransactions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending transactions for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending transactions found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending transactions on startup, processing...",
		"count", len(pending))

	successCount := 0
	errorCount := 0

	for _, tx := range pending {
		if err := w.exportTransaction(ctx, tx.ID, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction during startup",
				"id", tx.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", successCount,
		"errors", errorCount)

	return nil
}

func (w *StatementWorker) exportTransaction(ctx context.Context, id int64, tx core.Transaction) error {
	ref, err := w.appender.AppendTransaction(ctx, tx)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", markErr)
		}
		return fmt.Errorf("append to statement: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "error", err)
		// Don't return an error here - the export actually worked
	}

	slog.InfoContext(ctx, "Exported transaction to statement",
		"id", id,
		"statement_ref", ref,
		"user_id", tx.UserID,
		"amount_cents", tx.Amount.Cents)

	return nil
}
