package ledger

import (
	"context"

	"finanzas/internal/core"
)

// Ports for the account and transaction stores. The web layer and the
// transaction service depend on these, never on a concrete backend.
type (
	AccountRegistrar interface {
		// Register validates username, password, and initial balance (in that
		// order, first failure wins) and creates the account. Fails with
		// core.ErrDuplicateUser when the username is taken (case-sensitive).
		Register(ctx context.Context, username, password string, initialBalance core.Money) (core.User, error)
	}

	Authenticator interface {
		// Authenticate returns the user matching both fields exactly, or
		// core.ErrNotFound. Comparison is plaintext by scope decision.
		Authenticate(ctx context.Context, username, password string) (core.User, error)
	}

	AccountReader interface {
		// FindByUsername returns nil without error when no such user exists.
		FindByUsername(ctx context.Context, username string) (*core.User, error)
		// FindByID returns nil without error when no such user exists.
		FindByID(ctx context.Context, id int64) (*core.User, error)
		// GetBalance returns zero for an unknown user rather than an error.
		GetBalance(ctx context.Context, userID int64) (core.Money, error)
	}

	// TransactionApplier performs the atomic dual-write: the balance update
	// and the ledger insert commit together or not at all. The sufficiency
	// check for withdrawals happens inside the same critical section, so
	// concurrent transactions on one user are serialized.
	TransactionApplier interface {
		ApplyTransaction(ctx context.Context, userID int64, t core.TransactionType, amount core.Money) (ApplyResult, error)
	}

	TransactionLister interface {
		// ListTransactions returns the user's transactions in insertion
		// order; empty (not an error) for an unknown user.
		ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error)
	}

	// Store is the full ledger contract a backend implements.
	Store interface {
		AccountRegistrar
		Authenticator
		AccountReader
		TransactionApplier
		TransactionLister
	}
)

// ApplyResult carries what the caller needs to render a successful
// transaction: the committed balance and the created ledger entry.
type ApplyResult struct {
	NewBalance  core.Money
	Transaction core.Transaction
}
