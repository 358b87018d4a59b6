package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"finanzas/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewSQLiteRepository(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRegisterAndAuthenticate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 100000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == 0 {
		t.Error("registered user should get a non-zero id")
	}

	got, err := repo.Authenticate(ctx, "ana", "pass1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID || got.Balance.Cents != 100000 {
		t.Errorf("authenticated user = %+v, want id %d with 100000 cents", got, u.ID)
	}

	if _, err := repo.Authenticate(ctx, "ana", "wrong"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("wrong password error = %v, want ErrNotFound", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 0}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := repo.Register(ctx, "ana", "other", core.Money{Cents: 0}); !errors.Is(err, core.ErrDuplicateUser) {
		t.Errorf("duplicate error = %v, want ErrDuplicateUser", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		cents    int64
	}{
		{"empty username", "", "pass1", 0},
		{"leading space", " bob", "pass1", 0},
		{"trailing space", "bob ", "pass1", 0},
		{"digit in username", "bob1", "pass1", 0},
		{"short password", "bob", "abc", 0},
		{"negative balance", "bob", "pass1", -100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Register(ctx, tt.username, tt.password, core.Money{Cents: tt.cents})
			if !errors.Is(err, core.ErrInvalidInput) {
				t.Errorf("Register error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestFindByUsernameAndID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 500})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	byName, err := repo.FindByUsername(ctx, "ana")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if byName == nil || byName.ID != u.ID {
		t.Errorf("FindByUsername = %+v, want id %d", byName, u.ID)
	}

	byID, err := repo.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if byID == nil || byID.Username != "ana" {
		t.Errorf("FindByID = %+v, want username ana", byID)
	}

	missing, err := repo.FindByUsername(ctx, "nobody")
	if err != nil {
		t.Fatalf("FindByUsername missing: %v", err)
	}
	if missing != nil {
		t.Errorf("missing user = %+v, want nil", missing)
	}
}

func TestApplyTransactionAtomicity(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 100000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, err := repo.ApplyTransaction(ctx, u.ID, core.Income, core.Money{Cents: 20000})
	if err != nil {
		t.Fatalf("ApplyTransaction income: %v", err)
	}
	if res.NewBalance.Cents != 120000 {
		t.Errorf("balance after income = %d, want 120000", res.NewBalance.Cents)
	}

	// A rejected withdrawal must leave both tables untouched.
	_, err = repo.ApplyTransaction(ctx, u.ID, core.Withdrawal, core.Money{Cents: 150000})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("overdraw error = %v, want ErrInsufficientFunds", err)
	}

	balance, err := repo.GetBalance(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.Cents != 120000 {
		t.Errorf("balance after failed withdrawal = %d, want 120000", balance.Cents)
	}

	txs, err := repo.ListTransactions(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(txs))
	}
	if txs[0].Status != core.StatusCompleted {
		t.Errorf("status = %q, want %q", txs[0].Status, core.StatusCompleted)
	}
	if txs[0].Date.IsZero() {
		t.Error("transaction date should round-trip through storage")
	}
}

func TestApplyTransactionErrors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 1000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := repo.ApplyTransaction(ctx, u.ID, core.Income, core.Money{Cents: 0}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero amount error = %v, want ErrInvalidAmount", err)
	}
	if _, err := repo.ApplyTransaction(ctx, u.ID, core.Withdrawal, core.Money{Cents: -5}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("negative amount error = %v, want ErrInvalidAmount", err)
	}
	if _, err := repo.ApplyTransaction(ctx, 999, core.Income, core.Money{Cents: 100}); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestGetBalanceUnknownUser(t *testing.T) {
	repo := newTestRepo(t)

	balance, err := repo.GetBalance(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.Cents != 0 {
		t.Errorf("balance for unknown user = %d, want 0", balance.Cents)
	}
}

func TestListTransactionsInsertionOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 100000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	amounts := []int64{100, 250, 75}
	for _, cents := range amounts {
		if _, err := repo.ApplyTransaction(ctx, u.ID, core.Income, core.Money{Cents: cents}); err != nil {
			t.Fatalf("ApplyTransaction: %v", err)
		}
	}

	txs, err := repo.ListTransactions(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != len(amounts) {
		t.Fatalf("transaction count = %d, want %d", len(txs), len(amounts))
	}
	for i, tx := range txs {
		if tx.Amount.Cents != amounts[i] {
			t.Errorf("tx[%d].Amount = %d, want %d (insertion order)", i, tx.Amount.Cents, amounts[i])
		}
	}
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 1000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	insufficient := 0
	var unexpected []error

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ApplyTransaction(ctx, u.ID, core.Withdrawal, core.Money{Cents: 100})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, core.ErrInsufficientFunds):
				insufficient++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	// Concurrent appliers queue; the only allowed failure is running out
	// of funds.
	if len(unexpected) > 0 {
		t.Fatalf("unexpected errors under concurrency: %v", unexpected)
	}
	if succeeded != 10 {
		t.Errorf("succeeded withdrawals = %d, want exactly 10", succeeded)
	}
	if succeeded+insufficient != workers {
		t.Errorf("accounted outcomes = %d, want %d", succeeded+insufficient, workers)
	}

	balance, err := repo.GetBalance(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.Cents != 0 {
		t.Errorf("final balance = %d, want 0", balance.Cents)
	}

	txs, err := repo.ListTransactions(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != succeeded {
		t.Errorf("ledger entries = %d, want %d (one per committed withdrawal)", len(txs), succeeded)
	}
}

func TestListTransactionsRejectsCorruptDate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 1000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := repo.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, transaction_type, amount_cents, date, status) VALUES (?, ?, ?, ?, ?)`,
		u.ID, "income", 100, "not-a-date", core.StatusCompleted); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}

	if _, err := repo.ListTransactions(ctx, u.ID); !errors.Is(err, core.ErrPersistence) {
		t.Errorf("ListTransactions error = %v, want ErrPersistence", err)
	}
}

func TestSyncStatusLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "ana", "pass1", core.Money{Cents: 100000})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	res1, err := repo.ApplyTransaction(ctx, u.ID, core.Income, core.Money{Cents: 100})
	if err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}
	res2, err := repo.ApplyTransaction(ctx, u.ID, core.Withdrawal, core.Money{Cents: 50})
	if err != nil {
		t.Fatalf("ApplyTransaction: %v", err)
	}

	pending, err := repo.GetPendingSyncTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncTransactions: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].ID != res1.Transaction.ID {
		t.Errorf("pending[0].ID = %d, want oldest %d", pending[0].ID, res1.Transaction.ID)
	}

	if err := repo.MarkSynced(ctx, res1.Transaction.ID); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	if err := repo.MarkSyncError(ctx, res2.Transaction.ID); err != nil {
		t.Fatalf("MarkSyncError: %v", err)
	}

	pending, err = repo.GetPendingSyncTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncTransactions: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after marking = %d, want 0", len(pending))
	}

	got, err := repo.GetTransaction(ctx, res1.Transaction.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.Amount.Cents != 100 {
		t.Errorf("GetTransaction amount = %d, want 100", got.Amount.Cents)
	}

	if _, err := repo.GetTransaction(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing transaction error = %v, want ErrNotFound", err)
	}
}
