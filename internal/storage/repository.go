package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/ledger"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the persistent ledger backend. Passwords are stored
// and compared as plaintext; hashing is explicitly out of scope.
type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection serializes all transactions; ApplyTransaction's
	// check-and-apply depends on writers queueing instead of hitting
	// SQLITE_BUSY on the read-to-write lock upgrade.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Register implements ledger.AccountRegistrar. Validation order is
// username, password, balance; first failure wins.
func (r *SQLiteRepository) Register(ctx context.Context, username, password string, initialBalance core.Money) (core.User, error) {
	if err := core.ValidateUsername(username); err != nil {
		return core.User{}, err
	}
	if err := core.ValidatePassword(password); err != nil {
		return core.User{}, err
	}
	if err := core.ValidateInitialBalance(initialBalance); err != nil {
		return core.User{}, err
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password, balance_cents) VALUES (?, ?, ?)`,
		username, password, initialBalance.Cents)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, core.ErrDuplicateUser
		}
		return core.User{}, fmt.Errorf("%w: insert user: %v", core.ErrPersistence, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("%w: user id: %v", core.ErrPersistence, err)
	}

	slog.InfoContext(ctx, "User registered",
		"id", id,
		"username", username,
		"balance_cents", initialBalance.Cents)

	return core.User{ID: id, Username: username, Password: password, Balance: initialBalance}, nil
}

// Authenticate implements ledger.Authenticator with an exact match on both
// columns.
func (r *SQLiteRepository) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	u, err := r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password, balance_cents FROM users WHERE username = ? AND password = ?`,
		username, password))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("%w: query user: %v", core.ErrPersistence, err)
	}
	return u, nil
}

func (r *SQLiteRepository) FindByUsername(ctx context.Context, username string) (*core.User, error) {
	u, err := r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password, balance_cents FROM users WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query user: %v", core.ErrPersistence, err)
	}
	return &u, nil
}

func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*core.User, error) {
	u, err := r.scanUser(r.db.QueryRowContext(ctx,
		`SELECT id, username, password, balance_cents FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query user: %v", core.ErrPersistence, err)
	}
	return &u, nil
}

// GetBalance returns zero for an unknown user rather than an error.
func (r *SQLiteRepository) GetBalance(ctx context.Context, userID int64) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		`SELECT balance_cents FROM users WHERE id = ?`, userID).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: query balance: %v", core.ErrPersistence, err)
	}
	return core.Money{Cents: cents}, nil
}

// ApplyTransaction runs the sufficiency check, the balance update, and the
// ledger insert inside one database transaction. The repository's single
// connection serializes concurrent appliers, so the check-and-apply is
// atomic with respect to other transactions on the same user. Both writes
// commit together or neither is visible.
func (r *SQLiteRepository) ApplyTransaction(ctx context.Context, userID int64, t core.TransactionType, amount core.Money) (ledger.ApplyResult, error) {
	if err := amount.Validate(); err != nil {
		return ledger.ApplyResult{}, core.ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.ApplyResult{}, fmt.Errorf("%w: begin: %v", core.ErrPersistence, err)
	}
	defer tx.Rollback()

	var balanceCents int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance_cents FROM users WHERE id = ?`, userID).Scan(&balanceCents)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ApplyResult{}, core.ErrUserNotFound
	}
	if err != nil {
		return ledger.ApplyResult{}, fmt.Errorf("%w: query balance: %v", core.ErrPersistence, err)
	}

	balance := core.Money{Cents: balanceCents}
	if t == core.Withdrawal && balance.LessThan(amount) {
		return ledger.ApplyResult{}, core.ErrInsufficientFunds
	}

	newBalance := balance.Add(amount)
	if t == core.Withdrawal {
		newBalance = balance.Sub(amount)
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET balance_cents = ? WHERE id = ?`,
		newBalance.Cents, userID); err != nil {
		return ledger.ApplyResult{}, fmt.Errorf("%w: update balance: %v", core.ErrPersistence, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, transaction_type, amount_cents, date, status) VALUES (?, ?, ?, ?, ?)`,
		userID, string(t), amount.Cents, now.Format(core.TimeFormat), core.StatusCompleted)
	if err != nil {
		return ledger.ApplyResult{}, fmt.Errorf("%w: insert transaction: %v", core.ErrPersistence, err)
	}

	txID, err := res.LastInsertId()
	if err != nil {
		return ledger.ApplyResult{}, fmt.Errorf("%w: transaction id: %v", core.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return ledger.ApplyResult{}, fmt.Errorf("%w: commit: %v", core.ErrPersistence, err)
	}

	slog.InfoContext(ctx, "Transaction applied",
		"id", txID,
		"user_id", userID,
		"type", t.String(),
		"amount_cents", amount.Cents,
		"new_balance_cents", newBalance.Cents)

	return ledger.ApplyResult{
		NewBalance: newBalance,
		Transaction: core.Transaction{
			ID:     txID,
			UserID: userID,
			Type:   t,
			Amount: amount,
			Date:   now,
			Status: core.StatusCompleted,
		},
	}, nil
}

// ListTransactions returns the user's ledger entries in insertion order.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, transaction_type, amount_cents, date, status FROM transactions WHERE user_id = ? ORDER BY id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%w: query transactions: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %v", core.ErrPersistence, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transactions: %v", core.ErrPersistence, err)
	}
	return out, nil
}

// GetTransaction retrieves a single ledger entry by ID for the sync worker.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, transaction_type, amount_cents, date, status FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: query transaction: %v", core.ErrPersistence, err)
	}
	return tx, nil
}

// GetPendingSyncTransactions returns ledger entries not yet exported to the
// statement sheet, oldest first.
func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, transaction_type, amount_cents, date, status FROM transactions WHERE sync_status = 'pending' ORDER BY id LIMIT ?`,
		int64(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: query pending transactions: %v", core.ErrPersistence, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan transaction: %v", core.ErrPersistence, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transactions: %v", core.ErrPersistence, err)
	}
	return out, nil
}

// MarkSynced marks a ledger entry as exported to the statement sheet.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'synced' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: mark synced: %v", core.ErrPersistence, err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a ledger entry as having failed statement export.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = 'error' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: mark sync error: %v", core.ErrPersistence, err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scanUser(row rowScanner) (core.User, error) {
	var u core.User
	var cents int64
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &cents); err != nil {
		return core.User{}, err
	}
	u.Balance = core.Money{Cents: cents}
	return u, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var tx core.Transaction
	var typ, date string
	var cents int64
	if err := row.Scan(&tx.ID, &tx.UserID, &typ, &cents, &date, &tx.Status); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)
	tx.Amount = core.Money{Cents: cents}
	parsed, err := time.ParseInLocation(core.TimeFormat, date, time.Local)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	tx.Date = parsed
	return tx, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
