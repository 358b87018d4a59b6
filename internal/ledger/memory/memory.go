package memory

import (
	"context"
	"sync"
	"time"

	"finanzas/internal/core"
	"finanzas/internal/ledger"
)

// Store is an in-memory ledger implementing the same contract as the SQLite
// backend. It backs tests and the "memory" data backend.
type Store struct {
	mu         sync.Mutex
	users      []core.User
	txs        []core.Transaction
	nextUserID int64
	nextTxID   int64
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{nextUserID: 1, nextTxID: 1}
}

func (s *Store) Register(_ context.Context, username, password string, initialBalance core.Money) (core.User, error) {
	if err := core.ValidateUsername(username); err != nil {
		return core.User{}, err
	}
	if err := core.ValidatePassword(password); err != nil {
		return core.User{}, err
	}
	if err := core.ValidateInitialBalance(initialBalance); err != nil {
		return core.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return core.User{}, core.ErrDuplicateUser
		}
	}
	u := core.User{
		ID:       s.nextUserID,
		Username: username,
		Password: password,
		Balance:  initialBalance,
	}
	s.nextUserID++
	s.users = append(s.users, u)
	return u, nil
}

func (s *Store) Authenticate(_ context.Context, username, password string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username && u.Password == password {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) FindByUsername(_ context.Context, username string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) FindByID(_ context.Context, id int64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexByID(id); i >= 0 {
		cp := s.users[i]
		return &cp, nil
	}
	return nil, nil
}

// GetBalance returns zero for an unknown user, matching the lenient contract.
func (s *Store) GetBalance(_ context.Context, userID int64) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexByID(userID); i >= 0 {
		return s.users[i].Balance, nil
	}
	return core.Money{}, nil
}

// ApplyTransaction holds the store lock across the sufficiency check and
// both writes, so concurrent withdrawals on one user cannot overdraw.
func (s *Store) ApplyTransaction(_ context.Context, userID int64, t core.TransactionType, amount core.Money) (ledger.ApplyResult, error) {
	if err := amount.Validate(); err != nil {
		return ledger.ApplyResult{}, core.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexByID(userID)
	if i < 0 {
		return ledger.ApplyResult{}, core.ErrUserNotFound
	}

	balance := s.users[i].Balance
	if t == core.Withdrawal && balance.LessThan(amount) {
		return ledger.ApplyResult{}, core.ErrInsufficientFunds
	}

	newBalance := balance.Add(amount)
	if t == core.Withdrawal {
		newBalance = balance.Sub(amount)
	}

	tx := core.Transaction{
		ID:     s.nextTxID,
		UserID: userID,
		Type:   t,
		Amount: amount,
		Date:   time.Now(),
		Status: core.StatusCompleted,
	}
	s.nextTxID++

	s.users[i].Balance = newBalance
	s.txs = append(s.txs, tx)

	return ledger.ApplyResult{NewBalance: newBalance, Transaction: tx}, nil
}

func (s *Store) ListTransactions(_ context.Context, userID int64) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *Store) indexByID(id int64) int {
	for i, u := range s.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
