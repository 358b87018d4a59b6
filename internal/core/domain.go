package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	Income     TransactionType = "income"
	Withdrawal TransactionType = "withdrawal"
)

// StatusCompleted is the only status the ledger ever records: a transaction
// row exists exactly when its balance update committed.
const StatusCompleted = "completed"

// TimeFormat is the storage format for transaction dates (local clock).
const TimeFormat = "2006-01-02 15:04:05"

type (
	TransactionType string

	Money struct {
		Cents int64
	}

	User struct {
		ID       int64
		Username string
		Password string
		Balance  Money
	}

	Transaction struct {
		ID     int64
		UserID int64
		Type   TransactionType
		Amount Money
		Date   time.Time
		Status string
	}
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicateUser     = errors.New("user already exists")
	ErrNotFound          = errors.New("not found")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUserNotFound      = errors.New("user not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPersistence       = errors.New("persistence failure")
)

// ValidateUsername checks the registration username rules: non-empty, no
// leading or trailing whitespace, letters only.
func ValidateUsername(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if strings.TrimSpace(s) != s {
		return fmt.Errorf("%w: username must not start or end with whitespace", ErrInvalidInput)
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return fmt.Errorf("%w: username must contain only letters", ErrInvalidInput)
		}
	}
	return nil
}

// ValidatePassword requires at least 4 characters. Passwords are otherwise
// opaque; they are stored and compared as plaintext by scope decision.
func ValidatePassword(s string) error {
	if len(s) < 4 {
		return fmt.Errorf("%w: password must be at least 4 characters", ErrInvalidInput)
	}
	return nil
}

// ValidateInitialBalance rejects a negative starting balance. Zero is fine.
func ValidateInitialBalance(m Money) error {
	if m.Cents < 0 {
		return fmt.Errorf("%w: initial balance cannot be negative", ErrInvalidInput)
	}
	return nil
}

func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Withdrawal:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer
func (t TransactionType) String() string {
	return string(t)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) LessThan(o Money) bool {
	return m.Cents < o.Cents
}
