package services

import (
	"context"
	"errors"
	"testing"

	"finanzas/internal/core"
	"finanzas/internal/ledger/memory"
)

func newServiceWithUser(t *testing.T, balanceCents int64) (*TransactionService, int64) {
	t.Helper()
	store := memory.New()
	u, err := store.Register(context.Background(), "ana", "pass1", core.Money{Cents: balanceCents})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return NewTransactionService(store, nil), u.ID
}

func TestApplyIncome(t *testing.T) {
	svc, userID := newServiceWithUser(t, 100000)

	res, err := svc.Apply(context.Background(), userID, core.Income, core.Money{Cents: 20000})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.NewBalance.Cents != 120000 {
		t.Errorf("new balance = %d, want 120000", res.NewBalance.Cents)
	}
	if res.Transaction.Type != core.Income {
		t.Errorf("type = %s, want income", res.Transaction.Type)
	}
	if res.Transaction.Status != core.StatusCompleted {
		t.Errorf("status = %q, want %q", res.Transaction.Status, core.StatusCompleted)
	}
}

func TestApplyWithdrawal(t *testing.T) {
	svc, userID := newServiceWithUser(t, 100000)

	res, err := svc.Apply(context.Background(), userID, core.Withdrawal, core.Money{Cents: 30000})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.NewBalance.Cents != 70000 {
		t.Errorf("new balance = %d, want 70000", res.NewBalance.Cents)
	}
}

func TestApplyErrorKinds(t *testing.T) {
	svc, userID := newServiceWithUser(t, 100000)
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  int64
		txType  core.TransactionType
		cents   int64
		wantErr error
	}{
		{"insufficient funds", userID, core.Withdrawal, 150000, core.ErrInsufficientFunds},
		{"negative amount", userID, core.Withdrawal, -500, core.ErrInvalidAmount},
		{"zero amount", userID, core.Income, 0, core.ErrInvalidAmount},
		{"unknown type", userID, core.TransactionType("transfer"), 100, core.ErrInvalidInput},
		{"unknown user", 999, core.Income, 100, core.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, tt.userID, tt.txType, core.Money{Cents: tt.cents})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Apply error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// None of the failures may have moved the balance.
	res, err := svc.Apply(ctx, userID, core.Income, core.Money{Cents: 1})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.NewBalance.Cents != 100001 {
		t.Errorf("balance after failed attempts = %d, want 100001", res.NewBalance.Cents)
	}
}

func TestApplyWithoutBroker(t *testing.T) {
	// A nil AMQP client means events are skipped, not failed.
	svc, userID := newServiceWithUser(t, 1000)
	if _, err := svc.Apply(context.Background(), userID, core.Income, core.Money{Cents: 500}); err != nil {
		t.Errorf("Apply without broker: %v", err)
	}
}
