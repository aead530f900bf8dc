package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletTransactionType string

const (
	WalletCredit WalletTransactionType = "credit"
	WalletDebit  WalletTransactionType = "debit"
)

// Wallet holds a non-negative stored-value balance. The balance always equals the
// signed sum of the transaction log; every mutation appends a ledger row in the same
// transaction as the balance change.
type Wallet struct {
	UserID    int64
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WalletTransaction struct {
	ID        uuid.UUID
	UserID    int64
	Type      WalletTransactionType
	Amount    decimal.Decimal
	OrderID   uuid.UUID // zero unless tied to an order payment
	RefundRef string    // set on refund credits
	CreatedAt time.Time
}

type WalletRepository interface {
	GetByUserId(ctx context.Context, userID int64) (*Wallet, error)
	// Debit fails closed with ErrInsufficientFunds; the guard lives in the UPDATE
	// itself so concurrent debits can never drive the balance negative.
	Debit(ctx context.Context, userID int64, amount decimal.Decimal, orderID uuid.UUID) error
	Credit(ctx context.Context, userID int64, amount decimal.Decimal, orderID uuid.UUID, refundRef string) error
	GetTransactions(ctx context.Context, userID int64, pagination Pagination) ([]WalletTransaction, *Metadata, error)
}
