package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderPaymentStatus string

const (
	OrderPaymentPending  OrderPaymentStatus = "pending"
	OrderPaymentPaid     OrderPaymentStatus = "paid"
	OrderPaymentFailed   OrderPaymentStatus = "failed"
	OrderPaymentRefunded OrderPaymentStatus = "refunded"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Order is the durable post-payment record, created exactly once per paid checkout
// session by the payment reconciler. The unique checkout and gateway order ids are the
// idempotency backstop against duplicate webhook deliveries.
type Order struct {
	ID                uuid.UUID
	CheckoutSessionID uuid.UUID
	UserID            int64
	Email             string
	Items             []OrderItem
	Currency          string
	Amount            decimal.Decimal
	WalletAmount      decimal.Decimal
	CardAmount        decimal.Decimal
	PaymentStatus     OrderPaymentStatus
	OrderStatus       OrderStatus
	Gateway           Gateway
	GatewayOrderID    string
	GatewayCaptureID  string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type OrderItem struct {
	ProductID       int64
	ProductName     string
	SellerID        int64
	Quantity        int
	UnitPrice       decimal.Decimal
	DiscountedPrice decimal.Decimal
	RefundedQty     int
	KeyIDs          []uuid.UUID
}

// SettleParams carries everything the settle transaction mutates atomically: the
// pending -> paid session transition, the optional wallet debit, the optional coupon
// redemption, and the order insert.
type SettleParams struct {
	Session          *CheckoutSession
	GatewayOrderID   string
	GatewayCaptureID string
}

// RefundParams carries the refund transaction's inputs. Every mutation the refund
// makes lands atomically; a refund that cannot credit the wallet changes nothing
// and stays retryable.
type RefundParams struct {
	Order     *Order
	RefundRef string
}

type OrderRepository interface {
	// Settle performs the single-transaction payment settlement and returns the
	// created order. ErrSessionNotPayable when the session already left pending,
	// ErrDuplicateOrder when the order insert hits a uniqueness backstop, and
	// ErrInsufficientFunds when a wallet portion cannot be debited.
	Settle(ctx context.Context, params SettleParams) (*Order, error)
	GetById(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByGatewayIds(ctx context.Context, gateway Gateway, gatewayOrderID, gatewayCaptureID string) (*Order, error)
	GetByUserId(ctx context.Context, userID int64, pagination Pagination) ([]Order, *Metadata, error)
	// ClaimFulfillment transitions pending -> processing so that exactly one
	// key-assignment pass runs per order. ErrAlreadyFulfilled if already claimed.
	ClaimFulfillment(ctx context.Context, orderID uuid.UUID) error
	Complete(ctx context.Context, orderID uuid.UUID) error
	// Refund flips payment status to refunded, bumps per-item refund counters,
	// terminally retires the order's keys, and credits the buyer's wallet when the
	// order belongs to a registered user, all in one transaction.
	// ErrOrderNotRefundable unless the order was paid.
	Refund(ctx context.Context, params RefundParams) error
}
