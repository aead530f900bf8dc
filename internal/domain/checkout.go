package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CheckoutStatus string

const (
	CheckoutStatusPending   CheckoutStatus = "pending"
	CheckoutStatusPaid      CheckoutStatus = "paid"
	CheckoutStatusCancelled CheckoutStatus = "cancelled"
	CheckoutStatusExpired   CheckoutStatus = "expired"
)

type PaymentMethod string

const (
	PaymentMethodWallet     PaymentMethod = "wallet"
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodPayPal     PaymentMethod = "paypal"
	PaymentMethodWalletCard PaymentMethod = "wallet+card"
)

type Gateway string

const (
	GatewayPayPal Gateway = "paypal"
	GatewayStripe Gateway = "stripe"
)

// CheckoutTTL bounds how long a pending session stays payable. Expiry is applied
// lazily on read; no sweeper is required for correctness.
const CheckoutTTL = 30 * time.Minute

// CheckoutSession is a frozen price and intent snapshot. Everything except the status
// and the gateway linkage fields is immutable after creation.
type CheckoutSession struct {
	ID     uuid.UUID
	UserID int64 // zero for guest checkouts
	// Email is where keys are delivered. Guests supply it at creation; for
	// authenticated users it arrives from the upstream gateway.
	Email    string
	Items    []CheckoutItem
	Currency string

	Subtotal             decimal.Decimal
	BundleDiscount       decimal.Decimal
	SubscriptionDiscount decimal.Decimal
	CouponDiscount       decimal.Decimal
	CouponID             int64
	CouponCode           string
	HandlingFee          decimal.Decimal
	TotalAmount          decimal.Decimal
	GrandTotal           decimal.Decimal

	WalletAmount  decimal.Decimal
	CardAmount    decimal.Decimal
	PaymentMethod PaymentMethod

	Status           CheckoutStatus
	Gateway          Gateway
	GatewayOrderID   string
	GatewayCaptureID string

	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CheckoutItem struct {
	ProductID        int64
	ProductName      string
	SellerID         int64
	Quantity         int
	UnitPrice        decimal.Decimal
	DiscountedPrice  decimal.Decimal
	DiscountAmount   decimal.Decimal
	DiscountType     DiscountType
	DiscountSourceID int64
}

type CheckoutRepository interface {
	Create(ctx context.Context, session *CheckoutSession) error
	GetById(ctx context.Context, id uuid.UUID) (*CheckoutSession, error)
	GetByGatewayOrderId(ctx context.Context, gateway Gateway, gatewayOrderID string) (*CheckoutSession, error)
	// ExpireIfDue flips an overdue pending session to expired. Returns the session's
	// effective status after the conditional update.
	ExpireIfDue(ctx context.Context, id uuid.UUID) (CheckoutStatus, error)
	// Cancel transitions pending -> cancelled; ErrSessionNotPayable otherwise.
	Cancel(ctx context.Context, id uuid.UUID) error
	// AttachGatewayOrder records the external order id on a still-pending session.
	AttachGatewayOrder(ctx context.Context, id uuid.UUID, gateway Gateway, gatewayOrderID string) error
}
