// Package api holds the request and response types of the HTTP surface. The shapes
// mirror the OpenAPI contract; validation rules live on the request types as struct
// tags and are enforced by the application's validator.
package api

import (
	"time"

	"github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Message   string    `json:"message"`
	RequestId string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type ValidationError struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

type ValidationErrorResponse struct {
	Message          string            `json:"message"`
	RequestId        string            `json:"requestId"`
	Timestamp        time.Time         `json:"timestamp"`
	ValidationErrors []ValidationError `json:"validationErrors"`
}

type Metadata struct {
	CurrentPage  int `json:"currentPage"`
	FirstPage    int `json:"firstPage"`
	LastPage     int `json:"lastPage"`
	PageSize     int `json:"pageSize"`
	TotalRecords int `json:"totalRecords"`
}

type CreateCheckoutSessionRequest struct {
	CartId        string       `json:"cartId" validate:"required"`
	PaymentMethod string       `json:"paymentMethod" validate:"required,oneof=wallet card paypal wallet+card"`
	Gateway       *string      `json:"gateway,omitempty" validate:"omitempty,oneof=paypal stripe"`
	CouponCode    *string      `json:"couponCode,omitempty" validate:"omitempty,coupon_code"`
	GuestEmail    *types.Email `json:"guestEmail,omitempty" validate:"omitempty,email"`
}

type CheckoutItem struct {
	ProductId       int64           `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
	DiscountType    string          `json:"discountType"`
}

type CheckoutSessionResponse struct {
	Id                   string          `json:"id"`
	Status               string          `json:"status"`
	Currency             string          `json:"currency"`
	Items                []CheckoutItem  `json:"items"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	BundleDiscount       decimal.Decimal `json:"bundleDiscount"`
	SubscriptionDiscount decimal.Decimal `json:"subscriptionDiscount"`
	CouponDiscount       decimal.Decimal `json:"couponDiscount"`
	HandlingFee          decimal.Decimal `json:"handlingFee"`
	TotalAmount          decimal.Decimal `json:"totalAmount"`
	GrandTotal           decimal.Decimal `json:"grandTotal"`
	WalletAmount         decimal.Decimal `json:"walletAmount"`
	CardAmount           decimal.Decimal `json:"cardAmount"`
	PaymentMethod        string          `json:"paymentMethod"`
	ExpiresAt            time.Time       `json:"expiresAt"`
	CreatedAt            time.Time       `json:"createdAt"`
}

type StartPaymentResponse struct {
	SessionId   string  `json:"sessionId"`
	Status      string  `json:"status"`
	OrderId     *string `json:"orderId,omitempty"`
	RedirectUrl *string `json:"redirectUrl,omitempty"`
}

type OrderItem struct {
	ProductId       int64           `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	DiscountedPrice decimal.Decimal `json:"discountedPrice"`
	RefundedQty     int             `json:"refundedQty"`
	LicenseKeyIds   []string        `json:"licenseKeyIds,omitempty"`
}

type OrderResponse struct {
	Id            string          `json:"id"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	WalletAmount  decimal.Decimal `json:"walletAmount"`
	CardAmount    decimal.Decimal `json:"cardAmount"`
	PaymentStatus string          `json:"paymentStatus"`
	OrderStatus   string          `json:"orderStatus"`
	Items         []OrderItem     `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type OrderListResponse struct {
	Orders   []OrderResponse `json:"orders"`
	Metadata Metadata        `json:"metadata"`
}

type RefundOrderRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

type RefundOrderResponse struct {
	OrderId        string          `json:"orderId"`
	RefundedAmount decimal.Decimal `json:"refundedAmount"`
	RefundRef      string          `json:"refundRef"`
}

type WalletResponse struct {
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type WalletTransaction struct {
	Id        string          `json:"id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	OrderId   *string         `json:"orderId,omitempty"`
	RefundRef *string         `json:"refundRef,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type WalletTransactionListResponse struct {
	Transactions []WalletTransaction `json:"transactions"`
	Metadata     Metadata            `json:"metadata"`
}

type SystemInfo struct {
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

type HealthcheckResponse struct {
	Status     string     `json:"status"`
	SystemInfo SystemInfo `json:"systemInfo"`
}
