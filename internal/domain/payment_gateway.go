package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// GatewayOrder is the external rail's handle for a checkout: the id we later correlate
// webhook captures against, plus the URL the buyer is redirected to for approval.
type GatewayOrder struct {
	ID          string
	ApprovalURL string
}

// CaptureEvent is the normalized form of a gateway capture notification. Both webhook
// adapters (PayPal, Stripe) map their payloads onto this before reconciliation.
type CaptureEvent struct {
	Gateway        Gateway
	EventType      string
	OrderID        string
	CaptureID      string
	Amount         decimal.Decimal
	Currency       string
}

// PaymentGateway is the outbound contract the reconciler needs from an external rail.
// Webhook signature verification is deliberately part of it: no capture event reaches
// the reconciler unverified.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, session *CheckoutSession) (*GatewayOrder, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*CaptureEvent, error)
}
