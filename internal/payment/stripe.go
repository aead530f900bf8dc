package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/keymint/keymint/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/coupon"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeGateway is the generic card rail. A hosted checkout session stands in for the
// gateway order; its id is the correlation key webhooks are matched on.
type StripeGateway struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeGateway(webhookSecret, successURL, cancelURL string) *StripeGateway {
	return &StripeGateway{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

func (g *StripeGateway) CreateOrder(ctx context.Context, checkout *domain.CheckoutSession) (*domain.GatewayOrder, error) {
	var lineItems []*stripe.CheckoutSessionLineItemParams

	for _, item := range checkout.Items {
		priceCents := item.DiscountedPrice.Mul(decimal.NewFromInt(100)).IntPart()

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(checkout.Currency)),
				UnitAmount: stripe.Int64(priceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.ProductName),
				},
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	// The line items sum to the per-item subtotal. Whatever separates that from the
	// session's card amount (handling fee on one side, cart-level discounts and the
	// wallet portion on the other) becomes either an extra line item or a one-off
	// coupon, so the captured total always equals the card amount exactly.
	adjustmentCents := checkout.CardAmount.Sub(checkout.Subtotal).Mul(decimal.NewFromInt(100)).IntPart()

	if adjustmentCents > 0 {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(checkout.Currency)),
				UnitAmount: stripe.Int64(adjustmentCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Handling fee"),
				},
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		LineItems:  lineItems,
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
		Metadata: map[string]string{
			"checkout_session_id": checkout.ID.String(),
		},
		ClientReferenceID: stripe.String(checkout.ID.String()),
	}

	if adjustmentCents < 0 {
		discount, err := coupon.New(&stripe.CouponParams{
			AmountOff: stripe.Int64(-adjustmentCents),
			Currency:  stripe.String(strings.ToLower(checkout.Currency)),
			Duration:  stripe.String(string(stripe.CouponDurationOnce)),
			Name:      stripe.String("Discounts and wallet credit"),
		})
		if err != nil {
			return nil, fmt.Errorf("stripe create coupon: %w", err)
		}

		params.Discounts = []*stripe.CheckoutSessionDiscountParams{
			{Coupon: stripe.String(discount.ID)},
		}
	}

	stripeSession, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}

	return &domain.GatewayOrder{
		ID:          stripeSession.ID,
		ApprovalURL: stripeSession.URL,
	}, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*domain.CaptureEvent, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	capture := &domain.CaptureEvent{
		Gateway:   domain.GatewayStripe,
		EventType: string(event.Type),
	}

	if event.Type != "checkout.session.completed" {
		return capture, nil
	}

	var stripeSession stripe.CheckoutSession

	err = json.Unmarshal(event.Data.Raw, &stripeSession)
	if err != nil {
		return nil, fmt.Errorf("stripe webhook: malformed session payload: %w", err)
	}

	capture.OrderID = stripeSession.ID
	if stripeSession.PaymentIntent != nil {
		capture.CaptureID = stripeSession.PaymentIntent.ID
	}
	capture.Amount = decimal.NewFromInt(stripeSession.AmountTotal).Div(decimal.NewFromInt(100))
	capture.Currency = strings.ToUpper(string(stripeSession.Currency))

	return capture, nil
}
