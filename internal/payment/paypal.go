package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/keymint/keymint/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	eventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"

	// SignatureHeader carries the HMAC-SHA256 of the raw webhook body, hex encoded.
	SignatureHeader = "Paypal-Transmission-Sig"
)

var ErrInvalidSignature = fmt.Errorf("webhook signature verification failed")

// PayPalGateway implements the card rail against the PayPal Orders v2 API. It charges
// only the session's card portion; any wallet portion is settled internally by the
// reconciler.
type PayPalGateway struct {
	baseURL       string
	clientID      string
	clientSecret  string
	webhookSecret string
	client        *http.Client
}

func NewPayPalGateway(baseURL, clientID, clientSecret, webhookSecret string) *PayPalGateway {
	return &PayPalGateway{
		baseURL:       baseURL,
		clientID:      clientID,
		clientSecret:  clientSecret,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id"`
	Amount      paypalAmount `json:"amount"`
}

type paypalCreateOrderRequest struct {
	Intent        string               `json:"intent"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrderResponse struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string       `json:"id"`
				Status string       `json:"status"`
				Amount paypalAmount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalWebhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID     string       `json:"id"`
		Amount paypalAmount `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

func (g *PayPalGateway) CreateOrder(ctx context.Context, session *domain.CheckoutSession) (*domain.GatewayOrder, error) {
	body := paypalCreateOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{
			{
				ReferenceID: session.ID.String(),
				Amount: paypalAmount{
					CurrencyCode: session.Currency,
					Value:        session.CardAmount.StringFixed(2),
				},
			},
		},
	}

	var resp paypalOrderResponse

	err := g.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &resp)
	if err != nil {
		return nil, fmt.Errorf("paypal create order: %w", err)
	}

	order := &domain.GatewayOrder{ID: resp.ID}

	for _, link := range resp.Links {
		if link.Rel == "approve" {
			order.ApprovalURL = link.Href
			break
		}
	}

	return order, nil
}

// CaptureOrder executes the capture after buyer approval and normalizes the result so
// the synchronous return path and the webhook path feed the reconciler identically.
func (g *PayPalGateway) CaptureOrder(ctx context.Context, gatewayOrderID string) (*domain.CaptureEvent, error) {
	var resp paypalOrderResponse

	err := g.do(ctx, http.MethodPost, fmt.Sprintf("/v2/checkout/orders/%s/capture", gatewayOrderID), struct{}{}, &resp)
	if err != nil {
		return nil, fmt.Errorf("paypal capture order: %w", err)
	}

	if len(resp.PurchaseUnits) == 0 || len(resp.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, fmt.Errorf("paypal capture order %s: no captures in response", gatewayOrderID)
	}

	capture := resp.PurchaseUnits[0].Payments.Captures[0]

	amount, err := decimal.NewFromString(capture.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("paypal capture order %s: bad amount %q", gatewayOrderID, capture.Amount.Value)
	}

	return &domain.CaptureEvent{
		Gateway:   domain.GatewayPayPal,
		EventType: eventCaptureCompleted,
		OrderID:   resp.ID,
		CaptureID: capture.ID,
		Amount:    amount,
		Currency:  capture.Amount.CurrencyCode,
	}, nil
}

// VerifyWebhook checks the transmission signature before anything in the payload is
// trusted, then maps the event onto the normalized capture shape. Non-capture events
// come back with their event type set and empty correlation ids; callers ignore them.
func (g *PayPalGateway) VerifyWebhook(payload []byte, signatureHeader string) (*domain.CaptureEvent, error) {
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signatureHeader)) {
		return nil, ErrInvalidSignature
	}

	var event paypalWebhookEvent

	err := json.Unmarshal(payload, &event)
	if err != nil {
		return nil, fmt.Errorf("paypal webhook: malformed payload: %w", err)
	}

	capture := &domain.CaptureEvent{
		Gateway:   domain.GatewayPayPal,
		EventType: event.EventType,
	}

	if event.EventType != eventCaptureCompleted {
		return capture, nil
	}

	amount, err := decimal.NewFromString(event.Resource.Amount.Value)
	if err != nil {
		return nil, fmt.Errorf("paypal webhook: bad amount %q", event.Resource.Amount.Value)
	}

	capture.OrderID = event.Resource.SupplementaryData.RelatedIDs.OrderID
	capture.CaptureID = event.Resource.ID
	capture.Amount = amount
	capture.Currency = event.Resource.Amount.CurrencyCode

	return capture, nil
}

func (g *PayPalGateway) do(ctx context.Context, method, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}

	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}
