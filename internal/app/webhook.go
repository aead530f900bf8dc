package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/keymint/keymint/internal/domain"
	"github.com/keymint/keymint/internal/payment"
	"github.com/shopspring/decimal"
)

// amountTolerance absorbs rounding differences between the session's card amount and
// what the gateway reports having captured. One cent, no more.
var amountTolerance = decimal.New(1, -2)

const maxWebhookBytes = 65536

func (app *Application) PayPalWebhookHandler(w http.ResponseWriter, r *http.Request) {
	app.handleGatewayWebhook(w, r, domain.GatewayPayPal, payment.SignatureHeader)
}

func (app *Application) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	app.handleGatewayWebhook(w, r, domain.GatewayStripe, "Stripe-Signature")
}

func (app *Application) handleGatewayWebhook(
	w http.ResponseWriter,
	r *http.Request,
	gatewayName domain.Gateway,
	signatureHeader string) {

	logger := app.contextGetLogger(r)

	gateway, ok := app.gateways[gatewayName]
	if !ok {
		app.serverErrorResponse(w, r, domain.ErrGatewayNotConfigured)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	event, err := gateway.VerifyWebhook(payload, r.Header.Get(signatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			logger.Warn("webhook rejected", "gateway", gatewayName, "error", err)
			app.errorResponse(w, r, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
		app.badRequestResponse(w, r, err)
		return
	}

	// Events other than a completed capture are acknowledged and dropped.
	if event.OrderID == "" {
		logger.Info("ignoring webhook event", "gateway", gatewayName, "event_type", event.EventType)
		w.WriteHeader(http.StatusOK)
		return
	}

	app.processCapture(w, r, event)
}

// orderCapturer is the optional synchronous leg of a gateway. PayPal requires an
// explicit capture call after buyer approval; Stripe captures on its own.
type orderCapturer interface {
	CaptureOrder(ctx context.Context, gatewayOrderID string) (*domain.CaptureEvent, error)
}

// CaptureCheckoutHandler is the buyer-return leg of the approval flow. It executes the
// gateway capture and funnels the result into the same reconciliation path the webhook
// uses, so whichever of the two arrives first settles and the other is a no-op.
func (app *Application) CaptureCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	sessionID, err := app.readUUIDParam(r, "sessionId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	session, err := app.checkoutRepo.GetById(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	if !app.ownsSession(r, session) {
		app.notFoundResponse(w, r)
		return
	}

	if session.GatewayOrderID == "" {
		app.badRequestResponse(w, r, fmt.Errorf("payment has not been started for this checkout session"))
		return
	}

	capturer, ok := app.gateways[session.Gateway].(orderCapturer)
	if !ok {
		app.badRequestResponse(w, r, fmt.Errorf("gateway %s does not support synchronous capture", session.Gateway))
		return
	}

	event, err := capturer.CaptureOrder(r.Context(), session.GatewayOrderID)
	if err != nil {
		logger.Error("gateway capture failed", "session_id", session.ID, "error", err)
		app.serverErrorResponse(w, r, err)
		return
	}

	app.processCapture(w, r, event)
}

// processCapture is the async entry of the payment reconciler. Every outcome that does
// not need a retry from the gateway acknowledges with 200, including duplicates and
// anomalies; anomalies additionally raise an alert log for the operators.
func (app *Application) processCapture(w http.ResponseWriter, r *http.Request, event *domain.CaptureEvent) {
	logger := app.contextGetLogger(r)

	existing, err := app.orderRepo.GetByGatewayIds(r.Context(), event.Gateway, event.OrderID, event.CaptureID)
	if err == nil {
		logger.Info("duplicate capture",
			"gateway", event.Gateway,
			"gateway_order_id", event.OrderID,
			"gateway_capture_id", event.CaptureID,
		)

		// These gateway ids already settled, but the redelivery is also the retry
		// that lets an order stranded between settle and key assignment converge.
		// The fulfillment claim keeps the pass single-shot.
		err = app.fulfillOrder(r.Context(), logger, existing)
		if err != nil {
			logger.Error("fulfillment failed", "order_id", existing.ID, "error", err)
		}

		w.WriteHeader(http.StatusOK)
		return
	}

	if !errors.Is(err, domain.ErrRecordNotFound) {
		app.serverErrorResponse(w, r, err)
		return
	}

	session, err := app.checkoutRepo.GetByGatewayOrderId(r.Context(), event.Gateway, event.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			logger.Error("capture for unknown gateway order",
				"alert", true,
				"gateway", event.Gateway,
				"gateway_order_id", event.OrderID,
				"amount", event.Amount,
			)
			w.WriteHeader(http.StatusOK)
			return
		}
		app.serverErrorResponse(w, r, err)
		return
	}

	if session.Status != domain.CheckoutStatusPending {
		logger.Error("money captured for a non-pending checkout session",
			"alert", true,
			"session_id", session.ID,
			"session_status", session.Status,
			"gateway_capture_id", event.CaptureID,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	if event.Currency != session.Currency ||
		event.Amount.Sub(session.CardAmount).Abs().GreaterThan(amountTolerance) {
		logger.Error("capture rejected",
			"alert", true,
			"error", domain.ErrAmountMismatch,
			"session_id", session.ID,
			"expected_amount", session.CardAmount,
			"expected_currency", session.Currency,
			"captured_amount", event.Amount,
			"captured_currency", event.Currency,
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	order, err := app.orderRepo.Settle(r.Context(), domain.SettleParams{
		Session:          session,
		GatewayOrderID:   event.OrderID,
		GatewayCaptureID: event.CaptureID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotPayable), errors.Is(err, domain.ErrDuplicateOrder):
			// A concurrent delivery won the settle race; nothing left to do.
			logger.Info("capture already settled", "session_id", session.ID)
			w.WriteHeader(http.StatusOK)
		case errors.Is(err, domain.ErrInsufficientFunds):
			// The card portion is captured but the wallet portion cannot be
			// debited. Retrying will not help; operators have to step in.
			logger.Error("wallet debit failed after card capture",
				"alert", true,
				"session_id", session.ID,
				"wallet_amount", session.WalletAmount,
			)
			w.WriteHeader(http.StatusOK)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	logger.Info("capture settled", "session_id", session.ID, "order_id", order.ID)

	err = app.fulfillOrder(r.Context(), logger, order)
	if err != nil {
		logger.Error("fulfillment failed", "order_id", order.ID, "error", err)
	}

	w.WriteHeader(http.StatusOK)
}
