package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/keymint/keymint/api"
	"github.com/keymint/keymint/internal/domain"
)

// StartPaymentHandler begins payment for a pending checkout session. A session whose
// card portion is zero settles inline against the wallet; anything else creates an
// order on the external rail and sends the buyer to its approval page. Settlement then
// arrives asynchronously through the webhook.
func (app *Application) StartPaymentHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	sessionID, err := app.readUUIDParam(r, "sessionId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	status, err := app.checkoutRepo.ExpireIfDue(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	if status != domain.CheckoutStatusPending {
		app.editConflictResponseWithErr(w, r, fmt.Errorf("checkout session is %s and can no longer be paid", status))
		return
	}

	session, err := app.checkoutRepo.GetById(r.Context(), sessionID)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	if !app.ownsSession(r, session) {
		app.notFoundResponse(w, r)
		return
	}

	resp := api.StartPaymentResponse{
		SessionId: session.ID.String(),
	}

	if session.CardAmount.IsZero() {
		order, err := app.orderRepo.Settle(r.Context(), domain.SettleParams{Session: session})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInsufficientFunds):
				app.errorResponse(w, r, http.StatusPaymentRequired, domain.ErrInsufficientFunds.Error())
			case errors.Is(err, domain.ErrSessionNotPayable), errors.Is(err, domain.ErrDuplicateOrder):
				app.editConflictResponseWithErr(w, r, err)
			default:
				logger.Error("wallet settlement failed", "session_id", session.ID, "error", err)
				app.serverErrorResponse(w, r, err)
			}
			return
		}

		logger.Info("session settled from wallet", "session_id", session.ID, "order_id", order.ID)

		err = app.fulfillOrder(r.Context(), logger, order)
		if err != nil {
			logger.Error("fulfillment failed", "order_id", order.ID, "error", err)
		}

		orderID := order.ID.String()
		resp.Status = string(domain.CheckoutStatusPaid)
		resp.OrderId = &orderID

		err = app.writeJSON(w, http.StatusOK, resp, nil)
		if err != nil {
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	gateway, ok := app.gateways[session.Gateway]
	if !ok {
		app.serverErrorResponse(w, r, fmt.Errorf("%w: %s", domain.ErrGatewayNotConfigured, session.Gateway))
		return
	}

	gatewayOrder, err := gateway.CreateOrder(r.Context(), session)
	if err != nil {
		logger.Error("gateway order creation failed", "session_id", session.ID, "error", err)
		app.serverErrorResponse(w, r, err)
		return
	}

	err = app.checkoutRepo.AttachGatewayOrder(r.Context(), session.ID, session.Gateway, gatewayOrder.ID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotPayable):
			app.editConflictResponseWithErr(w, r, fmt.Errorf("checkout session is no longer payable"))
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	logger.Info("gateway order created",
		"session_id", session.ID,
		"gateway", session.Gateway,
		"gateway_order_id", gatewayOrder.ID,
	)

	resp.Status = string(domain.CheckoutStatusPending)
	resp.RedirectUrl = &gatewayOrder.ApprovalURL

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// fulfillOrder runs the one key-assignment pass for a paid order. The fulfillment
// claim guarantees that concurrent callers (wallet path racing a webhook retry) do
// not allocate twice; the loser simply observes the claim and walks away.
func (app *Application) fulfillOrder(ctx context.Context, logger *slog.Logger, order *domain.Order) error {
	err := app.orderRepo.ClaimFulfillment(ctx, order.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyFulfilled) {
			return nil
		}
		return err
	}

	for _, item := range order.Items {
		_, err := app.keyPoolRepo.Allocate(ctx, item.ProductID, item.Quantity, order.ID)
		if err != nil {
			if errors.Is(err, domain.ErrOutOfStock) {
				app.refundAfterStockout(ctx, logger, order, item.ProductName)
				return nil
			}
			return err
		}
	}

	err = app.orderRepo.Complete(ctx, order.ID)
	if err != nil {
		return err
	}

	logger.Info("order fulfilled", "order_id", order.ID)

	app.background(func() {
		app.deliverKeys(order)
	})

	return nil
}

// refundAfterStockout handles the pool running dry between the advisory checkout check
// and the paid allocation. The buyer has been charged for keys that do not exist, so
// the order is refunded automatically and loudly; it must never be dropped silently.
func (app *Application) refundAfterStockout(ctx context.Context, logger *slog.Logger, order *domain.Order, productName string) {
	logger.Error("key pool exhausted after payment, refunding order",
		"alert", true,
		"order_id", order.ID,
		"product", productName,
	)

	err := app.orderRepo.Refund(ctx, domain.RefundParams{
		Order:     order,
		RefundRef: "stockout:" + order.ID.String(),
	})
	if err != nil {
		logger.Error("automatic refund failed", "alert", true, "order_id", order.ID, "error", err)
		return
	}

	if order.UserID == 0 {
		// Guests hold no wallet; the card capture has to be reversed by hand.
		logger.Error("guest order requires manual gateway refund", "alert", true, "order_id", order.ID)
	}

	if order.Email != "" {
		app.background(func() {
			data := map[string]any{
				"orderID":  order.ID.String(),
				"amount":   order.Amount,
				"currency": order.Currency,
				"reason":   "the purchased keys were no longer in stock",
			}

			err := app.mailer.Send(order.Email, "order_refunded.tmpl", data)
			if err != nil {
				app.logger.Error("failed to send refund email", "order_id", order.ID, "error", err)
			}
		})
	}
}

type deliveredKey struct {
	ProductName string
	Key         string
}

// deliverKeys emails the decrypted payloads to the buyer. Delivery is best effort and
// runs outside the request; a mail failure never affects the order, the buyer can
// always re-read the keys from the order endpoint.
func (app *Application) deliverKeys(order *domain.Order) {
	if order.Email == "" {
		return
	}

	ctx := context.Background()

	keys, err := app.keyPoolRepo.GetByOrderId(ctx, order.ID)
	if err != nil {
		app.logger.Error("failed to load keys for delivery email", "order_id", order.ID, "error", err)
		return
	}

	names := make(map[int64]string, len(order.Items))
	for _, item := range order.Items {
		names[item.ProductID] = item.ProductName
	}

	delivered := make([]deliveredKey, 0, len(keys))

	for _, key := range keys {
		payload, err := app.sealer.Open(key.PayloadCiphertext)
		if err != nil {
			app.logger.Error("failed to decrypt key payload", "alert", true, "key_id", key.ID, "error", err)
			return
		}

		delivered = append(delivered, deliveredKey{
			ProductName: names[key.ProductID],
			Key:         payload,
		})
	}

	data := map[string]any{
		"orderID": order.ID.String(),
		"keys":    delivered,
	}

	err = app.mailer.Send(order.Email, "key_delivery.tmpl", data)
	if err != nil {
		app.logger.Error("failed to send key delivery email", "order_id", order.ID, "error", err)
	}
}
