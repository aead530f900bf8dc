package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keymint/keymint/api"
	"github.com/keymint/keymint/internal/domain"
)

func (app *Application) GetUserOrdersHandler(w http.ResponseWriter, r *http.Request) {
	userID := app.contextGetUserId(r)
	pagination := app.readPagination(r)

	orders, metadata, err := app.orderRepo.GetByUserId(r.Context(), userID, pagination)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	resp := api.OrderListResponse{
		Orders:   make([]api.OrderResponse, 0, len(orders)),
		Metadata: toMetadataResponse(metadata),
	}

	for i := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(&orders[i]))
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := app.readUUIDParam(r, "orderId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	order, err := app.orderRepo.GetById(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	if order.UserID != app.contextGetUserId(r) {
		app.notFoundResponse(w, r)
		return
	}

	err = app.writeJSON(w, http.StatusOK, toOrderResponse(order), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// RefundOrderHandler refunds a whole paid order. The status flip, the terminal key
// retirement, and the wallet credit land in one repository transaction; the buyer
// notification runs after it commits. Keys are never returned to the pool.
func (app *Application) RefundOrderHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	orderID, err := app.readUUIDParam(r, "orderId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var input api.RefundOrderRequest

	err = app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	order, err := app.orderRepo.GetById(r.Context(), orderID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	if order.UserID != app.contextGetUserId(r) {
		app.notFoundResponse(w, r)
		return
	}

	refundRef := "refund:" + order.ID.String()

	err = app.orderRepo.Refund(r.Context(), domain.RefundParams{Order: order, RefundRef: refundRef})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotRefundable):
			app.editConflictResponseWithErr(w, r, fmt.Errorf("order is not in a refundable state"))
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	logger.Info("order refunded", "order_id", order.ID, "amount", order.Amount, "reason", input.Reason)

	if order.Email != "" {
		reason := input.Reason

		app.background(func() {
			data := map[string]any{
				"orderID":  order.ID.String(),
				"amount":   order.Amount,
				"currency": order.Currency,
				"reason":   reason,
			}

			err := app.mailer.Send(order.Email, "order_refunded.tmpl", data)
			if err != nil {
				app.logger.Error("failed to send refund email", "order_id", order.ID, "error", err)
			}
		})
	}

	resp := api.RefundOrderResponse{
		OrderId:        order.ID.String(),
		RefundedAmount: order.Amount,
		RefundRef:      refundRef,
	}

	err = app.writeJSON(w, http.StatusOK, resp, nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func toOrderResponse(order *domain.Order) api.OrderResponse {
	resp := api.OrderResponse{
		Id:            order.ID.String(),
		Currency:      order.Currency,
		Amount:        order.Amount,
		WalletAmount:  order.WalletAmount,
		CardAmount:    order.CardAmount,
		PaymentStatus: string(order.PaymentStatus),
		OrderStatus:   string(order.OrderStatus),
		CreatedAt:     order.CreatedAt,
	}

	for _, item := range order.Items {
		keyIDs := make([]string, 0, len(item.KeyIDs))
		for _, id := range item.KeyIDs {
			keyIDs = append(keyIDs, id.String())
		}

		resp.Items = append(resp.Items, api.OrderItem{
			ProductId:       item.ProductID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountedPrice: item.DiscountedPrice,
			RefundedQty:     item.RefundedQty,
			LicenseKeyIds:   keyIDs,
		})
	}

	return resp
}

func toMetadataResponse(metadata *domain.Metadata) api.Metadata {
	if metadata == nil {
		return api.Metadata{}
	}

	return api.Metadata{
		CurrentPage:  metadata.CurrentPage,
		FirstPage:    metadata.FirstPage,
		LastPage:     metadata.LastPage,
		PageSize:     metadata.PageSize,
		TotalRecords: metadata.TotalRecords,
	}
}
