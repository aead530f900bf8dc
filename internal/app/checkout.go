package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint/api"
	"github.com/keymint/keymint/internal/domain"
	"github.com/keymint/keymint/internal/pricing"
	"github.com/shopspring/decimal"
)

func (app *Application) CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r)

	var input api.CreateCheckoutSessionRequest

	err := app.readJSON(w, r, &input)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	err = app.validator.Struct(input)
	if err != nil {
		app.failedValidationResponse(w, r, err)
		return
	}

	userID := app.contextGetUserId(r)

	guestEmail := ""
	if input.GuestEmail != nil {
		guestEmail = string(*input.GuestEmail)
	}

	if userID == 0 && guestEmail == "" {
		app.badRequestResponse(w, r, fmt.Errorf("guestEmail is required for guest checkouts"))
		return
	}

	if userID != 0 && guestEmail != "" {
		app.badRequestResponse(w, r, fmt.Errorf("guestEmail cannot be combined with an authenticated user"))
		return
	}

	email := guestEmail
	if userID != 0 {
		email = app.contextGetUserEmail(r)
	}

	method := domain.PaymentMethod(input.PaymentMethod)

	if (method == domain.PaymentMethodWallet || method == domain.PaymentMethodWalletCard) && userID == 0 {
		app.badRequestResponse(w, r, fmt.Errorf("wallet payments require an authenticated user"))
		return
	}

	gateway, err := app.resolveGateway(method, input.Gateway)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	cart, err := app.cartRepo.GetById(r.Context(), input.CartId)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCartNotFound):
			app.notFoundResponseWithErr(w, r, err)
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	if len(cart.Items) == 0 {
		app.badRequestResponse(w, r, fmt.Errorf("cart is empty"))
		return
	}

	productIDs := make([]int64, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := app.productRepo.GetByIds(r.Context(), productIDs)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	currency := ""

	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			app.badRequestResponse(w, r, fmt.Errorf("product %d is no longer available", item.ProductID))
			return
		}

		if currency == "" {
			currency = product.Currency
		} else if currency != product.Currency {
			app.badRequestResponse(w, r, fmt.Errorf("cart mixes currencies %s and %s", currency, product.Currency))
			return
		}

		// Advisory only. The authoritative check is the atomic key claim at
		// fulfillment; this just rejects carts that are obviously unfillable.
		if product.AvailableKeys < item.Quantity {
			app.editConflictResponseWithErr(
				w,
				r,
				fmt.Errorf("not enough keys available for %s", product.Name),
			)
			return
		}
	}

	couponCode := ""
	if input.CouponCode != nil {
		couponCode = *input.CouponCode
	}

	cartPricing, err := app.pricer.PriceCart(r.Context(), pricing.CartInput{
		UserID:     userID,
		Items:      cart.Items,
		Products:   products,
		CouponCode: couponCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrCouponInvalid):
			app.badRequestResponse(w, r, err)
		default:
			logger.Error("failed to price cart", "cart_id", cart.ID, "error", err)
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	walletAmount, cardAmount, err := app.splitPayment(r, method, userID, cartPricing.GrandTotal)
	if err != nil {
		app.serverErrorResponse(w, r, err)
		return
	}

	session := &domain.CheckoutSession{
		ID:                   uuid.New(),
		UserID:               userID,
		Email:                email,
		Currency:             currency,
		Subtotal:             cartPricing.Subtotal,
		BundleDiscount:       cartPricing.BundleDiscount,
		SubscriptionDiscount: cartPricing.SubscriptionDiscount,
		CouponDiscount:       cartPricing.CouponDiscount,
		HandlingFee:          cartPricing.HandlingFee,
		TotalAmount:          cartPricing.TotalAmount,
		GrandTotal:           cartPricing.GrandTotal,
		WalletAmount:         walletAmount,
		CardAmount:           cardAmount,
		PaymentMethod:        method,
		Status:               domain.CheckoutStatusPending,
		Gateway:              gateway,
		ExpiresAt:            time.Now().Add(domain.CheckoutTTL),
	}

	if cartPricing.Coupon != nil {
		session.CouponID = cartPricing.Coupon.ID
		session.CouponCode = cartPricing.Coupon.Code
	}

	for _, line := range cartPricing.Lines {
		session.Items = append(session.Items, domain.CheckoutItem{
			ProductID:        line.Product.ID,
			ProductName:      line.Product.Name,
			SellerID:         line.Product.SellerID,
			Quantity:         line.Item.Quantity,
			UnitPrice:        line.Unit.OriginalPrice,
			DiscountedPrice:  line.Unit.DiscountedPrice,
			DiscountAmount:   line.Unit.DiscountAmount,
			DiscountType:     line.Unit.DiscountType,
			DiscountSourceID: line.Unit.DiscountSourceID,
		})
	}

	err = app.checkoutRepo.Create(r.Context(), session)
	if err != nil {
		logger.Error("failed to create checkout session", "cart_id", cart.ID, "error", err)
		app.serverErrorResponse(w, r, err)
		return
	}

	logger.Info("checkout session created",
		"session_id", session.ID,
		"grand_total", session.GrandTotal,
		"payment_method", session.PaymentMethod,
	)

	err = app.writeJSON(w, http.StatusCreated, toCheckoutSessionResponse(session), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

// resolveGateway picks the external rail for the session's card portion. Wallet-only
// sessions carry no gateway.
func (app *Application) resolveGateway(method domain.PaymentMethod, requested *string) (domain.Gateway, error) {
	switch method {
	case domain.PaymentMethodWallet:
		return "", nil
	case domain.PaymentMethodPayPal:
		return domain.GatewayPayPal, nil
	}

	if requested == nil {
		return "", fmt.Errorf("gateway is required for card payments")
	}

	gateway := domain.Gateway(*requested)

	if _, ok := app.gateways[gateway]; !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrGatewayNotConfigured, gateway)
	}

	return gateway, nil
}

// splitPayment applies the wallet split rule: wallet pays everything, wallet+card puts
// as much as the balance covers on the wallet and the rest on the card rail, and the
// pure card methods charge the full grand total externally.
func (app *Application) splitPayment(
	r *http.Request,
	method domain.PaymentMethod,
	userID int64,
	grandTotal decimal.Decimal) (walletAmount, cardAmount decimal.Decimal, err error) {

	switch method {
	case domain.PaymentMethodWallet:
		return grandTotal, decimal.Zero, nil

	case domain.PaymentMethodWalletCard:
		wallet, err := app.walletRepo.GetByUserId(r.Context(), userID)
		if err != nil {
			if errors.Is(err, domain.ErrWalletNotFound) {
				return decimal.Zero, grandTotal, nil
			}
			return decimal.Zero, decimal.Zero, err
		}

		walletAmount := decimal.Min(wallet.Balance, grandTotal)

		return walletAmount, grandTotal.Sub(walletAmount), nil

	default:
		return decimal.Zero, grandTotal, nil
	}
}

func (app *Application) GetCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, err := app.readUUIDParam(r, "sessionId")
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	_, err = app.checkoutRepo.ExpireIfDue(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRecordNotFound):
			app.notFoundResponse(w, r)
		default:
			app.serverErrorResponse(w, r, err)
		}
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

	err = app.writeJSON(w, http.StatusOK, toCheckoutSessionResponse(session), nil)
	if err != nil {
		app.serverErrorResponse(w, r, err)
	}
}

func (app *Application) CancelCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
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

	err = app.checkoutRepo.Cancel(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSessionNotPayable):
			app.editConflictResponseWithErr(w, r, fmt.Errorf("checkout session can no longer be cancelled"))
		default:
			app.serverErrorResponse(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownsSession reports whether the caller may act on the session. User sessions belong
// to their user id; guest sessions are addressed by their unguessable id alone.
func (app *Application) ownsSession(r *http.Request, session *domain.CheckoutSession) bool {
	if session.UserID == 0 {
		return true
	}

	return session.UserID == app.contextGetUserId(r)
}

func toCheckoutSessionResponse(session *domain.CheckoutSession) api.CheckoutSessionResponse {
	resp := api.CheckoutSessionResponse{
		Id:                   session.ID.String(),
		Status:               string(session.Status),
		Currency:             session.Currency,
		Subtotal:             session.Subtotal,
		BundleDiscount:       session.BundleDiscount,
		SubscriptionDiscount: session.SubscriptionDiscount,
		CouponDiscount:       session.CouponDiscount,
		HandlingFee:          session.HandlingFee,
		TotalAmount:          session.TotalAmount,
		GrandTotal:           session.GrandTotal,
		WalletAmount:         session.WalletAmount,
		CardAmount:           session.CardAmount,
		PaymentMethod:        string(session.PaymentMethod),
		ExpiresAt:            session.ExpiresAt,
		CreatedAt:            session.CreatedAt,
	}

	for _, item := range session.Items {
		resp.Items = append(resp.Items, api.CheckoutItem{
			ProductId:       item.ProductID,
			ProductName:     item.ProductName,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountedPrice: item.DiscountedPrice,
			DiscountType:    string(item.DiscountType),
		})
	}

	return resp
}
