package domain

import "errors"

var (
	ErrRecordNotFound       = errors.New("record not found")
	ErrCartNotFound         = errors.New("cart not found or has expired")
	ErrCouponInvalid        = errors.New("coupon is invalid, expired, or not applicable to this cart")
	ErrInsufficientFunds    = errors.New("wallet balance is insufficient")
	ErrOutOfStock           = errors.New("not enough license keys available")
	ErrSessionNotPayable    = errors.New("checkout session is not in a payable state")
	ErrDuplicateOrder       = errors.New("an order already exists for this checkout session")
	ErrOrderNotRefundable   = errors.New("order is not in a refundable state")
	ErrAlreadyFulfilled     = errors.New("order keys have already been assigned")
	ErrWalletNotFound       = errors.New("wallet not found for user")
	ErrAmountMismatch       = errors.New("captured amount or currency does not match the checkout session")
	ErrGatewayNotConfigured = errors.New("no payment gateway configured for the requested rail")
)
