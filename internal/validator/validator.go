package validator

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	couponCodeRgx = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{2,31}$`)
	currencyRgx   = regexp.MustCompile(`^[A-Z]{3}$`)
)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	validator.RegisterValidation("coupon_code", validateCouponCode)
	validator.RegisterValidation("currency", validateCurrency)
	validator.RegisterValidation("positive_amount", validatePositiveAmount)

	return validator
}

func validateCouponCode(fl validator.FieldLevel) bool {
	return couponCodeRgx.MatchString(fl.Field().String())
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyRgx.MatchString(fl.Field().String())
}

func validatePositiveAmount(fl validator.FieldLevel) bool {
	amount, ok := fl.Field().Interface().(decimal.Decimal)
	if !ok {
		return false
	}

	return amount.IsPositive()
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "uuid":
		return "must be a valid UUID"
	case "coupon_code":
		return "must be 3-32 uppercase letters, digits, hyphens or underscores"
	case "currency":
		return "must be a three-letter ISO currency code"
	case "positive_amount":
		return "must be a positive amount"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	default:
		return "is invalid"
	}
}
