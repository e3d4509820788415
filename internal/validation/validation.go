package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	upiPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9.-]+$`)

	// KnownHandles are the UPI provider handles accepted after the "@".
	KnownHandles = []string{
		"paytm", "phonepe", "gpay", "ybl", "okhdfcbank", "okicici",
		"oksbi", "okaxis", "upi", "ibl", "axl", "pingpay", "fbl", "pnb",
	}

	MinAmount = decimal.NewFromInt(1)
	MaxAmount = decimal.NewFromInt(50000)
)

// PaymentRequest is the body accepted by the initiate endpoint.
type PaymentRequest struct {
	UpiID       string          `json:"upiId" validate:"required,upi"`
	Amount      decimal.Decimal `json:"amount" validate:"amount"`
	Description string          `json:"description" validate:"max=100"`
}

// FieldError describes one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is returned when a request fails validation.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator checks payment requests.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("upi", func(fl validator.FieldLevel) bool {
		return ValidUpiID(fl.Field().String())
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && ValidAmount(d)
	})

	return &Validator{validate: v}
}

// ValidUpiID checks the address shape and that the handle contains a known provider.
func ValidUpiID(upiID string) bool {
	if !upiPattern.MatchString(upiID) {
		return false
	}
	_, handle, _ := strings.Cut(upiID, "@")
	handle = strings.ToLower(handle)
	for _, known := range KnownHandles {
		if strings.Contains(handle, known) {
			return true
		}
	}
	return false
}

// ValidAmount checks the rupee range and that there are at most two decimals.
func ValidAmount(amount decimal.Decimal) bool {
	if amount.LessThan(MinAmount) || amount.GreaterThan(MaxAmount) {
		return false
	}
	return amount.Equal(amount.Truncate(2))
}

// Struct validates a payment request and returns Errors on failure.
func (v *Validator) Struct(req *PaymentRequest) error {
	req.UpiID = strings.TrimSpace(req.UpiID)
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "upi":
		if !upiPattern.MatchString(fe.Value().(string)) {
			return "invalid UPI ID format, use username@bank"
		}
		return "invalid UPI provider, please use a valid UPI ID"
	case "amount":
		return "amount must be between ₹1 and ₹50,000 with at most 2 decimal places"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
