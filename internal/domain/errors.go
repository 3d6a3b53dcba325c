package domain

import "errors"

// Domain-level sentinel errors. The service layer maps these onto the
// platform error taxonomy's tagged kinds (see internal/platform/errors).
var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrInvalidQuantity        = errors.New("quantity must be between 1 and 5")
	ErrUnknownShippingMethod  = errors.New("shipping method not recognized")
	ErrMissingAddressField    = errors.New("address is missing a required field")
	ErrMissingIdempotencyKey  = errors.New("idempotency key is required")
	ErrProductNotFound        = errors.New("product not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrReservationNotFound    = errors.New("reservation not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrWrongCaller            = errors.New("reservation does not belong to caller")
	ErrReservationNotActive   = errors.New("reservation is not active")
	ErrIdempotencyMismatch    = errors.New("idempotency token reused with a different payload")
	ErrReservationStateConflict = errors.New("reservation state changed concurrently")
)

// MinLineQuantity and MaxLineQuantity bound a single reserved line.
const (
	MinLineQuantity = 1
	MaxLineQuantity = 5
)

// ValidateQuantity enforces the [MinLineQuantity, MaxLineQuantity] bound on a single cart line.
func ValidateQuantity(q int) error {
	if q < MinLineQuantity || q > MaxLineQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// ValidateShippingMethod enforces the fixed recognized set.
func ValidateShippingMethod(method string) error {
	if !RecognizedShippingMethods[method] {
		return ErrUnknownShippingMethod
	}
	return nil
}

// ValidateAddress enforces that every required field is present.
func ValidateAddress(a Address) error {
	if a.Name == "" || a.Phone == "" || a.Line1 == "" || a.City == "" || a.State == "" || a.Pincode == "" {
		return ErrMissingAddressField
	}
	return nil
}
