package enums

import "fmt"

// PaymentMethod identifies how a plan upgrade was paid.
type PaymentMethod string

const (
	PaymentMethodQRTransfer   PaymentMethod = "qr_transfer"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodMercadoPago  PaymentMethod = "mercadopago"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodQRTransfer,
	PaymentMethodBankTransfer,
	PaymentMethodMercadoPago,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
