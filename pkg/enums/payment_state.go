package enums

import "fmt"

// PaymentState maps to the pending payment lifecycle.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"
	PaymentStateVerifying PaymentState = "verifying"
	PaymentStateApproved  PaymentState = "approved"
	PaymentStateRejected  PaymentState = "rejected"
)

var validPaymentStates = []PaymentState{
	PaymentStatePending,
	PaymentStateVerifying,
	PaymentStateApproved,
	PaymentStateRejected,
}

// String implements fmt.Stringer.
func (p PaymentState) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PaymentState) IsValid() bool {
	for _, candidate := range validPaymentStates {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentState converts raw input into a PaymentState.
func ParsePaymentState(value string) (PaymentState, error) {
	for _, candidate := range validPaymentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment state %q", value)
}

// Verifiable reports whether an admin may still decide the payment.
func (p PaymentState) Verifiable() bool {
	return p == PaymentStatePending || p == PaymentStateVerifying
}
