package enums

import "fmt"

// PaymentDecision is the admin verdict on a pending payment.
type PaymentDecision string

const (
	PaymentDecisionApprove PaymentDecision = "approve"
	PaymentDecisionReject  PaymentDecision = "reject"
)

var validPaymentDecisions = []PaymentDecision{
	PaymentDecisionApprove,
	PaymentDecisionReject,
}

// IsValid reports whether the value is known.
func (p PaymentDecision) IsValid() bool {
	for _, candidate := range validPaymentDecisions {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentDecision converts raw input into a PaymentDecision.
func ParsePaymentDecision(value string) (PaymentDecision, error) {
	for _, candidate := range validPaymentDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment decision %q", value)
}
