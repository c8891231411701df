package billing

import (
	"strings"
	"time"
)

// Plan codes seeded in the catalogue.
const (
	PlanGratis       = "gratis"
	PlanBasic        = "basic"
	PlanPremium      = "premium"
	PlanProfessional = "professional"
)

// RecommendedUpgrade names the plan to suggest when an owner on current hits
// a cap.
func RecommendedUpgrade(current string) string {
	switch strings.ToLower(strings.TrimSpace(current)) {
	case PlanGratis, PlanBasic:
		return PlanPremium
	default:
		return PlanProfessional
	}
}

// Today truncates t to a UTC calendar day. Subscription dates are whole days.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
