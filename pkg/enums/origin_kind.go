package enums

import "fmt"

// OriginKind records whether a cock was entered by its owner or synthesised as an ancestor of another record.
type OriginKind string

const (
	OriginPrincipal       OriginKind = "principal"
	OriginSynthesisedSire OriginKind = "synthesised_sire"
	OriginSynthesisedDam  OriginKind = "synthesised_dam"
)

var validOriginKinds = []OriginKind{
	OriginPrincipal,
	OriginSynthesisedSire,
	OriginSynthesisedDam,
}

// IsValid reports whether the value is known.
func (o OriginKind) IsValid() bool {
	for _, candidate := range validOriginKinds {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOriginKind converts raw input into an OriginKind.
func ParseOriginKind(value string) (OriginKind, error) {
	for _, candidate := range validOriginKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid origin kind %q", value)
}
