package enums

import "fmt"

// CockStatus is the lifecycle label of a cock record.
type CockStatus string

const (
	CockStatusActive   CockStatus = "active"
	CockStatusInactive CockStatus = "inactive"
	CockStatusSire     CockStatus = "sire"
	CockStatusDam      CockStatus = "dam"
	CockStatusChampion CockStatus = "champion"
	CockStatusRetired  CockStatus = "retired"
	CockStatusSold     CockStatus = "sold"
)

var validCockStatuses = []CockStatus{
	CockStatusActive,
	CockStatusInactive,
	CockStatusSire,
	CockStatusDam,
	CockStatusChampion,
	CockStatusRetired,
	CockStatusSold,
}

// String implements fmt.Stringer.
func (c CockStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is known.
func (c CockStatus) IsValid() bool {
	for _, candidate := range validCockStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCockStatus converts raw input into a CockStatus.
func ParseCockStatus(value string) (CockStatus, error) {
	for _, candidate := range validCockStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cock status %q", value)
}
