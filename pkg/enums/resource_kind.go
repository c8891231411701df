package enums

import "fmt"

// ResourceKind names a quota-tracked record family.
type ResourceKind string

const (
	ResourceCocks     ResourceKind = "cocks"
	ResourceTrainings ResourceKind = "trainings"
	ResourceFights    ResourceKind = "fights"
	ResourceVaccines  ResourceKind = "vaccines"
)

var validResourceKinds = []ResourceKind{
	ResourceCocks,
	ResourceTrainings,
	ResourceFights,
	ResourceVaccines,
}

// String implements fmt.Stringer.
func (r ResourceKind) String() string {
	return string(r)
}

// IsValid reports whether the value is known.
func (r ResourceKind) IsValid() bool {
	for _, candidate := range validResourceKinds {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseResourceKind converts raw input into a ResourceKind.
func ParseResourceKind(value string) (ResourceKind, error) {
	for _, candidate := range validResourceKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid resource kind %q", value)
}

// PerCock reports whether the kind is counted per parent cock rather than
// per owner.
func (r ResourceKind) PerCock() bool {
	return r == ResourceTrainings || r == ResourceFights || r == ResourceVaccines
}
