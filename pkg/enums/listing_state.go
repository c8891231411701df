package enums

import "fmt"

// ListingState tracks a marketplace listing.
type ListingState string

const (
	ListingStateForSale ListingState = "for_sale"
	ListingStateSold    ListingState = "sold"
	ListingStatePaused  ListingState = "paused"
)

var validListingStates = []ListingState{
	ListingStateForSale,
	ListingStateSold,
	ListingStatePaused,
}

// String implements fmt.Stringer.
func (l ListingState) String() string {
	return string(l)
}

// IsValid reports whether the value is known.
func (l ListingState) IsValid() bool {
	for _, candidate := range validListingStates {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseListingState converts raw input into a ListingState.
func ParseListingState(value string) (ListingState, error) {
	for _, candidate := range validListingStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing state %q", value)
}
