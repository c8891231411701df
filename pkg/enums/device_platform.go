package enums

import "fmt"

// DevicePlatform is the client platform that registered a push token.
type DevicePlatform string

const (
	DevicePlatformAndroid DevicePlatform = "android"
	DevicePlatformIOS     DevicePlatform = "ios"
	DevicePlatformWeb     DevicePlatform = "web"
)

var validDevicePlatforms = []DevicePlatform{
	DevicePlatformAndroid,
	DevicePlatformIOS,
	DevicePlatformWeb,
}

// IsValid reports whether the value is known.
func (d DevicePlatform) IsValid() bool {
	for _, candidate := range validDevicePlatforms {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDevicePlatform converts raw input into a DevicePlatform.
func ParseDevicePlatform(value string) (DevicePlatform, error) {
	for _, candidate := range validDevicePlatforms {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid device platform %q", value)
}
