package enums

import "fmt"

// HydrationStatus tracks whether a device session has resolved its identity.
// Initializing means the session source has not answered yet; dependents must
// not treat it as "no user".
type HydrationStatus string

const (
	HydrationInitializing  HydrationStatus = "initializing"
	HydrationAuthenticated HydrationStatus = "authenticated"
	HydrationGuest         HydrationStatus = "guest"
	HydrationError         HydrationStatus = "error"
)

var validHydrationStatuses = []HydrationStatus{
	HydrationInitializing,
	HydrationAuthenticated,
	HydrationGuest,
	HydrationError,
}

// String implements fmt.Stringer.
func (h HydrationStatus) String() string {
	return string(h)
}

// Resolved reports whether the status is terminal: the session source has
// answered, even if the answer was a fetch failure.
func (h HydrationStatus) Resolved() bool {
	return h == HydrationAuthenticated || h == HydrationGuest || h == HydrationError
}

// IsValid reports whether the value is a known HydrationStatus.
func (h HydrationStatus) IsValid() bool {
	for _, candidate := range validHydrationStatuses {
		if candidate == h {
			return true
		}
	}
	return false
}

// ParseHydrationStatus converts raw input into a HydrationStatus.
func ParseHydrationStatus(value string) (HydrationStatus, error) {
	for _, candidate := range validHydrationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid hydration status %q", value)
}
