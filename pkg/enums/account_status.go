package enums

import "fmt"

// AccountStatus describes the approval state of a user account.
type AccountStatus string

const (
	AccountStatusPending AccountStatus = "pending"
	AccountStatusActive  AccountStatus = "active"
)

var validAccountStatuses = []AccountStatus{
	AccountStatusPending,
	AccountStatusActive,
}

// String returns the literal string for the status.
func (s AccountStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s AccountStatus) IsValid() bool {
	for _, candidate := range validAccountStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAccountStatus converts raw input into an AccountStatus.
func ParseAccountStatus(value string) (AccountStatus, error) {
	for _, candidate := range validAccountStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account status %q", value)
}
