package enums

import "fmt"

// PatrolStatus is the scene-classification verdict attached to a patrol log.
type PatrolStatus string

const (
	PatrolStatusSecure    PatrolStatus = "secure"
	PatrolStatusAttention PatrolStatus = "attention"
	PatrolStatusDanger    PatrolStatus = "danger"
)

var validPatrolStatuses = []PatrolStatus{
	PatrolStatusSecure,
	PatrolStatusAttention,
	PatrolStatusDanger,
}

// String returns the literal string for the status.
func (p PatrolStatus) String() string {
	return string(p)
}

// IsValid reports whether the status is known.
func (p PatrolStatus) IsValid() bool {
	for _, candidate := range validPatrolStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePatrolStatus converts raw input into a PatrolStatus.
func ParsePatrolStatus(value string) (PatrolStatus, error) {
	for _, candidate := range validPatrolStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid patrol status %q", value)
}
