package enums

import "fmt"

// PickupStatus tracks one materialized pickup occurrence. Instances are never
// deleted, only status-terminated.
type PickupStatus string

const (
	PickupStatusScheduled PickupStatus = "scheduled"
	PickupStatusReady     PickupStatus = "ready"
	PickupStatusPickedUp  PickupStatus = "picked_up"
	PickupStatusCancelled PickupStatus = "cancelled"
	PickupStatusNoShow    PickupStatus = "no_show"
)

var validPickupStatuses = []PickupStatus{
	PickupStatusScheduled,
	PickupStatusReady,
	PickupStatusPickedUp,
	PickupStatusCancelled,
	PickupStatusNoShow,
}

// String implements fmt.Stringer.
func (s PickupStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PickupStatus) IsValid() bool {
	for _, candidate := range validPickupStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s PickupStatus) IsTerminal() bool {
	switch s {
	case PickupStatusPickedUp, PickupStatusCancelled, PickupStatusNoShow:
		return true
	default:
		return false
	}
}

// ParsePickupStatus converts raw input into a PickupStatus.
func ParsePickupStatus(value string) (PickupStatus, error) {
	for _, candidate := range validPickupStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pickup status %q", value)
}
