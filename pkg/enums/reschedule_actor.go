package enums

// RescheduleActor records who requested a one-time reschedule.
type RescheduleActor string

const (
	RescheduleActorCustomer RescheduleActor = "customer"
	RescheduleActorStaff    RescheduleActor = "staff"
)

// String implements fmt.Stringer.
func (a RescheduleActor) String() string {
	return string(a)
}
