package outbox

// Event types published by the synchronizer. Topic name equals event type.
const (
	EventCustomerInvite       = "appointment.customer_invite.v1"
	EventAppointmentConfirmed = "appointment.confirmed.v1"
	EventAppointmentCancelled = "appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table inside the
// same transaction as the state change it announces.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
