package sync

import "github.com/fieldops/visitsync/internal/model"

// Action is the closed set of side-effect plans the executor understands.
type Action string

const (
	ActionNone                Action = "no_change"
	ActionTechAccepted        Action = "tech_accepted"
	ActionCustomerAccepted    Action = "customer_accepted"
	ActionTechDeclined        Action = "tech_declined"
	ActionCustomerDeclined    Action = "customer_declined"
	ActionCancelledExternally Action = "cancelled_externally"
)

type Decision struct {
	Action Action
	Next   model.AppointmentStatus
}

// Decide maps the observed calendar state onto the confirmation workflow.
// Pure function; the rule order is a contract: deletions and declines
// pre-empt acceptances, so a simultaneous technician accept and customer
// decline cancels, never confirms.
func Decide(status model.AppointmentStatus, tech, customer model.ResponseState, eventDeleted bool) Decision {
	switch {
	case eventDeleted:
		return Decision{Action: ActionCancelledExternally, Next: model.StatusCancelled}
	case tech == model.ResponseDeclined:
		return Decision{Action: ActionTechDeclined, Next: model.StatusCancelled}
	case customer == model.ResponseDeclined:
		return Decision{Action: ActionCustomerDeclined, Next: model.StatusCancelled}
	case status == model.StatusPendingTech && tech == model.ResponseAccepted:
		return Decision{Action: ActionTechAccepted, Next: model.StatusPendingCustomer}
	case status == model.StatusPendingCustomer && customer == model.ResponseAccepted:
		return Decision{Action: ActionCustomerAccepted, Next: model.StatusConfirmed}
	default:
		return Decision{Action: ActionNone, Next: status}
	}
}

// LinkState classifies an appointment for the public accept/decline link.
// Both the email-link handler and the store's guarded writes derive from
// this single set of rules so the terminal-state invariant lives in one
// place.
type LinkState int

const (
	LinkOpen LinkState = iota
	LinkAlreadyResponded
	LinkNotAwaitingCustomer
)

func CustomerLinkState(appt model.Appointment) LinkState {
	if appt.CustomerResponse != model.ResponseNone {
		return LinkAlreadyResponded
	}
	if appt.Status != model.StatusPendingCustomer {
		return LinkNotAwaitingCustomer
	}
	return LinkOpen
}
