package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldops/visitsync/internal/calendar"
	"github.com/fieldops/visitsync/internal/link"
	"github.com/fieldops/visitsync/internal/model"
	"github.com/fieldops/visitsync/internal/outbox"
	"github.com/fieldops/visitsync/internal/storage"
	"github.com/fieldops/visitsync/internal/sync"
)

// Calendar is the slice of the calendar gateway the executor needs.
type Calendar interface {
	GetEvent(ctx context.Context, eventID string) (*calendar.Event, error)
	PatchEvent(ctx context.Context, eventID string, patch calendar.EventPatch) error
	DeleteEvent(ctx context.Context, eventID string) error
}

// Store is the slice of persistence the runner and executor need.
type Store interface {
	ClaimNotifications(ctx context.Context, limit int, scheduleIDs []string) ([]model.ChangeNotification, error)
	MarkOutcome(ctx context.Context, id int64, scheduleID string, result model.ProcessResult, errMsg string) error
	AppointmentByID(ctx context.Context, id string) (model.Appointment, error)
	AppointmentByCalendarEventID(ctx context.Context, eventID string) (model.Appointment, error)
	TicketByID(ctx context.Context, id string) (model.Ticket, error)
	MarkTechAccepted(ctx context.Context, id string, at time.Time, events ...outbox.Event) (bool, error)
	MarkConfirmed(ctx context.Context, id string, at time.Time, events ...outbox.Event) (bool, error)
	Cancel(ctx context.Context, p storage.CancelParams, events ...outbox.Event) (bool, error)
}

// Input is everything the executor needs to apply one decision.
type Input struct {
	Decision         sync.Decision
	Appointment      model.Appointment
	Ticket           model.Ticket
	Event            *calendar.Event // nil when the remote event is gone
	TechResponse     model.ResponseState
	CustomerResponse model.ResponseState
}

// Executor applies a transition decision: the local write commits first
// (appointment, ticket revert, outbox), then the calendar mutation runs. A
// calendar failure after the commit surfaces as an error on the
// notification but does not undo the local state; the guard clauses keep a
// later pass from firing the same transition twice.
type Executor struct {
	store  Store
	cal    Calendar
	links  link.Builder
	logger *slog.Logger
	now    func() time.Time
}

func NewExecutor(store Store, cal Calendar, links link.Builder, logger *slog.Logger) *Executor {
	return &Executor{store: store, cal: cal, links: links, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (e *Executor) Apply(ctx context.Context, in Input) error {
	switch in.Decision.Action {
	case sync.ActionNone:
		return nil

	case sync.ActionTechAccepted:
		return e.techAccepted(ctx, in)

	case sync.ActionCustomerAccepted:
		return e.customerAccepted(ctx, in)

	case sync.ActionTechDeclined:
		return e.cancel(ctx, in, "technician declined", false)

	case sync.ActionCustomerDeclined:
		return e.cancel(ctx, in, "customer declined", false)

	case sync.ActionCancelledExternally:
		return e.cancel(ctx, in, "deleted externally", true)

	default:
		return fmt.Errorf("unknown transition action %q", in.Decision.Action)
	}
}

func (e *Executor) techAccepted(ctx context.Context, in Input) error {
	appt, tkt := in.Appointment, in.Ticket

	applied, err := e.store.MarkTechAccepted(ctx, appt.ID, e.now(), e.inviteEvent(appt, tkt))
	if err != nil {
		return fmt.Errorf("record technician accept: %w", err)
	}
	if !applied {
		// Another pass already advanced this appointment.
		return nil
	}

	ev := in.Event
	if ev == nil {
		ev = &calendar.Event{}
	}
	subject := sync.MarkSubject(ev.Subject, sync.MarkerAwaitingCustomer)
	attendees := append(append([]calendar.Attendee{}, ev.Attendees...), calendar.Attendee{
		Email: appt.CustomerEmail,
		Name:  tkt.CustomerName,
	})
	if err := e.cal.PatchEvent(ctx, appt.CalendarEventID, calendar.EventPatch{
		Subject:   &subject,
		Attendees: attendees,
	}); err != nil {
		return fmt.Errorf("invite customer on event %s: %w", appt.CalendarEventID, err)
	}
	return nil
}

func (e *Executor) customerAccepted(ctx context.Context, in Input) error {
	appt := in.Appointment

	applied, err := e.store.MarkConfirmed(ctx, appt.ID, e.now(), e.confirmedEvent(appt))
	if err != nil {
		return fmt.Errorf("record customer accept: %w", err)
	}
	if !applied {
		return nil
	}

	ev := in.Event
	if ev == nil {
		ev = &calendar.Event{}
	}
	subject := sync.StripMarker(ev.Subject)
	if err := e.cal.PatchEvent(ctx, appt.CalendarEventID, calendar.EventPatch{
		Subject: &subject,
		ShowAs:  calendar.ShowAsBusy,
	}); err != nil {
		return fmt.Errorf("finalize event %s: %w", appt.CalendarEventID, err)
	}
	return nil
}

// cancel handles all three decline-shaped actions. eventGone means the
// provider already removed the event, so no delete call is issued.
func (e *Executor) cancel(ctx context.Context, in Input, reason string, eventGone bool) error {
	appt := in.Appointment
	if appt.Status == model.StatusCancelled {
		// Idempotent once terminal.
		return nil
	}

	applied, err := e.store.Cancel(ctx, storage.CancelParams{
		AppointmentID:      appt.ID,
		TicketID:           appt.TicketID,
		Reason:             reason,
		TechnicianResponse: in.TechResponse,
		CustomerResponse:   in.CustomerResponse,
	}, e.cancelledEvent(appt, reason))
	if err != nil {
		return fmt.Errorf("record cancellation: %w", err)
	}
	if !applied || eventGone {
		return nil
	}

	if err := e.cal.DeleteEvent(ctx, appt.CalendarEventID); err != nil {
		return fmt.Errorf("delete event %s after cancellation: %w", appt.CalendarEventID, err)
	}
	return nil
}

// inviteEvent carries the signed accept/decline links; the notification
// mailer turns it into the customer confirmation email.
func (e *Executor) inviteEvent(appt model.Appointment, tkt model.Ticket) outbox.Event {
	payload, _ := json.Marshal(map[string]any{
		"schedule_id":    appt.ID,
		"ticket_id":      appt.TicketID,
		"customer_email": appt.CustomerEmail,
		"customer_name":  tkt.CustomerName,
		"accept_url":     e.links.AcceptURL(appt.ID),
		"decline_url":    e.links.DeclineURL(appt.ID),
	})
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventCustomerInvite,
		Payload:       payload,
	}
}

func (e *Executor) confirmedEvent(appt model.Appointment) outbox.Event {
	payload, _ := json.Marshal(map[string]any{
		"schedule_id":  appt.ID,
		"ticket_id":    appt.TicketID,
		"confirmed_at": e.now().Format(time.RFC3339),
	})
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentConfirmed,
		Payload:       payload,
	}
}

func (e *Executor) cancelledEvent(appt model.Appointment, reason string) outbox.Event {
	payload, _ := json.Marshal(map[string]any{
		"schedule_id":  appt.ID,
		"ticket_id":    appt.TicketID,
		"reason":       reason,
		"cancelled_at": e.now().Format(time.RFC3339),
	})
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}
}
