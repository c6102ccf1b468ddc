package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fieldops/visitsync/internal/model"
	"github.com/fieldops/visitsync/internal/outbox"
)

const appointmentColumns = `
	id, ticket_id, status, COALESCE(calendar_event_id, ''),
	technician_email, customer_email,
	technician_response, customer_response,
	technician_accepted_at, customer_accepted_at,
	COALESCE(cancel_reason, ''), created_at`

func (s *Store) AppointmentByID(ctx context.Context, id string) (model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (s *Store) AppointmentByCalendarEventID(ctx context.Context, eventID string) (model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+appointmentColumns+` FROM appointments WHERE calendar_event_id = $1`, eventID)
	return scanAppointment(row)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status, techResp, custResp string
	err := row.Scan(
		&a.ID, &a.TicketID, &status, &a.CalendarEventID,
		&a.TechnicianEmail, &a.CustomerEmail,
		&techResp, &custResp,
		&a.TechnicianAcceptedAt, &a.CustomerAcceptedAt,
		&a.CancelReason, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.AppointmentStatus(status)
	a.TechnicianResponse = model.ResponseState(techResp)
	a.CustomerResponse = model.ResponseState(custResp)
	return a, nil
}

// MarkTechAccepted moves pending_tech -> pending_customer and stamps the
// technician's acceptance time (set once, never cleared). Returns false if
// the guard no longer matched, so concurrent passes can't double-fire.
func (s *Store) MarkTechAccepted(ctx context.Context, id string, at time.Time, events ...outbox.Event) (bool, error) {
	return s.guardedUpdate(ctx, `
		UPDATE appointments
		SET status = 'pending_customer',
		    technician_response = 'accepted',
		    technician_accepted_at = COALESCE(technician_accepted_at, $2)
		WHERE id = $1 AND status = 'pending_tech'
	`, []any{id, at}, "", events)
}

// MarkConfirmed moves pending_customer -> confirmed. The guard on
// customer_response closes the race between the reconciliation path and
// the email-link path: the first writer wins, the second sees no rows.
func (s *Store) MarkConfirmed(ctx context.Context, id string, at time.Time, events ...outbox.Event) (bool, error) {
	return s.guardedUpdate(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    customer_response = 'accepted',
		    customer_accepted_at = COALESCE(customer_accepted_at, $2)
		WHERE id = $1 AND status = 'pending_customer' AND customer_response = 'none'
	`, []any{id, at}, "", events)
}

type CancelParams struct {
	AppointmentID      string
	TicketID           string
	Reason             string
	TechnicianResponse model.ResponseState
	CustomerResponse   model.ResponseState
}

// Cancel marks the appointment cancelled with the observed responses and
// reverts the owning ticket to triaged, in one transaction. No-op (false)
// when the appointment is already cancelled.
func (s *Store) Cancel(ctx context.Context, p CancelParams, events ...outbox.Event) (bool, error) {
	return s.guardedUpdate(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    technician_response = $2,
		    customer_response = $3,
		    cancel_reason = $4
		WHERE id = $1 AND status <> 'cancelled'
	`, []any{p.AppointmentID, string(p.TechnicianResponse), string(p.CustomerResponse), p.Reason}, p.TicketID, events)
}

// DeclineByLink is the customer's email-link decline: same cancellation as
// Cancel but guarded on the link rules, so a second click or a concurrent
// reconciliation pass becomes a no-op.
func (s *Store) DeclineByLink(ctx context.Context, id, ticketID string, events ...outbox.Event) (bool, error) {
	return s.guardedUpdate(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    customer_response = 'declined',
		    cancel_reason = 'customer declined'
		WHERE id = $1 AND status = 'pending_customer' AND customer_response = 'none'
	`, []any{id}, ticketID, events)
}

// guardedUpdate runs a conditional appointment update and, only when it
// applied, reverts the ticket (if revertTicketID is set) and appends outbox
// events, all in one transaction.
func (s *Store) guardedUpdate(ctx context.Context, sql string, args []any, revertTicketID string, events []outbox.Event) (bool, error) {
	var applied bool
	err := s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true

		if revertTicketID != "" {
			if err := revertTicket(ctx, tx, revertTicketID); err != nil {
				return err
			}
		}
		for _, evt := range events {
			if err := s.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
