package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldops/visitsync/internal/calendar"
	"github.com/fieldops/visitsync/internal/link"
	"github.com/fieldops/visitsync/internal/model"
	"github.com/fieldops/visitsync/internal/storage"
	"github.com/fieldops/visitsync/internal/sync"
	otelx "github.com/fieldops/visitsync/libs/otel"
)

const defaultBatchSize = 50

// Summary counts what one reconciliation run did.
type Summary struct {
	Processed        int `json:"processed"`
	TechAccepted     int `json:"techAccepted"`
	CustomerAccepted int `json:"customerAccepted"`
	Declined         int `json:"declined"`
	Skipped          int `json:"skipped"`
	Errors           int `json:"errors"`
}

type Config struct {
	BatchSize int
}

// Runner drains claimed change notifications through the transition engine.
// Every run is self-contained: claim a batch, process each row, record its
// outcome. Timer runs and on-demand runs share this path.
type Runner struct {
	store     Store
	cal       Calendar
	exec      *Executor
	logger    *slog.Logger
	batchSize int
}

func NewRunner(store Store, cal Calendar, links link.Builder, logger *slog.Logger, cfg Config) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Runner{
		store:     store,
		cal:       cal,
		exec:      NewExecutor(store, cal, links, logger),
		logger:    logger,
		batchSize: cfg.BatchSize,
	}
}

// Run claims one batch of unprocessed notifications and processes it. A
// non-empty scheduleIDs narrows the claim to those appointments. Only the
// claim itself can fail the run; per-notification failures are recorded on
// the row and counted, never propagated.
func (r *Runner) Run(ctx context.Context, trigger string, scheduleIDs []string) (Summary, error) {
	var sum Summary

	claimed, err := r.store.ClaimNotifications(ctx, r.batchSize, scheduleIDs)
	if err != nil {
		return sum, fmt.Errorf("claim notifications: %w", err)
	}

	for _, n := range claimed {
		// Continue the trace the webhook started.
		nCtx := otelx.ContextWithTraceContext(ctx, n.Traceparent, n.Tracestate)
		r.processOne(nCtx, n, &sum)
	}

	if len(claimed) > 0 || trigger != "timer" {
		r.logger.Info("reconciliation run complete",
			"trigger", trigger,
			"claimed", len(claimed),
			"processed", sum.Processed,
			"tech_accepted", sum.TechAccepted,
			"customer_accepted", sum.CustomerAccepted,
			"declined", sum.Declined,
			"skipped", sum.Skipped,
			"errors", sum.Errors,
		)
	}
	return sum, nil
}

func (r *Runner) processOne(ctx context.Context, n model.ChangeNotification, sum *Summary) {
	scheduleID, result, errMsg := r.reconcile(ctx, n, sum)

	switch result {
	case model.ResultSuccess:
		sum.Processed++
	case model.ResultSkipped:
		sum.Skipped++
	case model.ResultError:
		sum.Errors++
		r.logger.Error("notification processing failed",
			"notification_id", n.ID,
			"resource_id", n.ResourceID,
			"schedule_id", scheduleID,
			"err", errMsg,
		)
	}

	if err := r.store.MarkOutcome(ctx, n.ID, scheduleID, result, errMsg); err != nil {
		r.logger.Error("record notification outcome", "notification_id", n.ID, "err", err)
	}
}

// reconcile resolves one claimed notification to an appointment, reads the
// current event state, decides the transition and applies it.
func (r *Runner) reconcile(ctx context.Context, n model.ChangeNotification, sum *Summary) (scheduleID string, result model.ProcessResult, errMsg string) {
	appt, err := r.resolveAppointment(ctx, n)
	if errors.Is(err, storage.ErrNotFound) {
		return "", model.ResultSkipped, "no appointment for resource"
	}
	if err != nil {
		return "", model.ResultError, err.Error()
	}

	tkt, err := r.store.TicketByID(ctx, appt.TicketID)
	if errors.Is(err, storage.ErrNotFound) {
		return appt.ID, model.ResultSkipped, "ticket missing"
	}
	if err != nil {
		return appt.ID, model.ResultError, err.Error()
	}

	// The notification's change type is a hint only; the event itself is
	// the source of truth for responses, and a 404 on fetch means deleted
	// regardless of what the notification claimed.
	deleted := n.ChangeType == model.ChangeDeleted
	var ev *calendar.Event
	if !deleted {
		ev, err = r.cal.GetEvent(ctx, appt.CalendarEventID)
		if errors.Is(err, calendar.ErrEventNotFound) {
			deleted = true
		} else if err != nil {
			return appt.ID, model.ResultError, err.Error()
		}
	}

	tech, cust := model.ResponseNone, model.ResponseNone
	if ev != nil {
		tech, cust = sync.EventResponses(ev, appt.TechnicianEmail, appt.CustomerEmail)
	}

	d := sync.Decide(appt.Status, tech, cust, deleted)
	if err := r.exec.Apply(ctx, Input{
		Decision:         d,
		Appointment:      appt,
		Ticket:           tkt,
		Event:            ev,
		TechResponse:     tech,
		CustomerResponse: cust,
	}); err != nil {
		return appt.ID, model.ResultError, err.Error()
	}

	switch d.Action {
	case sync.ActionTechAccepted:
		sum.TechAccepted++
	case sync.ActionCustomerAccepted:
		sum.CustomerAccepted++
	case sync.ActionTechDeclined, sync.ActionCustomerDeclined, sync.ActionCancelledExternally:
		sum.Declined++
	}
	return appt.ID, model.ResultSuccess, ""
}

// resolveAppointment prefers the schedule id stamped on the notification and
// falls back to the calendar resource id.
func (r *Runner) resolveAppointment(ctx context.Context, n model.ChangeNotification) (model.Appointment, error) {
	if n.ScheduleID != "" {
		return r.store.AppointmentByID(ctx, n.ScheduleID)
	}
	return r.store.AppointmentByCalendarEventID(ctx, n.ResourceID)
}

// RunEvery drives timer-based reconciliation until ctx is cancelled. The
// calendar provider drops notifications, so the timer is the safety net that
// keeps missed changes from going stale.
func (r *Runner) RunEvery(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.logger.Info("reconciliation timer started", "interval", every.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciliation timer stopped")
			return
		case <-ticker.C:
			if _, err := r.Run(ctx, "timer", nil); err != nil {
				r.logger.Error("reconciliation run failed", "err", err)
			}
		}
	}
}
