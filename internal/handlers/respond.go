package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldops/visitsync/internal/link"
	"github.com/fieldops/visitsync/internal/model"
	"github.com/fieldops/visitsync/internal/outbox"
	"github.com/fieldops/visitsync/internal/storage"
	"github.com/fieldops/visitsync/internal/sync"
)

// RespondStore is the persistence slice the public link endpoint needs.
type RespondStore interface {
	AppointmentByID(ctx context.Context, id string) (model.Appointment, error)
	MarkConfirmed(ctx context.Context, id string, at time.Time, events ...outbox.Event) (bool, error)
	DeclineByLink(ctx context.Context, id, ticketID string, events ...outbox.Event) (bool, error)
}

// EventDeleter is the calendar slice the decline path needs.
type EventDeleter interface {
	DeleteEvent(ctx context.Context, eventID string) error
}

// RespondHandler serves the signed accept/decline links from customer
// emails. Always HTML, never a redirect: the reader is a person, not a
// client, and the business outcome lives in the page body.
type RespondHandler struct {
	store  RespondStore
	cal    EventDeleter
	secret string
	logger *slog.Logger
	now    func() time.Time
}

func NewRespondHandler(store RespondStore, cal EventDeleter, secret string, logger *slog.Logger) *RespondHandler {
	return &RespondHandler{store: store, cal: cal, secret: secret, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

var respondPage = template.Must(template.New("respond").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title>
<style>body{font-family:sans-serif;max-width:40rem;margin:4rem auto;padding:0 1rem}h1{font-size:1.4rem}</style>
</head>
<body><h1>{{.Title}}</h1><p>{{.Message}}</p></body>
</html>
`))

type pageData struct {
	Title   string
	Message string
}

func (h *RespondHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.render(w, http.StatusMethodNotAllowed, pageData{
			Title:   "Not allowed",
			Message: "This link only supports opening in a browser.",
		})
		return
	}

	q := r.URL.Query()
	action := q.Get("action")
	scheduleID := q.Get("scheduleId")
	token := q.Get("token")

	if scheduleID == "" || token == "" || (action != link.ActionAccept && action != link.ActionDecline) {
		h.render(w, http.StatusBadRequest, pageData{
			Title:   "Invalid link",
			Message: "This link is incomplete. Please use the link from your confirmation email.",
		})
		return
	}

	// A token signs exactly one (appointment, action) pair; swapping the
	// action invalidates it.
	if !link.Verify(h.secret, scheduleID, action, token) {
		h.render(w, http.StatusForbidden, pageData{
			Title:   "Link invalid or expired",
			Message: "This link is no longer valid. Please contact us if you need to change your appointment.",
		})
		return
	}

	appt, err := h.store.AppointmentByID(r.Context(), scheduleID)
	if errors.Is(err, storage.ErrNotFound) {
		h.render(w, http.StatusNotFound, pageData{
			Title:   "Appointment not found",
			Message: "We could not find this appointment. It may have been removed.",
		})
		return
	}
	if err != nil {
		h.logger.Error("load appointment for response link", "schedule_id", scheduleID, "err", err)
		h.render(w, http.StatusInternalServerError, pageData{
			Title:   "Something went wrong",
			Message: "We could not process your response right now. Please try again later.",
		})
		return
	}

	switch sync.CustomerLinkState(appt) {
	case sync.LinkAlreadyResponded:
		h.render(w, http.StatusOK, pageData{
			Title:   "Already responded",
			Message: "We have already recorded your response for this appointment.",
		})
		return
	case sync.LinkNotAwaitingCustomer:
		h.render(w, http.StatusOK, pageData{
			Title:   "No response needed",
			Message: "This appointment is not waiting for your confirmation.",
		})
		return
	}

	if action == link.ActionAccept {
		h.accept(w, r, appt)
		return
	}
	h.decline(w, r, appt)
}

// accept records the customer's confirmation. The calendar is left alone;
// the next reconciliation pass brings it in line.
func (h *RespondHandler) accept(w http.ResponseWriter, r *http.Request, appt model.Appointment) {
	applied, err := h.store.MarkConfirmed(r.Context(), appt.ID, h.now(), confirmedLinkEvent(appt, h.now()))
	if err != nil {
		h.logger.Error("confirm via link", "schedule_id", appt.ID, "err", err)
		h.render(w, http.StatusInternalServerError, pageData{
			Title:   "Something went wrong",
			Message: "We could not record your response right now. Please try again later.",
		})
		return
	}
	if !applied {
		// Lost the race against a concurrent reconciliation pass.
		h.render(w, http.StatusOK, pageData{
			Title:   "Already responded",
			Message: "We have already recorded your response for this appointment.",
		})
		return
	}
	h.render(w, http.StatusOK, pageData{
		Title:   "Appointment confirmed",
		Message: "Thank you! Your appointment is confirmed. We look forward to seeing you.",
	})
}

func (h *RespondHandler) decline(w http.ResponseWriter, r *http.Request, appt model.Appointment) {
	applied, err := h.store.DeclineByLink(r.Context(), appt.ID, appt.TicketID, cancelledLinkEvent(appt, h.now()))
	if err != nil {
		h.logger.Error("decline via link", "schedule_id", appt.ID, "err", err)
		h.render(w, http.StatusInternalServerError, pageData{
			Title:   "Something went wrong",
			Message: "We could not record your response right now. Please try again later.",
		})
		return
	}
	if !applied {
		h.render(w, http.StatusOK, pageData{
			Title:   "Already responded",
			Message: "We have already recorded your response for this appointment.",
		})
		return
	}

	// Best effort: the cancellation is committed, a leftover event is
	// cleaned up on a later pass or manually.
	if appt.CalendarEventID != "" {
		if err := h.cal.DeleteEvent(r.Context(), appt.CalendarEventID); err != nil {
			h.logger.Error("delete event after link decline",
				"schedule_id", appt.ID, "event_id", appt.CalendarEventID, "err", err)
		}
	}

	h.render(w, http.StatusOK, pageData{
		Title:   "Appointment cancelled",
		Message: "Your appointment has been cancelled. We will be in touch to reschedule.",
	})
}

func (h *RespondHandler) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := respondPage.Execute(w, data); err != nil {
		h.logger.Error("render response page", "err", err)
	}
}

func confirmedLinkEvent(appt model.Appointment, at time.Time) outbox.Event {
	payload, _ := json.Marshal(map[string]any{
		"schedule_id":  appt.ID,
		"ticket_id":    appt.TicketID,
		"confirmed_at": at.Format(time.RFC3339),
		"via":          "link",
	})
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentConfirmed,
		Payload:       payload,
	}
}

func cancelledLinkEvent(appt model.Appointment, at time.Time) outbox.Event {
	payload, _ := json.Marshal(map[string]any{
		"schedule_id":  appt.ID,
		"ticket_id":    appt.TicketID,
		"reason":       "customer declined",
		"cancelled_at": at.Format(time.RFC3339),
		"via":          "link",
	})
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}
}
