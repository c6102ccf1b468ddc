package sync

import (
	"strings"

	"github.com/fieldops/visitsync/internal/calendar"
	"github.com/fieldops/visitsync/internal/model"
)

// EventResponses derives the (technician, customer) response pair from a
// fetched event's attendee list. Identities match case-insensitively; a
// party absent from the list counts as not having responded.
func EventResponses(ev *calendar.Event, technicianEmail, customerEmail string) (tech, customer model.ResponseState) {
	tech, customer = model.ResponseNone, model.ResponseNone
	if ev == nil {
		return tech, customer
	}
	for _, a := range ev.Attendees {
		switch {
		case strings.EqualFold(a.Email, technicianEmail):
			tech = responseState(a.Response)
		case strings.EqualFold(a.Email, customerEmail):
			customer = responseState(a.Response)
		}
	}
	return tech, customer
}

func responseState(graphResponse string) model.ResponseState {
	switch graphResponse {
	case calendar.ResponseAccepted:
		return model.ResponseAccepted
	case calendar.ResponseDeclined:
		return model.ResponseDeclined
	default:
		// tentativelyAccepted, notResponded, organizer, none: the workflow
		// only moves on a firm accept or decline.
		return model.ResponseNone
	}
}
