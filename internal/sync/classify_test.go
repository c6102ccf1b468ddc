package sync

import (
	"testing"

	"github.com/fieldops/visitsync/internal/calendar"
	"github.com/fieldops/visitsync/internal/model"
)

func TestEventResponses_MatchesCaseInsensitively(t *testing.T) {
	ev := &calendar.Event{
		Attendees: []calendar.Attendee{
			{Email: "Tech@Example.COM", Response: calendar.ResponseAccepted},
			{Email: "customer@example.com", Response: calendar.ResponseDeclined},
		},
	}
	tech, cust := EventResponses(ev, "tech@example.com", "CUSTOMER@example.com")
	if tech != model.ResponseAccepted {
		t.Fatalf("tech: got %s", tech)
	}
	if cust != model.ResponseDeclined {
		t.Fatalf("customer: got %s", cust)
	}
}

func TestEventResponses_MissingAttendeeIsNone(t *testing.T) {
	ev := &calendar.Event{
		Attendees: []calendar.Attendee{
			{Email: "tech@example.com", Response: calendar.ResponseAccepted},
		},
	}
	tech, cust := EventResponses(ev, "tech@example.com", "customer@example.com")
	if tech != model.ResponseAccepted || cust != model.ResponseNone {
		t.Fatalf("got %s/%s, want accepted/none", tech, cust)
	}
}

func TestEventResponses_TentativeAndNotRespondedAreNone(t *testing.T) {
	ev := &calendar.Event{
		Attendees: []calendar.Attendee{
			{Email: "tech@example.com", Response: calendar.ResponseTentative},
			{Email: "customer@example.com", Response: calendar.ResponseNotResponded},
		},
	}
	tech, cust := EventResponses(ev, "tech@example.com", "customer@example.com")
	if tech != model.ResponseNone || cust != model.ResponseNone {
		t.Fatalf("got %s/%s, want none/none", tech, cust)
	}
}

func TestEventResponses_NilEvent(t *testing.T) {
	tech, cust := EventResponses(nil, "tech@example.com", "customer@example.com")
	if tech != model.ResponseNone || cust != model.ResponseNone {
		t.Fatalf("got %s/%s, want none/none", tech, cust)
	}
}

func TestStripMarker(t *testing.T) {
	cases := []struct{ in, want string }{
		{"[unconfirmed] Boiler service", "Boiler service"},
		{"[awaiting customer] Boiler service", "Boiler service"},
		{"[Unconfirmed] Boiler service", "Boiler service"},
		{"Boiler service", "Boiler service"},
		{"  [unconfirmed]   Boiler service", "Boiler service"},
		{"[unconfirmed]", ""},
	}
	for _, c := range cases {
		if got := StripMarker(c.in); got != c.want {
			t.Fatalf("StripMarker(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMarkSubject_ReplacesExistingMarker(t *testing.T) {
	got := MarkSubject("[unconfirmed] Boiler service", MarkerAwaitingCustomer)
	if got != "[awaiting customer] Boiler service" {
		t.Fatalf("got %q", got)
	}

	if got := MarkSubject("", MarkerAwaitingCustomer); got != MarkerAwaitingCustomer {
		t.Fatalf("empty subject: got %q", got)
	}
}
