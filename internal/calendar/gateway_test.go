package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGateway(Config{
		Mailbox:    "dispatch@example.com",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
}

func TestGetEvent_ParsesAttendees(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s", r.Method)
		}
		if r.URL.Path != "/users/dispatch@example.com/events/ev-1" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"id": "ev-1",
			"subject": "[unconfirmed] Boiler service",
			"showAs": "tentative",
			"attendees": [
				{"type": "required",
				 "status": {"response": "accepted"},
				 "emailAddress": {"name": "Sam Tech", "address": "tech@example.com"}}
			]
		}`))
	})

	ev, err := gw.GetEvent(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.Subject != "[unconfirmed] Boiler service" || ev.ShowAs != ShowAsTentative {
		t.Fatalf("event = %+v", ev)
	}
	if len(ev.Attendees) != 1 || ev.Attendees[0].Email != "tech@example.com" || ev.Attendees[0].Response != ResponseAccepted {
		t.Fatalf("attendees = %+v", ev.Attendees)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if _, err := gw.GetEvent(context.Background(), "gone"); err != ErrEventNotFound {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestPatchEvent_BodyShape(t *testing.T) {
	var got map[string]any
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Fatalf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	subject := "[awaiting customer] Boiler service"
	err := gw.PatchEvent(context.Background(), "ev-1", EventPatch{
		Subject: &subject,
		Attendees: []Attendee{
			{Email: "tech@example.com", Name: "Sam Tech"},
			{Email: "customer@example.com", Name: "Jo Customer"},
		},
	})
	if err != nil {
		t.Fatalf("PatchEvent: %v", err)
	}

	if got["subject"] != subject {
		t.Fatalf("subject = %v", got["subject"])
	}
	attendees, ok := got["attendees"].([]any)
	if !ok || len(attendees) != 2 {
		t.Fatalf("attendees = %v", got["attendees"])
	}
	first := attendees[0].(map[string]any)
	if first["type"] != "required" {
		t.Fatalf("attendee type = %v", first["type"])
	}
	addr := first["emailAddress"].(map[string]any)
	if addr["address"] != "tech@example.com" {
		t.Fatalf("attendee address = %v", addr["address"])
	}
}

func TestPatchEvent_EmptyPatchSkipsRequest(t *testing.T) {
	called := false
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	if err := gw.PatchEvent(context.Background(), "ev-1", EventPatch{}); err != nil {
		t.Fatalf("PatchEvent: %v", err)
	}
	if called {
		t.Fatal("empty patch must not hit the provider")
	}
}

func TestDeleteEvent_ToleratesGone(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotFound, http.StatusGone} {
		gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				t.Fatalf("method = %s", r.Method)
			}
			w.WriteHeader(status)
		})
		if err := gw.DeleteEvent(context.Background(), "ev-1"); err != nil {
			t.Fatalf("status %d: %v", status, err)
		}
	}
}

func TestDeleteEvent_SurfacesServerError(t *testing.T) {
	gw := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	})
	if err := gw.DeleteEvent(context.Background(), "ev-1"); err == nil {
		t.Fatal("expected error on 429")
	}
}
