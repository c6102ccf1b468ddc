package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fieldops/visitsync/internal/model"
)

type fakeInserter struct {
	inserted []model.ChangeNotification
	err      error
}

func (f *fakeInserter) InsertNotification(_ context.Context, n model.ChangeNotification) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, n)
	return nil
}

func TestWebhook_ValidationHandshake(t *testing.T) {
	h := NewWebhookHandler(&fakeInserter{}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/calendar?validationToken=abc123", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "abc123" {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("content type = %s", ct)
	}
}

func TestWebhook_IngestsNotifications(t *testing.T) {
	store := &fakeInserter{}
	h := NewWebhookHandler(store, "expected-state", slog.New(slog.NewTextHandler(io.Discard, nil)))

	body := `{"value": [
		{"subscriptionId": "sub-1", "changeType": "updated", "clientState": "expected-state", "resourceData": {"id": "ev-1"}},
		{"subscriptionId": "sub-1", "changeType": "deleted", "clientState": "expected-state", "resourceData": {"id": "ev-2"}},
		{"subscriptionId": "sub-2", "changeType": "updated", "clientState": "wrong", "resourceData": {"id": "ev-3"}}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/calendar", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	// The wrong-client-state item is dropped, the rest stored verbatim.
	if len(store.inserted) != 2 {
		t.Fatalf("inserted = %+v", store.inserted)
	}
	if store.inserted[0].ResourceID != "ev-1" || store.inserted[0].ChangeType != model.ChangeUpdated {
		t.Fatalf("first = %+v", store.inserted[0])
	}
	if store.inserted[1].ResourceID != "ev-2" || store.inserted[1].ChangeType != model.ChangeDeleted {
		t.Fatalf("second = %+v", store.inserted[1])
	}
}

func TestWebhook_RejectsBadPayload(t *testing.T) {
	h := NewWebhookHandler(&fakeInserter{}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/calendar", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/webhooks/calendar", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
