package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fieldops/visitsync/internal/reconcile"
	"github.com/fieldops/visitsync/libs/auth"
)

type fakeReconciler struct {
	lastScheduleIDs []string
	summary         reconcile.Summary
}

func (f *fakeReconciler) Run(_ context.Context, _ string, scheduleIDs []string) (reconcile.Summary, error) {
	f.lastScheduleIDs = scheduleIDs
	return f.summary, nil
}

func TestReconcile_BearerTokenAndCounts(t *testing.T) {
	runner := &fakeReconciler{summary: reconcile.Summary{Processed: 3, TechAccepted: 1, Declined: 2}}
	h := NewReconcileHandler(runner, ReconcileAuth{Token: "s3cret", Environment: "production"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/reconcile", strings.NewReader(`{"scheduleIds": ["sched-1", "sched-2"]}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(runner.lastScheduleIDs) != 2 || runner.lastScheduleIDs[0] != "sched-1" {
		t.Fatalf("scheduleIDs = %v", runner.lastScheduleIDs)
	}

	var got reconcile.Summary
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got != runner.summary {
		t.Fatalf("summary = %+v", got)
	}
}

func TestReconcile_ProductionRequiresCredentials(t *testing.T) {
	h := NewReconcileHandler(&fakeReconciler{}, ReconcileAuth{Token: "s3cret", Environment: "production"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no credentials: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d", rec.Code)
	}
}

func TestReconcile_UnauthenticatedAllowedOutsideProduction(t *testing.T) {
	h := NewReconcileHandler(&fakeReconciler{}, ReconcileAuth{Token: "s3cret", Environment: "development"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReconcile_AcceptsServiceJWT(t *testing.T) {
	h := NewReconcileHandler(&fakeReconciler{}, ReconcileAuth{JWTSecret: "jwt-secret", Environment: "production"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	token, err := auth.SignHS256(auth.Claims{
		Sub: "ops-cron",
		Exp: time.Now().Add(time.Minute).Unix(),
		Iat: time.Now().Unix(),
	}, "jwt-secret")
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/reconcile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReconcile_GetNotAllowed(t *testing.T) {
	h := NewReconcileHandler(&fakeReconciler{}, ReconcileAuth{Environment: "development"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/reconcile", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
