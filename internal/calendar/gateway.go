package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// ErrEventNotFound is returned when the provider reports the event gone.
var ErrEventNotFound = errors.New("calendar event not found")

// Attendee response values as Microsoft Graph reports them.
const (
	ResponseAccepted     = "accepted"
	ResponseDeclined     = "declined"
	ResponseNotResponded = "notResponded"
	ResponseTentative    = "tentativelyAccepted"
)

const (
	ShowAsBusy      = "busy"
	ShowAsTentative = "tentative"
)

type Attendee struct {
	Email    string
	Name     string
	Response string
	Type     string
}

type Event struct {
	ID        string
	Subject   string
	ShowAs    string
	Attendees []Attendee
}

// EventPatch is a partial update; nil fields are left untouched. Graph
// replaces the attendee list wholesale, so Attendees must carry the full
// desired list when set.
type EventPatch struct {
	Subject   *string
	Attendees []Attendee
	ShowAs    string
}

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mailbox      string // calendar owner (the technician dispatch mailbox)
	BaseURL      string // override for tests; defaults to the Graph v1.0 endpoint
	HTTPClient   *http.Client
}

// Gateway is a thin Microsoft Graph calendar client scoped to a single
// mailbox. It exposes exactly the operations the synchronizer needs:
// fetch, patch, delete.
type Gateway struct {
	client  *http.Client
	baseURL string
	mailbox string
}

func NewGateway(cfg Config) *Gateway {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = graphBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
			Scopes:       []string{"https://graph.microsoft.com/.default"},
		}
		client = cc.Client(context.Background())
		client.Timeout = 15 * time.Second
	}
	return &Gateway{client: client, baseURL: base, mailbox: cfg.Mailbox}
}

func (g *Gateway) eventURL(eventID string) string {
	return g.baseURL + "/users/" + g.mailbox + "/events/" + eventID
}

// GetEvent fetches subject, busy flag and attendee response statuses.
func (g *Gateway) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.eventURL(eventID)+"?$select=subject,showAs,attendees", nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, ErrEventNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get event", resp)
	}

	var raw graphEvent
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("get event: decode: %w", err)
	}
	return raw.toEvent(), nil
}

// PatchEvent applies a partial update to the event.
func (g *Gateway) PatchEvent(ctx context.Context, eventID string, patch EventPatch) error {
	body := map[string]any{}
	if patch.Subject != nil {
		body["subject"] = *patch.Subject
	}
	if patch.ShowAs != "" {
		body["showAs"] = patch.ShowAs
	}
	if patch.Attendees != nil {
		attendees := make([]map[string]any, 0, len(patch.Attendees))
		for _, a := range patch.Attendees {
			attType := a.Type
			if attType == "" {
				attType = "required"
			}
			attendees = append(attendees, map[string]any{
				"type": attType,
				"emailAddress": map[string]string{
					"address": a.Email,
					"name":    a.Name,
				},
			})
		}
		body["attendees"] = attendees
	}
	if len(body) == 0 {
		return nil
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, g.eventURL(eventID), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("patch event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrEventNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return statusError("patch event", resp)
	}
	return nil
}

// DeleteEvent removes the event. A provider not-found is treated as success
// so retried cancellations stay idempotent.
func (g *Gateway) DeleteEvent(ctx context.Context, eventID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, g.eventURL(eventID), nil)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound, http.StatusGone:
		return nil
	default:
		return statusError("delete event", resp)
	}
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := strings.TrimSpace(string(body))
	if detail == "" {
		return fmt.Errorf("%s failed with status %d", op, resp.StatusCode)
	}
	return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, detail)
}

type graphEvent struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	ShowAs    string `json:"showAs"`
	Attendees []struct {
		Type   string `json:"type"`
		Status struct {
			Response string `json:"response"`
		} `json:"status"`
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"attendees"`
}

func (raw *graphEvent) toEvent() *Event {
	ev := &Event{
		ID:      raw.ID,
		Subject: raw.Subject,
		ShowAs:  raw.ShowAs,
	}
	for _, a := range raw.Attendees {
		ev.Attendees = append(ev.Attendees, Attendee{
			Email:    a.EmailAddress.Address,
			Name:     a.EmailAddress.Name,
			Response: a.Status.Response,
			Type:     a.Type,
		})
	}
	return ev
}
