package link

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
)

// Link actions a customer can take from the confirmation email.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

// Token returns the keyed hash binding a (scheduleID, action) pair. Each
// action gets its own token, so a link can't be replayed as the other
// action.
func Token(secret, scheduleID, action string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(scheduleID + "|" + action))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the token and compares in constant time.
func Verify(secret, scheduleID, action, token string) bool {
	return hmac.Equal([]byte(Token(secret, scheduleID, action)), []byte(token))
}

// Builder mints the absolute accept/decline URLs embedded in customer
// emails.
type Builder struct {
	BaseURL string // public origin of this service, e.g. https://visits.example.com
	Secret  string
}

func (b Builder) AcceptURL(scheduleID string) string {
	return b.buildURL(scheduleID, ActionAccept)
}

func (b Builder) DeclineURL(scheduleID string) string {
	return b.buildURL(scheduleID, ActionDecline)
}

func (b Builder) buildURL(scheduleID, action string) string {
	q := url.Values{}
	q.Set("action", action)
	q.Set("scheduleId", scheduleID)
	q.Set("token", Token(b.Secret, scheduleID, action))
	return strings.TrimRight(b.BaseURL, "/") + "/respond?" + q.Encode()
}
