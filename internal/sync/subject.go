package sync

import "strings"

// Event subject markers. The scheduling workflow creates events with the
// unconfirmed marker; the synchronizer advances it as each party accepts.
const (
	MarkerUnconfirmed      = "[unconfirmed]"
	MarkerAwaitingCustomer = "[awaiting customer]"
)

// StripMarker removes any leading confirmation marker from a subject.
// Idempotent: applying it to a clean subject is a no-op.
func StripMarker(subject string) string {
	s := strings.TrimSpace(subject)
	for _, marker := range []string{MarkerUnconfirmed, MarkerAwaitingCustomer} {
		if len(s) >= len(marker) && strings.EqualFold(s[:len(marker)], marker) {
			return strings.TrimSpace(s[len(marker):])
		}
	}
	return s
}

// MarkSubject prefixes the subject with the given marker, replacing any
// marker already present.
func MarkSubject(subject, marker string) string {
	base := StripMarker(subject)
	if base == "" {
		return marker
	}
	return marker + " " + base
}
