package link

import (
	"net/url"
	"strings"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	token := Token("secret", "sched-1", ActionAccept)
	if !Verify("secret", "sched-1", ActionAccept, token) {
		t.Fatal("freshly minted token must verify")
	}
}

func TestToken_BoundToActionAndSchedule(t *testing.T) {
	token := Token("secret", "sched-1", ActionAccept)

	// Flipping the action with the same token must fail.
	if Verify("secret", "sched-1", ActionDecline, token) {
		t.Fatal("accept token verified as decline")
	}
	if Verify("secret", "sched-2", ActionAccept, token) {
		t.Fatal("token verified for a different appointment")
	}
	if Verify("other-secret", "sched-1", ActionAccept, token) {
		t.Fatal("token verified under a different secret")
	}
}

func TestVerify_RejectsGarbage(t *testing.T) {
	if Verify("secret", "sched-1", ActionAccept, "") {
		t.Fatal("empty token verified")
	}
	if Verify("secret", "sched-1", ActionAccept, "not-a-token") {
		t.Fatal("garbage token verified")
	}
}

func TestBuilder_URLs(t *testing.T) {
	b := Builder{BaseURL: "https://visits.example.com/", Secret: "secret"}

	raw := b.DeclineURL("sched-7")
	if !strings.HasPrefix(raw, "https://visits.example.com/respond?") {
		t.Fatalf("unexpected prefix: %s", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("action") != ActionDecline || q.Get("scheduleId") != "sched-7" {
		t.Fatalf("unexpected query: %s", u.RawQuery)
	}
	if !Verify("secret", "sched-7", ActionDecline, q.Get("token")) {
		t.Fatal("embedded token does not verify")
	}
}
