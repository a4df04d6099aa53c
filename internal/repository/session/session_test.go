package session

import (
	"testing"
	"time"
)

func TestDigestIsStableAndOpaque(t *testing.T) {
	a, b := Digest("token-1"), Digest("token-1")
	if a != b || len(a) != 64 {
		t.Fatalf("unexpected digest %q / %q", a, b)
	}
	if a == "token-1" || Digest("token-2") == a {
		t.Fatalf("digest must differ from input and other tokens")
	}
}

func TestExpiredAtBoundary(t *testing.T) {
	now := time.Now()
	if !(Session{ExpiresAt: now}).Expired(now) {
		t.Fatalf("session expiring now must be expired")
	}
	if (Session{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Fatalf("future session must be live")
	}
}
