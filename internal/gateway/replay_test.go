package gateway

import (
	"testing"
	"time"
)

func TestReplaySetSingleUse(t *testing.T) {
	set := NewReplaySet(nil)
	expiry := time.Now().Add(time.Minute)

	if !set.Use("jti-1", expiry) {
		t.Fatal("First use should be admitted")
	}
	if set.Use("jti-1", expiry) {
		t.Error("Second use of the same token should be rejected")
	}
	if !set.Use("jti-2", expiry) {
		t.Error("A different token should be admitted")
	}
}

func TestReplaySetSweep(t *testing.T) {
	set := NewReplaySet(nil)
	now := time.Now()

	set.Use("expired-1", now.Add(-time.Minute))
	set.Use("expired-2", now.Add(-time.Second))
	set.Use("live", now.Add(time.Minute))

	if purged := set.Sweep(now); purged != 2 {
		t.Errorf("Expected 2 purged entries, got %d", purged)
	}
	if set.Size() != 1 {
		t.Errorf("Expected 1 tracked token, got %d", set.Size())
	}

	// A purged key is a fresh token again only if someone re-mints the same
	// jti, which cannot happen after expiry; re-use here is admitted
	if !set.Use("expired-1", now.Add(time.Minute)) {
		t.Error("A swept key should be usable again")
	}
}
