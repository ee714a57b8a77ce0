package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinBudget(t *testing.T) {
	l := New(5, time.Minute)
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("createMessage", "42") {
			t.Fatalf("request %d rejected within budget", i+1)
		}
	}

	if l.Allow("createMessage", "42") {
		t.Error("request above budget was allowed")
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	if !l.Allow("createMessage", "42") {
		t.Fatal("first request for identity 42 rejected")
	}
	if l.Allow("createMessage", "42") {
		t.Error("second request for identity 42 allowed")
	}
	if !l.Allow("createMessage", "43") {
		t.Error("identity 43 was affected by identity 42's budget")
	}
	if !l.Allow("resetPassword", "42") {
		t.Error("separate action shares identity 42's budget")
	}
}

func TestBudgetRefills(t *testing.T) {
	l := New(2, 100*time.Millisecond)
	defer l.Stop()

	l.Allow("createMessage", "42")
	l.Allow("createMessage", "42")
	if l.Allow("createMessage", "42") {
		t.Fatal("third request within window allowed")
	}

	time.Sleep(120 * time.Millisecond)

	if !l.Allow("createMessage", "42") {
		t.Error("request after the window elapsed was rejected")
	}
}

func TestCleanupDropsIdleEntries(t *testing.T) {
	l := New(1, 10*time.Millisecond)
	defer l.Stop()

	l.Allow("createMessage", "42")
	time.Sleep(50 * time.Millisecond)
	l.cleanup()

	l.mu.Lock()
	remaining := len(l.entries)
	l.mu.Unlock()

	if remaining != 0 {
		t.Errorf("%d entries left after cleanup, expected 0", remaining)
	}
}
