package idletimer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sebas/icd/internal/idletimer"
)

func TestArmFiresOnExpiry(t *testing.T) {
	var mu sync.Mutex
	var fired string
	done := make(chan struct{})

	timer := idletimer.New(
		func(string) time.Duration { return 20 * time.Millisecond },
		func(iapName string) {
			mu.Lock()
			fired = iapName
			mu.Unlock()
			close(done)
		},
	)

	timer.Arm("home", "WLAN_INFRA")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("idle timer never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if fired != "home" {
		t.Fatalf("expected expiry for 'home', got %q", fired)
	}
}

func TestDisarmPreventsExpiry(t *testing.T) {
	fired := make(chan string, 1)
	timer := idletimer.New(
		func(string) time.Duration { return 20 * time.Millisecond },
		func(iapName string) { fired <- iapName },
	)

	timer.Arm("home", "WLAN_INFRA")
	timer.Disarm("home")

	select {
	case iap := <-fired:
		t.Fatalf("expected no expiry after disarm, got %q", iap)
	case <-time.After(60 * time.Millisecond):
	}

	if timer.Armed("home") {
		t.Fatal("expected timer to be disarmed")
	}
}

func TestArmZeroTimeoutIsNoop(t *testing.T) {
	timer := idletimer.New(
		func(string) time.Duration { return 0 },
		func(string) { t.Fatal("onExpire should never fire for zero timeout") },
	)

	timer.Arm("home", "GPRS")
	if timer.Armed("home") {
		t.Fatal("zero timeout should not arm a timer")
	}
}

func TestReArmResetsDeadline(t *testing.T) {
	fired := make(chan string, 1)
	timer := idletimer.New(
		func(string) time.Duration { return 40 * time.Millisecond },
		func(iapName string) { fired <- iapName },
	)

	timer.Arm("home", "WLAN_INFRA")
	time.Sleep(20 * time.Millisecond)
	timer.Arm("home", "WLAN_INFRA") // re-arm, pushing expiry out

	select {
	case <-fired:
		t.Fatal("expected expiry to be pushed out by re-arm")
	case <-time.After(25 * time.Millisecond):
	}

	select {
	case iap := <-fired:
		if iap != "home" {
			t.Fatalf("expected 'home', got %q", iap)
		}
	case <-time.After(time.Second):
		t.Fatal("idle timer never fired after re-arm")
	}
}
