package monitor

import (
	"fmt"
	"testing"
	"time"
)

func TestTracker_ShouldProcessOnce(t *testing.T) {
	tracker := NewTracker(TrackerOptions{})

	if !tracker.ShouldProcess("sig1") {
		t.Fatal("first ShouldProcess must return true")
	}
	for i := 0; i < 3; i++ {
		if tracker.ShouldProcess("sig1") {
			t.Fatal("repeated ShouldProcess must return false")
		}
	}
	if !tracker.ShouldProcess("sig2") {
		t.Fatal("a different signature must pass")
	}
}

func TestTracker_DoneClearsInFlightOnly(t *testing.T) {
	tracker := NewTracker(TrackerOptions{})

	tracker.ShouldProcess("sig1")
	if got := tracker.InFlightCount(); got != 1 {
		t.Fatalf("InFlightCount = %d, want 1", got)
	}

	tracker.Done("sig1")
	if got := tracker.InFlightCount(); got != 0 {
		t.Errorf("InFlightCount after Done = %d, want 0", got)
	}
	if tracker.ShouldProcess("sig1") {
		t.Error("Done must not forget the signature")
	}
}

func TestTracker_EvictionBoundsSeenSet(t *testing.T) {
	tracker := NewTracker(TrackerOptions{MaxSeen: 3})

	for i := 0; i < 5; i++ {
		tracker.ShouldProcess(fmt.Sprintf("sig%d", i))
	}

	if got := tracker.SeenCount(); got != 3 {
		t.Fatalf("SeenCount = %d, want 3", got)
	}

	// Oldest entries were evicted and may be processed again.
	if !tracker.ShouldProcess("sig0") {
		t.Error("evicted signature should pass ShouldProcess again")
	}
	// Newest survivors are still deduplicated.
	if tracker.ShouldProcess("sig4") {
		t.Error("recent signature must still be deduplicated")
	}
}

func TestTracker_EvictionKeepsInFlightSubsetOfSeen(t *testing.T) {
	tracker := NewTracker(TrackerOptions{MaxSeen: 2})

	tracker.ShouldProcess("sig0")
	tracker.ShouldProcess("sig1")
	tracker.ShouldProcess("sig2") // evicts sig0

	if got, want := tracker.SeenCount(), 2; got != want {
		t.Fatalf("SeenCount = %d, want %d", got, want)
	}
	if got, want := tracker.InFlightCount(), 2; got != want {
		t.Errorf("InFlightCount = %d, want %d (evicted entry removed)", got, want)
	}
}

func TestTracker_SweepRemovesStaleInFlight(t *testing.T) {
	tracker := NewTracker(TrackerOptions{MaxInFlightAge: 10 * time.Minute})

	now := time.Now()
	tracker.now = func() time.Time { return now }
	tracker.ShouldProcess("old")

	tracker.now = func() time.Time { return now.Add(11 * time.Minute) }
	tracker.ShouldProcess("fresh")

	if removed := tracker.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d, want 1", removed)
	}
	if got := tracker.InFlightCount(); got != 1 {
		t.Errorf("InFlightCount = %d, want 1", got)
	}
	// The seen set is untouched by sweeps.
	if tracker.ShouldProcess("old") {
		t.Error("swept signature must stay in the seen set")
	}
}
