package paxos

import (
	"testing"
	"time"
)

func TestNoopRetryForwardsImmediately(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	trigger := make(chan struct{}, 4)
	out := NoopRetryCoordinator{}.Coordinate(done, trigger)
	for i := 0; i < 3; i++ {
		start := time.Now()
		trigger <- struct{}{}
		select {
		case <-out:
		case <-time.After(time.Second):
			t.Fatal("noop coordinator swallowed a signal")
		}
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			t.Errorf("noop coordinator delayed signal %d by %v", i, elapsed)
		}
	}
}

func TestExponentialBackoffFirstSignalUndelayed(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	trigger := make(chan struct{}, 4)
	out := ExponentialBackoffRetryCoordinator{}.Coordinate(done, trigger)

	start := time.Now()
	trigger <- struct{}{}
	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("first signal never arrived")
	}
	if elapsed := time.Since(start); elapsed > 80*time.Millisecond {
		t.Errorf("initial proposal delayed by %v, must pass immediately", elapsed)
	}

	// The first retry is held back by 2^0 * 100ms.
	start = time.Now()
	trigger <- struct{}{}
	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("first retry never arrived")
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("first retry passed after %v, want about 100ms", elapsed)
	}
}

func TestIncrementalBackoffSchedule(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	trigger := make(chan struct{}, 8)
	c := IncrementalBackoffRetryCoordinator{Initial: 50 * time.Millisecond, Multiplier: 2}
	out := c.Coordinate(done, trigger)

	// Emission 0 immediate, then 50ms and 100ms.
	wantMin := []time.Duration{0, 40 * time.Millisecond, 80 * time.Millisecond}
	for i, min := range wantMin {
		start := time.Now()
		trigger <- struct{}{}
		select {
		case <-out:
		case <-time.After(3 * time.Second):
			t.Fatalf("emission %d never arrived", i)
		}
		if elapsed := time.Since(start); elapsed < min {
			t.Errorf("emission %d passed after %v, want at least %v", i, elapsed, min)
		}
	}
}

func TestCoordinateStopsOnDone(t *testing.T) {
	done := make(chan struct{})
	trigger := make(chan struct{}, 1)
	out := ExponentialBackoffRetryCoordinator{}.Coordinate(done, trigger)
	close(done)
	select {
	case _, ok := <-out:
		if ok {
			t.Error("coordinator emitted after done")
		}
	case <-time.After(time.Second):
		t.Error("coordinator did not close its output after done")
	}
}

func TestCoordinateStopsOnTriggerClose(t *testing.T) {
	done := make(chan struct{})
	defer close(done)
	trigger := make(chan struct{})
	out := NoopRetryCoordinator{}.Coordinate(done, trigger)
	close(trigger)
	select {
	case _, ok := <-out:
		if ok {
			t.Error("coordinator emitted after trigger close")
		}
	case <-time.After(time.Second):
		t.Error("coordinator did not close its output after trigger close")
	}
}
