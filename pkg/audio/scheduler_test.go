package audio

import "testing"

func TestSchedulerGaplessOrdering(t *testing.T) {
	clock := 10.0
	s := newScheduler(func() float64 { return clock })

	_, start1 := s.Schedule(2.0)
	if start1 != 10.0 {
		t.Fatalf("first chunk should start now, got %g", start1)
	}
	_, start2 := s.Schedule(1.5)
	if start2 != 12.0 {
		t.Fatalf("second chunk should start at watermark, got %g", start2)
	}
	_, start3 := s.Schedule(0.5)
	if start3 != 13.5 {
		t.Fatalf("third chunk should start at watermark, got %g", start3)
	}
}

func TestSchedulerIdleGapResetsToNow(t *testing.T) {
	clock := 0.0
	s := newScheduler(func() float64 { return clock })

	s.Schedule(1.0)
	// Playback finished long ago; next chunk starts immediately, not at the
	// stale watermark.
	clock = 50.0
	_, start := s.Schedule(1.0)
	if start != 50.0 {
		t.Fatalf("expected start at now after idle gap, got %g", start)
	}
}

func TestSchedulerActiveSetAndStopAll(t *testing.T) {
	clock := 0.0
	s := newScheduler(func() float64 { return clock })

	id1, _ := s.Schedule(1.0)
	id2, _ := s.Schedule(1.0)
	s.Schedule(1.0)
	if got := s.Active(); got != 3 {
		t.Fatalf("expected 3 active sources, got %d", got)
	}

	s.Complete(id1)
	s.Complete(id2)
	if got := s.Active(); got != 1 {
		t.Fatalf("expected 1 active source, got %d", got)
	}
	// Completing twice is harmless.
	s.Complete(id1)
	if got := s.Active(); got != 1 {
		t.Fatalf("expected 1 active source after double complete, got %d", got)
	}

	clock = 0.5
	if stopped := s.StopAll(); stopped != 1 {
		t.Fatalf("expected StopAll to report 1, got %d", stopped)
	}
	if got := s.Active(); got != 0 {
		t.Fatalf("expected empty active set after StopAll, got %d", got)
	}
	// Watermark reset: the next chunk starts at now.
	_, start := s.Schedule(1.0)
	if start != 0.5 {
		t.Fatalf("expected start at now after StopAll, got %g", start)
	}
}
