package audio

import (
	"sync"
	"time"
)

// Scheduler assigns gapless back-to-back start times to independently decoded
// audio chunks. Start times follow a running "next available start time"
// watermark: a chunk starts at max(now, watermark), so chunks play in arrival
// order with no silence gap and no overlap.
//
// The active set tracks sources that are queued or playing; its size reflects
// exactly the number of chunks not yet finished.
type Scheduler struct {
	mu        sync.Mutex
	now       func() float64
	watermark float64
	active    map[int]struct{}
	nextID    int
}

// NewScheduler creates a scheduler on the wall clock.
func NewScheduler() *Scheduler {
	epoch := time.Now()
	return newScheduler(func() float64 {
		return time.Since(epoch).Seconds()
	})
}

func newScheduler(clock func() float64) *Scheduler {
	return &Scheduler{
		now:    clock,
		active: make(map[int]struct{}),
	}
}

// Schedule books playback of a chunk with the given duration in seconds and
// returns a source id and the chunk's start time on the scheduler's clock.
func (s *Scheduler) Schedule(duration float64) (id int, start float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start = s.now()
	if s.watermark > start {
		start = s.watermark
	}
	s.watermark = start + duration
	s.nextID++
	id = s.nextID
	s.active[id] = struct{}{}
	return id, start
}

// Complete removes a finished source from the active set.
func (s *Scheduler) Complete(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// Active returns the number of chunks still queued or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// StopAll forcibly stops every queued or playing source and resets the
// watermark. It returns the number of sources stopped. Used on session
// teardown.
func (s *Scheduler) StopAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	stopped := len(s.active)
	s.active = make(map[int]struct{})
	s.watermark = s.now()
	return stopped
}
