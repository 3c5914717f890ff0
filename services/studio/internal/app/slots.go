package app

import (
	"sync"
	"time"
)

// AssetKind names a generatable sub-asset of a package.
type AssetKind string

const (
	AssetThumbnail  AssetKind = "thumbnail"
	AssetSceneImage AssetKind = "sceneImage"
	AssetSceneAudio AssetKind = "sceneAudio"
)

// SlotState is the lifecycle of one asynchronous asset slot. Indeterminate
// states ("is this specific scene's image generating") are a tagged variant
// keyed by slot, not a bare nullable index.
type SlotState string

const (
	SlotIdle      SlotState = "idle"
	SlotInFlight  SlotState = "inFlight"
	SlotSucceeded SlotState = "succeeded"
	SlotFailed    SlotState = "failed"
)

type slotKey struct {
	packageID string
	kind      AssetKind
	index     int
}

type slotRecord struct {
	state     SlotState
	errText   string
	updatedAt time.Time
}

// SlotStatus is the externally visible state of one slot.
type SlotStatus struct {
	Kind      AssetKind `json:"kind"`
	Index     int       `json:"index"`
	State     SlotState `json:"state"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SlotTracker is a per-slot state machine over idle/in-flight/succeeded/
// failed. Slots for different indices are fully independent; only a second
// request for the exact same slot is refused.
type SlotTracker struct {
	mu    sync.Mutex
	slots map[slotKey]slotRecord
}

// NewSlotTracker creates an empty tracker.
func NewSlotTracker() *SlotTracker {
	return &SlotTracker{slots: make(map[slotKey]slotRecord)}
}

// Begin transitions a slot to in-flight, refusing if it already is.
func (t *SlotTracker) Begin(packageID string, kind AssetKind, index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := slotKey{packageID, kind, index}
	if t.slots[key].state == SlotInFlight {
		return ErrSlotBusy
	}
	t.slots[key] = slotRecord{state: SlotInFlight, updatedAt: time.Now().UTC()}
	return nil
}

// Finish records the slot outcome. A nil error marks success.
func (t *SlotTracker) Finish(packageID string, kind AssetKind, index int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := slotKey{packageID, kind, index}
	rec := slotRecord{state: SlotSucceeded, updatedAt: time.Now().UTC()}
	if err != nil {
		rec.state = SlotFailed
		rec.errText = err.Error()
	}
	t.slots[key] = rec
}

// State returns the current state of one slot.
func (t *SlotTracker) State(packageID string, kind AssetKind, index int) SlotState {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.slots[slotKey{packageID, kind, index}]
	if !ok {
		return SlotIdle
	}
	return rec.state
}

// Statuses lists every non-idle slot for a package.
func (t *SlotTracker) Statuses(packageID string) []SlotStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SlotStatus, 0)
	for key, rec := range t.slots {
		if key.packageID != packageID {
			continue
		}
		out = append(out, SlotStatus{
			Kind:      key.kind,
			Index:     key.index,
			State:     rec.state,
			Error:     rec.errText,
			UpdatedAt: rec.updatedAt,
		})
	}
	return out
}

// Forget drops all slot records for a package (after delete).
func (t *SlotTracker) Forget(packageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.slots {
		if key.packageID == packageID {
			delete(t.slots, key)
		}
	}
}
