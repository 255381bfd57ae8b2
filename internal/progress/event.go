// Package progress defines the event structures emitted by batch runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/pwa-discovery/internal/crawler"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunCheckpoint Stage = "RUN_CHECKPOINT"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageItemDone      Stage = "ITEM_DONE"
)

// Event captures a single step of run progress.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or item milestone occurred.
	Stage Stage
	// Op names the batch operation (discover, crawl, import, describe, dedupe).
	Op string
	// Key identifies the item (domain or link) for item events.
	Key string
	// Status and Reason carry the item outcome.
	Status crawler.Status
	Reason crawler.SkipReason
	// Done and Total report the position within the run.
	Done  int
	Total int
	// Dur captures item latency, or run wall time on completion.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Op == "" {
		return errors.New("op is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunCheckpoint, StageRunDone, StageRunError:
	case StageItemDone:
		if e.Key == "" {
			return errors.New("item done requires key")
		}
		if e.Status == "" {
			return errors.New("item done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// Reporter stamps events for one run so callers only supply the varying
// fields. A nil Reporter or one without an Emitter discards events.
type Reporter struct {
	Emitter Emitter
	RunID   uuid.UUID
	Op      string
	Now     func() time.Time
}

// Emit fills the run identity and timestamp, then forwards the event.
func (r *Reporter) Emit(evt Event) {
	if r == nil || r.Emitter == nil {
		return
	}
	evt.RunID = UUIDToBytes(r.RunID)
	evt.Op = r.Op
	if evt.TS.IsZero() {
		now := time.Now
		if r.Now != nil {
			now = r.Now
		}
		evt.TS = now().UTC()
	}
	r.Emitter.Emit(evt)
}

// NoteCanceled marks a RUN_ERROR event for a run stopped by cancellation.
const NoteCanceled = "canceled"
