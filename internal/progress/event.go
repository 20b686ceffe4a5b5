// Package progress defines the event structures emitted by site workers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageSiteStart    Stage = "SITE_START"
	StageSiteResolved Stage = "SITE_RESOLVED"
	StageSiteDone     Stage = "SITE_DONE"
)

// Event captures a single component of run progress.
type Event struct {
	// RunID uniquely identifies a batch run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Site is the input site the event belongs to.
	Site string
	// URL is the resolved policy URL, when known.
	URL string
	// Outcome is the terminal status class of a finished site.
	Outcome string
	// Chars is the length of the extracted text in characters.
	Chars int64
	// Dur captures wall time for site and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
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
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageSiteStart, StageSiteResolved:
		if e.Site == "" {
			return fmt.Errorf("%s requires site", e.Stage)
		}
	case StageSiteDone:
		if e.Site == "" {
			return errors.New("site done requires site")
		}
		if e.Outcome == "" {
			return errors.New("site done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID decodes a textual run ID into the Event form.
func ParseRunID(runID string) ([16]byte, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(id), nil
}
