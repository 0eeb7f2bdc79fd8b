// Package progress defines the run events emitted by the land pipelines.
package progress

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported run stages.
const (
	StageRunStart Stage = "RUN_START"
	StageRunStep  Stage = "RUN_STEP"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
	StagePageDone Stage = "PAGE_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes tracked for page completions. StatusNone covers
// unreachable pages recorded with the "000" pseudo-status.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusNone  StatusClass = "none"
	StatusOther StatusClass = "other"
)

// Event captures one milestone of a pipeline run.
type Event struct {
	// RunID identifies a run in its 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Operation names the pipeline verb (crawl, readable, consolidate,
	// medianalyse, domain, heuristics).
	Operation string
	// Land scopes the event to a land name; empty for land-less runs.
	Land string
	// URL is the optional page or media URL.
	URL string
	// Processed and Errors carry run counters for step and terminal
	// stages.
	Processed int64
	Errors    int64
	// StatusClass groups HTTP statuses for page completions.
	StatusClass StatusClass
	// Dur captures latency for page completions and finished runs.
	Dur time.Duration
	// Note attaches low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunStep, StageRunDone, StageRunError:
		if e.Operation == "" {
			return errors.New("run stages require an operation")
		}
	case StagePageDone:
		if e.StatusClass == "" {
			return errors.New("page done requires a status class")
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

// NewRunID allocates a run identifier.
func NewRunID() [16]byte {
	return UUIDToBytes(uuid.New())
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups the stored three-digit status strings. The
// "000" pseudo-status of unreachable pages maps to StatusNone.
func ClassifyStatus(status string) StatusClass {
	if status == "000" {
		return StatusNone
	}
	code, err := strconv.Atoi(status)
	if err != nil {
		return StatusOther
	}
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
