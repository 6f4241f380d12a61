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
	StageRunStart  Stage = "RUN_START"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
	StagePage      Stage = "PAGE"
	StageItem      Stage = "ITEM"
	StageItemSkip  Stage = "ITEM_SKIP"
	StageHeartbeat Stage = "HEARTBEAT"
	StageRefine    Stage = "REFINE"
)

// Event captures a single milestone of crawl or refine progress.
type Event struct {
	// RunID identifies the session emitting the event.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// SetCode scopes the event to an expansion filter ("ALL" when unfiltered).
	SetCode string
	// Page is the list page number for page-scoped events.
	Page int
	// CardNumber is set on per-item events.
	CardNumber string
	// Processed is the running count of cards handled this run.
	Processed int64
	// Total is the declared result count; 0 when the site did not report one.
	Total int64
	// Rate is the observed throughput in cards per second.
	Rate float64
	// Percent is Processed/Total*100 when Total is known, else 0.
	Percent float64
	// ETA estimates time remaining when Total is known.
	ETA time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError,
		StagePage, StageItem, StageItemSkip, StageHeartbeat, StageRefine:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.ETA < 0 {
		return errors.New("eta must be >= 0")
	}
	return nil
}
