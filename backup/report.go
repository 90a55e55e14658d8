package backup

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/stupid-simple/rotate/artifact"
	"github.com/stupid-simple/rotate/retention"
	"github.com/stupid-simple/rotate/rotation"
)

type ResourceStatus string

const (
	// A new artifact was staged and rotated.
	ResourceProduced ResourceStatus = "produced"
	// The staging bucket of this run already holds the artifact.
	ResourceExisting ResourceStatus = "existing"
	ResourceFailed   ResourceStatus = "failed"
	ResourcePlanned  ResourceStatus = "planned"
	ResourceSkipped  ResourceStatus = "skipped"
)

type ResourceReport struct {
	Producer     string
	Name         artifact.Name
	Path         string
	Status       ResourceStatus
	Err          error
	StagingPrune *retention.Result
	Outcomes     []rotation.Outcome
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r ResourceReport) MarshalZerologObject(e *zerolog.Event) {
	e.Str("producer", r.Producer)
	e.Str("logical", r.Name.Logical)
	e.Str("extension", r.Name.Extension)
	e.Str("status", string(r.Status))
	if r.Err != nil {
		e.AnErr("cause", r.Err)
	}
	copied := 0
	for _, o := range r.Outcomes {
		if o.Status == rotation.StatusCopied {
			copied++
		}
	}
	e.Int("tier_copies", copied)
}

type SyncReport struct {
	Syncer  string
	Err     error
	Seconds float64
}

type Report struct {
	RunID     string
	StartedAt time.Time
	Now       time.Time
	Duration  time.Duration
	Resources []ResourceReport
	Syncs     []SyncReport
}

// Copied returns the number of tier copies made.
func (r *Report) Copied() int {
	n := 0
	for _, res := range r.Resources {
		for _, o := range res.Outcomes {
			if o.Status == rotation.StatusCopied {
				n++
			}
		}
	}
	return n
}

// Failed returns the number of failed resources, tier copies and syncs.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Resources {
		if res.Status == ResourceFailed {
			n++
		}
		for _, o := range res.Outcomes {
			if o.Status == rotation.StatusCopyFailed {
				n++
			}
		}
	}
	for _, s := range r.Syncs {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("run_id", r.RunID)
	e.Time("now", r.Now)
	e.Int("resources", len(r.Resources))
	e.Int("copied", r.Copied())
	e.Int("failed", r.Failed())
	e.Int("syncs", len(r.Syncs))
}
