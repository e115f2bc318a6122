package generator

import (
	"time"

	"github.com/oshokin/wallet-pass/internal/bundle"
	"github.com/oshokin/wallet-pass/internal/domain/failure"
	"github.com/oshokin/wallet-pass/internal/roster"
)

// Outcome is the result of one member pipeline.
type Outcome struct {
	// Slug names the member's artifacts.
	Slug string
	// Name is the member's full name.
	Name string
	// Archive is set on success.
	Archive *bundle.Archive
	// Err is set on failure and wraps a failure sentinel.
	Err error
}

// Kind classifies a failed outcome.
func (o *Outcome) Kind() string {
	return failure.Kind(o.Err)
}

// Summary tallies a run.
type Summary struct {
	// RunID identifies the run.
	RunID string
	// Succeeded and Failed keep roster order.
	Succeeded []Outcome
	Failed    []Outcome
	// Skipped are roster rows rejected by validation.
	Skipped []*roster.RowError
	// Elapsed is the wall time spent on the batch.
	Elapsed time.Duration
}

// OK reports whether every roster row produced a pass.
func (s *Summary) OK() bool {
	return len(s.Failed) == 0 && len(s.Skipped) == 0
}

// FailuresByKind counts failed members per failure class.
func (s *Summary) FailuresByKind() map[string]int {
	counts := make(map[string]int, len(s.Failed))

	for i := range s.Failed {
		counts[s.Failed[i].Kind()]++
	}

	return counts
}

func (s *Summary) add(outcomes []Outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			s.Failed = append(s.Failed, o)
		} else {
			s.Succeeded = append(s.Succeeded, o)
		}
	}
}
