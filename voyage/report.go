package voyage

import (
	"sync"
)

// Outcome records the result of one per-file unit of work. Errors never
// propagate past the file-processing boundary; they are converted into
// Outcome records and aggregated on a Report.
type Outcome struct {
	// The owning deployment's identifier.
	Deployment string `json:"deployment"`
	// The bucket key the outcome applies to.
	Path string `json:"path"`
	// The stage the outcome was recorded during.
	Stage string `json:"stage"`
	// The file's final status for this stage.
	Status FileStatus `json:"status"`
	// A short reason for a skipped or failed status.
	Reason string `json:"reason,omitempty"`
	// The underlying error, when Status is StatusFailed.
	Err error `json:"-"`
}

// Report aggregates per-file outcomes across one stage invocation. It is
// safe for concurrent appends.
type Report struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// NewReport returns an empty Report.
func NewReport() *Report {
	return &Report{
		outcomes: make([]Outcome, 0),
	}
}

// Append records o on the report.
func (r *Report) Append(o Outcome) {

	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, o)
}

// Merge appends every outcome from other on to r.
func (r *Report) Merge(other *Report) {

	for _, o := range other.Outcomes() {
		r.Append(o)
	}
}

// Outcomes returns a copy of the report's outcomes in append order.
func (r *Report) Outcomes() []Outcome {

	r.mu.Lock()
	defer r.mu.Unlock()

	outcomes := make([]Outcome, len(r.outcomes))
	copy(outcomes, r.outcomes)

	return outcomes
}

func (r *Report) count(s FileStatus) int {

	r.mu.Lock()
	defer r.mu.Unlock()

	i := 0

	for _, o := range r.outcomes {

		if o.Status == s {
			i += 1
		}
	}

	return i
}

// Succeeded returns the number of successful outcomes.
func (r *Report) Succeeded() int {
	return r.count(StatusSuccess)
}

// Skipped returns the number of skipped outcomes.
func (r *Report) Skipped() int {
	return r.count(StatusSkipped)
}

// Failed returns the number of failed outcomes.
func (r *Report) Failed() int {
	return r.count(StatusFailed)
}

// OK reports whether the run completed with zero failures. Hosts should
// treat a false return as a non-zero completion status even when most of
// the run succeeded.
func (r *Report) OK() bool {
	return r.Failed() == 0
}
