package harness

import (
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/strategy"
)

// TraceEvent records one committed rule application of a scenario run.
type TraceEvent struct {
	Seq            int      `json:"seq"`
	Rule           string   `json:"rule"`
	MatchSignature string   `json:"match_signature"`
	ResultCid      pih.Cid  `json:"result_cid"`
	Changes        []string `json:"changes"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success: the strategy outcome
	// matched expect_failure and every assertion held.
	Pass bool `json:"pass"`

	// Run is the underlying strategy execution record.
	Run *strategy.Run `json:"run"`

	// Trace lists the committed applications in journal order. Used by
	// assertions and golden comparison.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages. Empty when Pass.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result to accumulate into.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
	}
}

// AddError records a failure message and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
