package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/graftlabs/graft/internal/pih"
)

// TraceSnapshot captures a scenario run for golden comparison. Fields
// are serialized as RFC 8785 canonical JSON so byte equality implies
// semantic equality.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Token        string       `json:"token,omitempty"`
	FinalCid     pih.Cid      `json:"final_cid"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to plain maps for
// pih.MarshalCanonical.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		changes := make([]any, len(ev.Changes))
		for j, c := range ev.Changes {
			changes[j] = c
		}
		traceList[i] = map[string]any{
			"seq":             ev.Seq,
			"rule":            ev.Rule,
			"match_signature": ev.MatchSignature,
			"result_cid":      string(ev.ResultCid),
			"changes":         changes,
		}
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"final_cid":     string(s.FinalCid),
		"trace":         traceList,
	}
	if s.Token != "" {
		result["token"] = s.Token
	}
	return result
}

// RunWithGolden executes a scenario and compares its trace snapshot
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	return result, AssertGolden(t, scenario.Name, scenario.Token, result)
}

// AssertGolden compares an already-obtained result against a golden
// file, without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName, token string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Token:        token,
		Trace:        result.Trace,
	}
	if result.Run != nil {
		snapshot.FinalCid = result.Run.ResultCid
	}

	traceJSON, err := pih.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
