package harness

import (
	"fmt"
	"strings"

	"github.com/graftlabs/graft/internal/pih"
)

// AssertionError describes one failed assertion with enough context to
// debug the scenario without re-running it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "  Trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "    [%d] %s -> %s\n", ev.Seq, ev.Rule, ev.ResultCid)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

// EvaluateAssertions checks every assertion against the run result and
// the final graph, returning one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion, final *pih.Graph) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRuleApplied:
			err = assertRuleApplied(result, a)
		case AssertNodeCount:
			err = assertNodeCount(final, a)
		case AssertEdgeCount:
			err = assertEdgeCount(final, a)
		case AssertLabelCount:
			err = assertLabelCount(final, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

// assertRuleApplied checks that the rule committed exactly the expected
// number of applications.
func assertRuleApplied(result *Result, a Assertion) error {
	actual := 0
	for _, ev := range result.Trace {
		if ev.Rule == a.Rule {
			actual++
		}
	}
	if actual != a.Count {
		return &AssertionError{
			Type:     AssertRuleApplied,
			Expected: fmt.Sprintf("rule %q applied %d time(s)", a.Rule, a.Count),
			Actual:   fmt.Sprintf("applied %d time(s)", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertNodeCount(final *pih.Graph, a Assertion) error {
	if final == nil {
		return fmt.Errorf("no final graph to assert on")
	}
	if final.NodeCount() != a.Count {
		return &AssertionError{
			Type:     AssertNodeCount,
			Expected: fmt.Sprintf("%d node(s)", a.Count),
			Actual:   fmt.Sprintf("%d node(s)", final.NodeCount()),
		}
	}
	return nil
}

func assertEdgeCount(final *pih.Graph, a Assertion) error {
	if final == nil {
		return fmt.Errorf("no final graph to assert on")
	}
	if final.EdgeCount() != a.Count {
		return &AssertionError{
			Type:     AssertEdgeCount,
			Expected: fmt.Sprintf("%d edge(s)", a.Count),
			Actual:   fmt.Sprintf("%d edge(s)", final.EdgeCount()),
		}
	}
	return nil
}

func assertLabelCount(final *pih.Graph, a Assertion) error {
	if final == nil {
		return fmt.Errorf("no final graph to assert on")
	}
	actual := 0
	for _, cid := range final.NodeCids() {
		if final.Node(cid).HasLabel(a.Label) {
			actual++
		}
	}
	if actual != a.Count {
		return &AssertionError{
			Type:     AssertLabelCount,
			Expected: fmt.Sprintf("%d node(s) labelled %q", a.Count, a.Label),
			Actual:   fmt.Sprintf("%d node(s)", actual),
		}
	}
	return nil
}
