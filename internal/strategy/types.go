package strategy

import (
	"fmt"
	"strings"

	"github.com/graftlabs/graft/internal/pih"
)

// Order selects which match a rule application consumes when several are
// available.
type Order string

const (
	// TopDown takes the first match in the matcher's deterministic order.
	TopDown Order = "top-down"

	// BottomUp takes the last.
	BottomUp Order = "bottom-up"
)

// Strategy is one node of a combinator tree. The concrete variants are
// Seq, Choice, Repeat, Guard, ApplyRule, Scope, and Parallel; nothing
// else implements it.
type Strategy interface {
	fmt.Stringer
	strategyNode()
}

// Seq runs its steps in order and fails at the first failing step.
type Seq struct {
	Steps []Strategy
}

// Choice tries its arms in order and succeeds with the first arm that
// does; a failing arm leaves the graph untouched.
type Choice struct {
	Arms []Strategy
}

// Repeat runs its body until it fails or Max iterations complete.
// Max zero means until fixpoint. Repeat itself always succeeds.
type Repeat struct {
	Body Strategy
	Max  int
}

// Guard branches on whether the named query has at least one match. A
// hit with a nil Then succeeds as a no-op; a miss with a nil Else fails,
// so a bare Guard gates the remainder of a Seq on the query.
type Guard struct {
	Query string
	Then  Strategy
	Else  Strategy
}

// ApplyRule applies the named rule at one match, selected by Order.
// It fails when the rule has no applicable match.
type ApplyRule struct {
	Rule  string
	Order Order
}

// Scope restricts its body's matcher visibility to the subgraph
// reachable from Root.
type Scope struct {
	Root pih.Cid
	Body Strategy
}

// Parallel applies the named rule at up to Max pairwise non-conflicting
// matches in one batch. Max zero means all independent matches. It fails
// when no match applies.
type Parallel struct {
	Rule string
	Max  int
}

func (Seq) strategyNode()       {}
func (Choice) strategyNode()    {}
func (Repeat) strategyNode()    {}
func (Guard) strategyNode()     {}
func (ApplyRule) strategyNode() {}
func (Scope) strategyNode()     {}
func (Parallel) strategyNode()  {}

func (s Seq) String() string {
	return "seq(" + joinStrategies(s.Steps) + ")"
}

func (s Choice) String() string {
	return "choice(" + joinStrategies(s.Arms) + ")"
}

func (s Repeat) String() string {
	if s.Max > 0 {
		return fmt.Sprintf("repeat(%s, max=%d)", s.Body, s.Max)
	}
	return fmt.Sprintf("repeat(%s)", s.Body)
}

func (s Guard) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "guard(%s", s.Query)
	if s.Then != nil {
		fmt.Fprintf(&b, ", then=%s", s.Then)
	}
	if s.Else != nil {
		fmt.Fprintf(&b, ", else=%s", s.Else)
	}
	b.WriteString(")")
	return b.String()
}

func (s ApplyRule) String() string {
	if s.Order == BottomUp {
		return fmt.Sprintf("apply(%s, bottom-up)", s.Rule)
	}
	return fmt.Sprintf("apply(%s)", s.Rule)
}

func (s Scope) String() string {
	return fmt.Sprintf("scope(%s, %s)", s.Root, s.Body)
}

func (s Parallel) String() string {
	if s.Max > 0 {
		return fmt.Sprintf("max_parallel(%s, %d)", s.Rule, s.Max)
	}
	return fmt.Sprintf("max_parallel(%s)", s.Rule)
}

func joinStrategies(list []Strategy) string {
	parts := make([]string, len(list))
	for i, s := range list {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}
