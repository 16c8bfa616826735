package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/graftlabs/graft/internal/compiler"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
	"github.com/graftlabs/graft/internal/strategy"
)

// LoadMode controls how errors are handled during document loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the compiled documents of a specs directory.
type LoadResult struct {
	Rules      rule.RuleSet
	Queries    rule.QuerySet
	Strategies map[string]strategy.Strategy
	Graphs     []*pih.GraphInstance
	CUEValue   cue.Value // The raw CUE value for additional processing
	FileCount  int       // Number of CUE files found
}

// LoadError represents an error that occurred during document loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDocs loads and compiles the CUE documents of a directory. The
// unified value's top-level fields name the document kinds:
//
//	rule: <name>: {...}      -> rule.RuleDPO
//	query: <name>: {...}     -> rule.Query
//	strategy: <name>: {...}  -> strategy.Strategy
//	graph: <name>: {...}     -> content-addressed pih.GraphInstance
func LoadDocs(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		Rules:      make(rule.RuleSet),
		Queries:    make(rule.QuerySet),
		Strategies: make(map[string]strategy.Strategy),
		CUEValue:   value,
		FileCount:  len(cueFiles),
	}

	stop := forEachField(value, "rule", mode, &errs, func(label string, v cue.Value) error {
		r, err := compiler.CompileRule(v)
		if err != nil {
			return convertCompileError(err, "rule."+label)
		}
		result.Rules[r.ID] = r
		return nil
	})
	if stop {
		return result, errs
	}

	stop = forEachField(value, "query", mode, &errs, func(label string, v cue.Value) error {
		q, err := compiler.CompileQuery(v)
		if err != nil {
			return convertCompileError(err, "query."+label)
		}
		result.Queries[q.ID] = q
		return nil
	})
	if stop {
		return result, errs
	}

	stop = forEachField(value, "strategy", mode, &errs, func(label string, v cue.Value) error {
		s, err := compiler.CompileStrategy(v)
		if err != nil {
			return convertCompileError(err, "strategy."+label)
		}
		result.Strategies[label] = s
		return nil
	})
	if stop {
		return result, errs
	}

	stop = forEachField(value, "graph", mode, &errs, func(label string, v cue.Value) error {
		g, err := compiler.CompileGraph(v)
		if err != nil {
			return convertCompileError(err, "graph."+label)
		}
		result.Graphs = append(result.Graphs, g)
		return nil
	})
	if stop {
		return result, errs
	}

	if len(result.Rules) == 0 && len(result.Queries) == 0 && len(result.Strategies) == 0 && len(result.Graphs) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: "no rules, queries, strategies, or graphs found in specs"})
	}

	return result, errs
}

// forEachField iterates the named top-level struct field, invoking fn
// per entry. Returns true when a fail-fast error should stop loading.
func forEachField(value cue.Value, field string, mode LoadMode, errs *[]error, fn func(label string, v cue.Value) error) bool {
	fv := value.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false
	}
	iter, err := fv.Fields()
	if err != nil {
		*errs = append(*errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating %s documents: %v", field, err)})
		return mode == LoadModeFailFast
	}
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			*errs = append(*errs, err)
			if mode == LoadModeFailFast {
				return true
			}
		}
	}
	return false
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError maps a compiler error to a LoadError with a
// stable code and position.
func convertCompileError(err error, context string) error {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeCompileFailed,
			Message: fmt.Sprintf("%s: %s: %s", context, compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeCompileFailed,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// yamlGraphDoc is the YAML fixture shape for graph documents.
type yamlGraphDoc struct {
	Nodes []struct {
		ID        string         `yaml:"id"`
		Type      string         `yaml:"type"`
		Labels    []string       `yaml:"labels"`
		Attrs     map[string]any `yaml:"attrs"`
		Component string         `yaml:"component"`
	} `yaml:"nodes"`
	Edges []struct {
		ID    string         `yaml:"id"`
		Type  string         `yaml:"type"`
		Label string         `yaml:"label"`
		Src   string         `yaml:"src"`
		Tgt   string         `yaml:"tgt"`
		Attrs map[string]any `yaml:"attrs"`
	} `yaml:"edges"`
	Incidences []struct {
		Edge string `yaml:"edge"`
		Node string `yaml:"node"`
		Role string `yaml:"role"`
		Idx  int    `yaml:"idx"`
	} `yaml:"incidences"`
}

// LoadGraphYAML reads a YAML graph fixture and compiles it into a
// content-addressed graph instance, the same addressing pass CUE graph
// documents go through.
func LoadGraphYAML(path string) (*pih.GraphInstance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading graph fixture: %v", err)}
	}

	var doc yamlGraphDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("%s: %v", path, err)}
	}

	core := pih.GraphCore{}
	idToCid := make(map[string]pih.Cid)

	for _, n := range doc.Nodes {
		if err := pih.ValidateID(n.ID); err != nil {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: %v", path, err)}
		}
		attrs, err := attrsFromGo(n.Attrs)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: node %s: %v", path, n.ID, err)}
		}
		node := pih.Node{Type: n.Type, Labels: n.Labels, Attrs: attrs, ComponentRef: n.Component}
		cid, err := pih.NodeCID(n.ID, node)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: node %s: %v", path, n.ID, err)}
		}
		node.Cid = cid
		idToCid[n.ID] = cid
		core.Nodes = append(core.Nodes, node)
	}

	edgeIDs := make(map[string]pih.Cid)
	for _, e := range doc.Edges {
		if err := pih.ValidateID(e.ID); err != nil {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: %v", path, err)}
		}
		attrs, err := attrsFromGo(e.Attrs)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: edge %s: %v", path, e.ID, err)}
		}
		edge := pih.Edge{Type: e.Type, Label: e.Label, Attrs: attrs}
		if edge.Src, err = resolveEndpoint(e.Src, idToCid); err != nil {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: edge %s: %v", path, e.ID, err)}
		}
		if edge.Tgt, err = resolveEndpoint(e.Tgt, idToCid); err != nil {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: edge %s: %v", path, e.ID, err)}
		}
		cid, err := pih.EdgeCID(e.ID, edge)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: edge %s: %v", path, e.ID, err)}
		}
		edge.Cid = cid
		edgeIDs[e.ID] = cid
		core.Edges = append(core.Edges, edge)
	}

	for _, inc := range doc.Incidences {
		edgeCid, ok := edgeIDs[inc.Edge]
		if !ok {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: incidence references unknown edge %q", path, inc.Edge)}
		}
		nodeCid, ok := idToCid[inc.Node]
		if !ok {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: incidence references unknown node %q", path, inc.Node)}
		}
		role := pih.Role(inc.Role)
		if !pih.ValidRoles[role] {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: invalid incidence role %q", path, inc.Role)}
		}
		core.Incidences = append(core.Incidences, pih.Incidence{
			Edge: edgeCid,
			Node: nodeCid,
			Role: role,
			Idx:  inc.Idx,
		})
	}

	return &pih.GraphInstance{
		Core: core,
		Kind: pih.KindGraph,
		Cid:  pih.SnapshotCID(&core),
	}, nil
}

// LoadGraphFile loads a graph document by extension: .cue documents
// must hold a single top-level graph field, .yaml/.yml are fixtures.
func LoadGraphFile(path string) (*pih.GraphInstance, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return LoadGraphYAML(path)
	case ".cue":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading graph document: %v", err)}
		}
		v := cuecontext.New().CompileString(string(data), cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("%s: %v", path, err)}
		}
		gv := v.LookupPath(cue.ParsePath("graph"))
		if !gv.Exists() {
			return nil, &LoadError{Code: ErrCodeCompileFailed, Message: fmt.Sprintf("%s: no top-level graph field", path)}
		}
		// A graph document may name its graph (graph: <name>: {...}) or
		// declare it inline (graph: {nodes: ...}).
		if nodes := gv.LookupPath(cue.ParsePath("nodes")); !nodes.Exists() {
			iter, err := gv.Fields()
			if err == nil && iter.Next() {
				gv = iter.Value()
			}
		}
		g, err := compiler.CompileGraph(gv)
		if err != nil {
			return nil, convertCompileError(err, "graph")
		}
		return g, nil
	default:
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("unsupported graph document %s: want .cue or .yaml", path)}
	}
}

func attrsFromGo(m map[string]any) (pih.Attrs, error) {
	if len(m) == 0 {
		return nil, nil
	}
	v, err := pih.FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(pih.Object), nil
}

func resolveEndpoint(ref string, nodes map[string]pih.Cid) (string, error) {
	if ref == "" {
		return "", nil
	}
	ep, err := pih.ParseEndpoint(ref)
	if err != nil {
		return "", err
	}
	cid, ok := nodes[string(ep.Node)]
	if !ok {
		return "", fmt.Errorf("endpoint references unknown node %q", ep.Node)
	}
	if ep.Port == "" {
		return string(cid), nil
	}
	return "#" + string(cid) + "." + ep.Port, nil
}

// Error codes for CLI output.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeScanError     = "E002" // Directory scan error
	ErrCodeNoFiles       = "E003" // No CUE files found
	ErrCodeLoadFailed    = "E004" // CUE load failed
	ErrCodeNotFound      = "E005" // Path not found
	ErrCodeBuildFailed   = "E006" // CUE build failed
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeCompileFailed = "E008" // Document compilation failed

	ErrCodeUnknownRule     = "E101" // Rule id not in the loaded set
	ErrCodeUnknownStrategy = "E102" // Strategy name not in the loaded set
	ErrCodeNoMatch         = "E103" // Rule has no applicable match
	ErrCodeStrategyFailed  = "E104" // Strategy execution failed
	ErrCodeStoreFailed     = "E105" // Database operation failed
	ErrCodeReplayDiverged  = "E106" // Replay produced different snapshots
)
