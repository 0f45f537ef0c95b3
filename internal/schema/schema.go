// Package schema validates persisted graph documents against an
// embedded CUE schema before the engine touches them. Structural
// problems (missing ids, malformed edges, bad arg types) surface here
// with CUE's field-level error messages; semantics stay in the engine.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed graph.cue
var graphCUE string

var (
	compileOnce sync.Once
	cueCtx      *cue.Context
	graphDef    cue.Value
	compileErr  error
)

// compiledSchema compiles the embedded schema once. The shared context
// is reused for documents so values unify directly.
func compiledSchema() (cue.Value, error) {
	compileOnce.Do(func() {
		cueCtx = cuecontext.New()
		v := cueCtx.CompileString(graphCUE)
		if err := v.Err(); err != nil {
			compileErr = fmt.Errorf("compile graph schema: %w", err)
			return
		}
		graphDef = v.LookupPath(cue.ParsePath("#Graph"))
		if err := graphDef.Err(); err != nil {
			compileErr = fmt.Errorf("lookup #Graph: %w", err)
		}
	})
	return graphDef, compileErr
}

// ValidateGraph checks a graph JSON document against the schema.
// Returns nil for valid documents; otherwise an error listing every
// violation CUE found.
func ValidateGraph(data []byte) error {
	def, err := compiledSchema()
	if err != nil {
		return err
	}

	doc := cueCtx.CompileBytes(data)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("graph document is not valid JSON: %w", err)
	}

	merged := def.Unify(doc)
	if err := merged.Validate(cue.Concrete(false)); err != nil {
		return fmt.Errorf("graph document invalid: %s", errors.Details(err, nil))
	}
	return nil
}
