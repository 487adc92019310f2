package stream

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/quietlab/explog/internal/meta"
)

// compileSchema parses a stream's CUE payload schema.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// A schema constrains every payload logged to the stream, e.g.:
//
//	{ x: int, y: int, label?: string }
func (r *Registry) compileSchema(name, src string) (cue.Value, error) {
	v := r.cue.CompileString(src)
	if err := v.Err(); err != nil {
		return cue.Value{}, &meta.ConfigurationError{
			Op:      "register stream",
			Message: fmt.Sprintf("%s: invalid schema: %v", name, err),
		}
	}
	return v, nil
}

// validate checks a payload against a compiled schema by unification.
// Payloads must be concrete: every field the schema requires has to be
// present with a definite value.
func validate(ctx *cue.Context, schema cue.Value, name string, data any) error {
	unified := schema.Unify(ctx.Encode(data))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Stream: name, Err: err}
	}
	return nil
}
