package tool

import (
	"context"
	"encoding/json"
)

// Typed wraps a strongly-typed tool function as a Tool, marshaling
// between JSON and the Args/Output types at the registry boundary. A
// malformed argument payload surfaces as InvalidArgs rather than
// reaching the tool's own function.
type Typed[Args, Output any] struct {
	name         string
	description  string
	argsSchema   map[string]interface{}
	outputSchema map[string]interface{}
	run          func(ctx context.Context, args Args, tc ToolContext) (Output, error)
}

// NewTyped builds a Typed tool from a name, description, JSON schemas
// for its args/output, and the function that implements it.
func NewTyped[Args, Output any](
	name, description string,
	argsSchema, outputSchema map[string]interface{},
	run func(ctx context.Context, args Args, tc ToolContext) (Output, error),
) *Typed[Args, Output] {
	return &Typed[Args, Output]{
		name:         name,
		description:  description,
		argsSchema:   argsSchema,
		outputSchema: outputSchema,
		run:          run,
	}
}

func (t *Typed[Args, Output]) Name() string                            { return t.name }
func (t *Typed[Args, Output]) Description() string                     { return t.description }
func (t *Typed[Args, Output]) ArgsSchema() map[string]interface{}       { return t.argsSchema }
func (t *Typed[Args, Output]) OutputSchema() map[string]interface{}     { return t.outputSchema }

// Run implements Tool by decoding argsJSON into Args, invoking the
// wrapped function, and encoding its Output back to JSON.
func (t *Typed[Args, Output]) Run(ctx context.Context, argsJSON []byte, tc ToolContext) ([]byte, error) {
	var args Args
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return nil, &DispatchError{Kind: InvalidArgs, Reason: err.Error(), Cause: err}
		}
	}

	out, err := t.run(ctx, args, tc)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, &DispatchError{Kind: ExecutionFailed, Reason: err.Error(), Cause: err}
	}
	return b, nil
}
