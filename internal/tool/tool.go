// Package tool is the Tool Catalog: named, typed callable units the
// reasoning loop invokes by name. Every executor returns a Result rather
// than an error — failures cross this boundary as data, never as a panic
// or Go error, mirroring the reasoner's tool_call/tool_result protocol.
package tool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/sacahan/casualtrader-go/internal/apperr"
)

// SideEffect classifies what a tool is allowed to touch, driving Mode Policy.
type SideEffect string

const (
	ReadMarket        SideEffect = "read-market"
	ReadPortfolio     SideEffect = "read-portfolio"
	WriteSimulatedTrade SideEffect = "write-simulated-trade"
	WriteStrategyChange SideEffect = "write-strategy-change"
	Pure              SideEffect = "pure"
)

// Result is the uniform {ok, data, error} envelope every tool executor
// returns. Data is populated on success, Error on failure; never both.
type Result struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo is the JSON-serializable shape of an apperr.Error as it crosses
// the tool boundary.
type ErrorInfo struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

// Ok builds a successful Result.
func Ok(data interface{}) Result {
	return Result{OK: true, Data: data}
}

// Err builds a failed Result from an error, unwrapping *apperr.Error for its
// kind/field when possible and defaulting to KindInternal otherwise.
func Err(err error) Result {
	if ae, ok := err.(*apperr.Error); ok {
		return Result{OK: false, Error: &ErrorInfo{Kind: ae.Kind, Message: ae.Message, Field: ae.Field}}
	}
	return Result{OK: false, Error: &ErrorInfo{Kind: apperr.KindInternal, Message: err.Error()}}
}

// Descriptor is the JSON-schema-shaped input descriptor handed to the
// reasoner, built by reflection over each tool's Input type via
// invopop/jsonschema, to avoid hand-maintained schema literals.
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	SideEffect  SideEffect         `json:"side_effect"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// Tool is one entry in the catalog. Input arrives as raw JSON (the
// reasoner's tool_call arguments); Execute is responsible for unmarshalling
// it into its own concrete input type and validating it.
type Tool interface {
	Name() string
	Description() string
	SideEffect() SideEffect
	InputSchema() *jsonschema.Schema
	Execute(ctx context.Context, rawInput json.RawMessage) Result
}

// reflector is shared across tools so schema generation is consistent
// (no $ref indirection, additional properties disallowed).
var reflector = &jsonschema.Reflector{
	DoNotReference:            true,
	AllowAdditionalProperties: false,
}

// SchemaFor reflects a Go type into a jsonschema.Schema for use as a tool's
// InputSchema.
func SchemaFor(v interface{}) *jsonschema.Schema {
	return reflector.Reflect(v)
}
