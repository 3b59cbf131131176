package agent

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// schemaReflector is shared across ReflectSchema calls: it disables
// the $schema/$id/$ref wrapping an LM provider has no use for, so a
// reflected schema is shaped exactly like the hand-authored ones
// elsewhere in this package.
var schemaReflector = &jsonschema.Reflector{
	ExpandedStruct:            true,
	DoNotReference:            true,
	AllowAdditionalProperties: false,
}

// ReflectSchema derives a tool's parameter schema from a Go struct
// (typically a zero-value pointer to the tool's argument type,
// annotated with `jsonschema:"description=...,required"` tags) instead
// of hand-authoring the equivalent JSON-schema literal. Built-ins whose
// parameters are simple enough that the literal is just as clear keep
// writing it by hand; this exists for the ones with several fields
// where the tags keep the description next to the field it documents.
func ReflectSchema(v any) json.RawMessage {
	schema := schemaReflector.Reflect(v)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
