package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// eventSchemaRegistry compiles each inbound event type's JSON schema
// once, lazily, grounded on the teacher's ws_schema.go wsSchemaRegistry
// (sync.Once-guarded jsonschema/v5 compilation keyed by method name).
type eventSchemaRegistry struct {
	once    sync.Once
	initErr error
	schemas map[EventType]*jsonschema.Schema
}

var eventSchemas eventSchemaRegistry

func initEventSchemas() error {
	eventSchemas.once.Do(func() {
		defs := map[EventType]string{
			EventChatRequest:          chatRequestSchema,
			EventToolApprovalResponse: toolApprovalResponseSchema,
			EventCancel:               cancelSchema,
		}
		eventSchemas.schemas = make(map[EventType]*jsonschema.Schema, len(defs))
		for name, def := range defs {
			compiled, err := jsonschema.CompileString(string(name), def)
			if err != nil {
				eventSchemas.initErr = err
				return
			}
			eventSchemas.schemas[name] = compiled
		}
	})
	return eventSchemas.initErr
}

// validateInboundFrame validates raw against the schema registered for
// t, if any. An event type with no registered schema (there are none
// today) is accepted unconditionally.
func validateInboundFrame(t EventType, raw []byte) error {
	if err := initEventSchemas(); err != nil {
		return fmt.Errorf("event schema init: %w", err)
	}
	schema, ok := eventSchemas.schemas[t]
	if !ok {
		return nil
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}

const chatRequestSchema = `{
  "type": "object",
  "required": ["type", "text"],
  "properties": {
    "type": { "const": "chat_request" },
    "text": { "type": "string", "minLength": 1 },
    "model_name": { "type": "string" },
    "conversation_id": { "type": "string" },
    "agent_id": { "type": "string" },
    "images": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "additionalProperties": true
}`

const toolApprovalResponseSchema = `{
  "type": "object",
  "required": ["type", "approval_id", "approved"],
  "properties": {
    "type": { "const": "tool_approval_response" },
    "approval_id": { "type": "string", "minLength": 1 },
    "approved": { "type": "boolean" },
    "modified_args": { "type": "object" }
  },
  "additionalProperties": true
}`

const cancelSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "const": "cancel" }
  },
  "additionalProperties": true
}`
