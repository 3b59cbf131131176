// Package gateway implements the client-facing WebSocket protocol: the
// discriminated JSON event envelope, the JWT-authenticated handshake,
// the per-socket session handler state machine, and the connection
// registry that lets a user's handler survive a reconnect. Grounded on
// the teacher's internal/gateway ws_control_plane.go/server.go pair,
// narrowed from its channel-plugin and provisioning machinery onto the
// bare chat protocol this runtime needs.
package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the event envelope's payload.
type EventType string

const (
	// Client -> server
	EventChatRequest          EventType = "chat_request"
	EventToolApprovalResponse EventType = "tool_approval_response"
	EventCancel               EventType = "cancel"

	// Server -> client
	EventStreamChunk         EventType = "stream_chunk"
	EventToolApprovalRequest EventType = "tool_approval_request"
	EventAgentSwitch         EventType = "agent_switch"
	EventDone                EventType = "done"
	EventError               EventType = "error"
)

// Error codes.
const (
	CodeBadEvent   = "BAD_EVENT"
	CodeValidation = "VALIDATION"
	CodeAuth       = "AUTH"
	CodeNotFound   = "NOT_FOUND"
	CodeProvider   = "PROVIDER"
	CodeCancelled  = "CANCELLED"
)

// Envelope is the outer shape every event shares: a discriminated type
// tag plus a UUID and an informational timestamp. Payload
// fields are flattened onto the envelope via json.RawMessage so each
// direction can decode/encode its own concrete struct.
type Envelope struct {
	Type      EventType       `json:"type"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"-"`
}

// newEnvelope stamps a fresh event_id/timestamp for an outbound event.
func newEnvelope(t EventType) Envelope {
	return Envelope{Type: t, EventID: uuid.NewString(), Timestamp: time.Now().UTC()}
}

// ChatRequestPayload is the client's turn-starting event.
type ChatRequestPayload struct {
	Text           string   `json:"text"`
	ModelName      string   `json:"model_name,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	AgentID        string   `json:"agent_id,omitempty"`
	Images         []string `json:"images,omitempty"`
}

// ToolApprovalResponsePayload answers a pending ToolApprovalRequestPayload.
type ToolApprovalResponsePayload struct {
	ApprovalID   string         `json:"approval_id"`
	Approved     bool           `json:"approved"`
	ModifiedArgs map[string]any `json:"modified_args,omitempty"`
}

// CancelPayload carries no fields; its presence is the signal.
type CancelPayload struct{}

// StreamChunkPayload is one fragment of agent output.
type StreamChunkPayload struct {
	Content        string `json:"content,omitempty"`
	Thinking       string `json:"thinking,omitempty"`
	Role           string `json:"role"` // "assistant" | "tool"
	AgentID        string `json:"agent_id,omitempty"`
	Name           string `json:"name"`
	ConversationID string `json:"conversation_id"`
	FrameID        string `json:"frame_id"`
}

// ToolApprovalRequestPayload asks the client to approve a pending tool
// call.
type ToolApprovalRequestPayload struct {
	ApprovalID  string         `json:"approval_id"`
	ToolName    string         `json:"tool_name"`
	ToolArgs    map[string]any `json:"tool_args"`
	AgentID     string         `json:"agent_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	RiskLevel   string         `json:"risk_level"`
}

// AgentSwitchPayload announces a delegation hand-off.
type AgentSwitchPayload struct {
	FromAgentID   string `json:"from_agent_id"`
	FromAgentName string `json:"from_agent_name"`
	ToAgentID     string `json:"to_agent_id"`
	ToAgentName   string `json:"to_agent_name"`
	Reason        string `json:"reason"`
}

// DonePayload closes out a turn.
type DonePayload struct {
	ConversationID string `json:"conversation_id"`
	FrameID        string `json:"frame_id"`
}

// ErrorPayload reports a taxonomy-coded failure.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// encodeEvent marshals an outbound payload into a flat JSON object
// carrying both the envelope fields and the payload's own fields:
// "{ type, event_id, timestamp, ...payload }".
func encodeEvent(t EventType, payload any) ([]byte, error) {
	env := newEnvelope(t)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payloadBytes, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	envBytes, err := json.Marshal(struct {
		Type      EventType `json:"type"`
		EventID   string    `json:"event_id"`
		Timestamp time.Time `json:"timestamp"`
	}{env.Type, env.EventID, env.Timestamp})
	if err != nil {
		return nil, err
	}
	var envFields map[string]json.RawMessage
	if err := json.Unmarshal(envBytes, &envFields); err != nil {
		return nil, err
	}
	for k, v := range envFields {
		fields[k] = v
	}
	return json.Marshal(fields)
}

func encodeStreamChunk(p StreamChunkPayload) ([]byte, error) {
	return encodeEvent(EventStreamChunk, p)
}

func encodeToolApprovalRequest(p ToolApprovalRequestPayload) ([]byte, error) {
	return encodeEvent(EventToolApprovalRequest, p)
}

func encodeAgentSwitch(p AgentSwitchPayload) ([]byte, error) {
	return encodeEvent(EventAgentSwitch, p)
}

func encodeDone(p DonePayload) ([]byte, error) {
	return encodeEvent(EventDone, p)
}

func encodeError(code, message string) ([]byte, error) {
	return encodeEvent(EventError, ErrorPayload{Error: message, Code: code})
}

// inboundEnvelope is the minimal shape decoded first to discriminate
// on Type before parsing the type-specific payload.
type inboundEnvelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"-"`
}

// decodeInbound parses a raw client frame, validating it against the
// schema registry (event_schema.go) before dispatching on Type. Unknown
// types are rejected with BAD_EVENT.
func decodeInbound(raw []byte) (EventType, json.RawMessage, error) {
	var env struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, &protocolError{code: CodeBadEvent, message: "malformed event: " + err.Error()}
	}
	switch env.Type {
	case EventChatRequest, EventToolApprovalResponse, EventCancel:
	default:
		return "", nil, &protocolError{code: CodeBadEvent, message: "unknown event type: " + string(env.Type)}
	}
	if err := validateInboundFrame(env.Type, raw); err != nil {
		return "", nil, &protocolError{code: CodeValidation, message: err.Error()}
	}
	return env.Type, raw, nil
}

// protocolError carries the error taxonomy code alongside a
// human-readable message, so the handler can map it directly onto an
// ErrorPayload without re-classifying.
type protocolError struct {
	code    string
	message string
}

func (e *protocolError) Error() string { return e.message }
