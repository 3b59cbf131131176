// Package sessiontools implements the conversation/frame/message
// introspection built-ins: search_messages, get_conversation_info,
// get_frame_summaries, and get_frame_messages. Grounded on the
// teacher's internal/tools/sessions package (ListTool
// wrapping a session store) but rebuilt against the three-entity
// Conversation/Frame/Message hierarchy (internal/sessions.Store)
// instead of the teacher's flat Session model.
package sessiontools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/internal/sessions"
)

// ConversationInfoTool implements get_conversation_info: metadata plus
// frame count for a conversation.
type ConversationInfoTool struct {
	Store sessions.Store
}

func NewConversationInfoTool(store sessions.Store) *ConversationInfoTool {
	return &ConversationInfoTool{Store: store}
}

func (t *ConversationInfoTool) Name() string        { return "get_conversation_info" }
func (t *ConversationInfoTool) Description() string {
	return "Get metadata about the current conversation: title, timestamps, and frame count."
}
func (t *ConversationInfoTool) BuiltIn() bool              { return true }
func (t *ConversationInfoTool) RequiresApproval() bool     { return false }
func (t *ConversationInfoTool) RiskLevel() agent.RiskLevel { return agent.RiskLow }
func (t *ConversationInfoTool) ContextAware() bool         { return true }

// conversationInfoArgs and the sibling *Args structs below back
// Schema() with agent.ReflectSchema instead of a hand-authored
// JSON-schema literal, so each field's description lives next to the
// field itself.
type conversationInfoArgs struct {
	ConversationID string `json:"conversation_id" jsonschema:"required,description=Conversation id (injected automatically)"`
}

func (t *ConversationInfoTool) Schema() json.RawMessage {
	return agent.ReflectSchema(&conversationInfoArgs{})
}

func (t *ConversationInfoTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	conversationID, _ := args["conversation_id"].(string)
	if conversationID == "" {
		return &agent.ToolResult{Content: "conversation_id is required", IsError: true}, nil
	}
	conv, err := t.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	frames, err := t.Store.ListFrames(ctx, conversationID)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	out := map[string]any{
		"id":          conv.ID,
		"title":       conv.Title,
		"created_at":  conv.CreatedAt,
		"updated_at":  conv.UpdatedAt,
		"frame_count": len(frames),
	}
	return encodeResult(out)
}

// FrameSummariesTool implements get_frame_summaries: the summary of
// every frame in the conversation that has one, oldest first. Frames
// without a summary are skipped.
type FrameSummariesTool struct {
	Store sessions.Store
}

func NewFrameSummariesTool(store sessions.Store) *FrameSummariesTool {
	return &FrameSummariesTool{Store: store}
}

func (t *FrameSummariesTool) Name() string { return "get_frame_summaries" }
func (t *FrameSummariesTool) Description() string {
	return "List the summaries of every summarized frame in the current conversation, oldest first."
}
func (t *FrameSummariesTool) BuiltIn() bool              { return true }
func (t *FrameSummariesTool) RequiresApproval() bool     { return false }
func (t *FrameSummariesTool) RiskLevel() agent.RiskLevel { return agent.RiskLow }
func (t *FrameSummariesTool) ContextAware() bool         { return true }

func (t *FrameSummariesTool) Schema() json.RawMessage {
	return agent.ReflectSchema(&conversationInfoArgs{})
}

func (t *FrameSummariesTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	conversationID, _ := args["conversation_id"].(string)
	if conversationID == "" {
		return &agent.ToolResult{Content: "conversation_id is required", IsError: true}, nil
	}
	frames, err := t.Store.ListFrames(ctx, conversationID)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	summaries := make([]map[string]any, 0, len(frames))
	for _, f := range frames {
		if f.Summary == "" {
			continue
		}
		summaries = append(summaries, map[string]any{
			"frame_id":   f.ID,
			"summary":    f.Summary,
			"created_at": f.CreatedAt,
		})
	}
	return encodeResult(map[string]any{"summaries": summaries})
}

// FrameMessagesTool implements get_frame_messages: the raw message
// transcript of one frame, for when a summary isn't enough detail.
type FrameMessagesTool struct {
	Store sessions.Store
}

func NewFrameMessagesTool(store sessions.Store) *FrameMessagesTool {
	return &FrameMessagesTool{Store: store}
}

func (t *FrameMessagesTool) Name() string { return "get_frame_messages" }
func (t *FrameMessagesTool) Description() string {
	return "Get the full message transcript of a specific frame by id."
}
func (t *FrameMessagesTool) BuiltIn() bool              { return true }
func (t *FrameMessagesTool) RequiresApproval() bool     { return false }
func (t *FrameMessagesTool) RiskLevel() agent.RiskLevel { return agent.RiskLow }

type frameMessagesArgs struct {
	FrameID string `json:"frame_id" jsonschema:"required,description=Frame id to load messages for"`
}

func (t *FrameMessagesTool) Schema() json.RawMessage {
	return agent.ReflectSchema(&frameMessagesArgs{})
}

func (t *FrameMessagesTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	frameID, _ := args["frame_id"].(string)
	if frameID == "" {
		return &agent.ToolResult{Content: "frame_id is required", IsError: true}, nil
	}
	messages, err := t.Store.GetMessages(ctx, frameID, 0)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	out := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		out = append(out, map[string]any{
			"role":       m.Role,
			"speaker":    m.Speaker,
			"content":    m.Content,
			"agent_id":   m.AgentID,
			"created_at": m.CreatedAt,
		})
	}
	return encodeResult(map[string]any{"messages": out})
}

// SearchMessagesTool implements search_messages: a case-insensitive
// substring search over a conversation's full message history. It is
// a plain-text fallback rather than an embeddings search — this
// module carries no vector store (see DESIGN.md).
type SearchMessagesTool struct {
	Store sessions.Store
}

func NewSearchMessagesTool(store sessions.Store) *SearchMessagesTool {
	return &SearchMessagesTool{Store: store}
}

func (t *SearchMessagesTool) Name() string { return "search_messages" }
func (t *SearchMessagesTool) Description() string {
	return "Search the current conversation's message history for a substring match."
}
func (t *SearchMessagesTool) BuiltIn() bool              { return true }
func (t *SearchMessagesTool) RequiresApproval() bool     { return false }
func (t *SearchMessagesTool) RiskLevel() agent.RiskLevel { return agent.RiskLow }
func (t *SearchMessagesTool) ContextAware() bool         { return true }

type searchMessagesArgs struct {
	Query          string `json:"query" jsonschema:"required,description=Substring to search for"`
	ConversationID string `json:"conversation_id" jsonschema:"required,description=Conversation id (injected automatically)"`
	Limit          int    `json:"limit,omitempty" jsonschema:"description=Maximum matches to return (default 20),minimum=1,maximum=100"`
}

func (t *SearchMessagesTool) Schema() json.RawMessage {
	return agent.ReflectSchema(&searchMessagesArgs{})
}

func (t *SearchMessagesTool) Execute(ctx context.Context, args map[string]any) (*agent.ToolResult, error) {
	query, _ := args["query"].(string)
	conversationID, _ := args["conversation_id"].(string)
	if query == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}
	if conversationID == "" {
		return &agent.ToolResult{Content: "conversation_id is required", IsError: true}, nil
	}
	limit := 20
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	history, err := t.Store.GetConversationHistory(ctx, conversationID, 0)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	needle := strings.ToLower(query)
	matches := make([]map[string]any, 0, limit)
	for _, m := range history {
		if !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		matches = append(matches, map[string]any{
			"frame_id":   m.FrameID,
			"role":       m.Role,
			"speaker":    m.Speaker,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		})
		if len(matches) >= limit {
			break
		}
	}
	return encodeResult(map[string]any{"query": query, "matches": matches})
}

func encodeResult(v any) (*agent.ToolResult, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("encode result: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
