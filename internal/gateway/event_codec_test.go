package gateway

import (
	"encoding/json"
	"testing"
)

func TestEncodeStreamChunk_IncludesEnvelopeAndPayloadFields(t *testing.T) {
	raw, err := encodeStreamChunk(StreamChunkPayload{
		Content:        "hello",
		Role:           "assistant",
		Name:           "Debugger",
		ConversationID: "conv-1",
		FrameID:        "frame-1",
	})
	if err != nil {
		t.Fatalf("encodeStreamChunk() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != string(EventStreamChunk) {
		t.Errorf("type = %v, want %q", decoded["type"], EventStreamChunk)
	}
	if decoded["content"] != "hello" {
		t.Errorf("content = %v, want %q", decoded["content"], "hello")
	}
	if decoded["event_id"] == "" || decoded["event_id"] == nil {
		t.Error("expected non-empty event_id")
	}
	if decoded["timestamp"] == "" || decoded["timestamp"] == nil {
		t.Error("expected non-empty timestamp")
	}
}

func TestDecodeInbound_RejectsUnknownType(t *testing.T) {
	_, _, err := decodeInbound([]byte(`{"type":"not_a_real_event"}`))
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
	perr, ok := err.(*protocolError)
	if !ok {
		t.Fatalf("expected *protocolError, got %T", err)
	}
	if perr.code != CodeBadEvent {
		t.Errorf("code = %q, want %q", perr.code, CodeBadEvent)
	}
}

func TestDecodeInbound_RejectsMissingRequiredField(t *testing.T) {
	_, _, err := decodeInbound([]byte(`{"type":"chat_request"}`))
	if err == nil {
		t.Fatal("expected validation error for missing text")
	}
	perr, ok := err.(*protocolError)
	if !ok {
		t.Fatalf("expected *protocolError, got %T", err)
	}
	if perr.code != CodeValidation {
		t.Errorf("code = %q, want %q", perr.code, CodeValidation)
	}
}

func TestDecodeInbound_AcceptsValidChatRequest(t *testing.T) {
	eventType, data, err := decodeInbound([]byte(`{"type":"chat_request","text":"hi there"}`))
	if err != nil {
		t.Fatalf("decodeInbound() error = %v", err)
	}
	if eventType != EventChatRequest {
		t.Errorf("eventType = %q, want %q", eventType, EventChatRequest)
	}
	var payload ChatRequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Text != "hi there" {
		t.Errorf("Text = %q, want %q", payload.Text, "hi there")
	}
}

func TestDecodeInbound_AcceptsCancelWithNoExtraFields(t *testing.T) {
	eventType, _, err := decodeInbound([]byte(`{"type":"cancel"}`))
	if err != nil {
		t.Fatalf("decodeInbound() error = %v", err)
	}
	if eventType != EventCancel {
		t.Errorf("eventType = %q, want %q", eventType, EventCancel)
	}
}

func TestEncodeError_SetsCodeAndMessage(t *testing.T) {
	raw, err := encodeError(CodeBadEvent, "boom")
	if err != nil {
		t.Fatalf("encodeError() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["code"] != CodeBadEvent {
		t.Errorf("code = %v, want %q", decoded["code"], CodeBadEvent)
	}
	if decoded["error"] != "boom" {
		t.Errorf("error = %v, want %q", decoded["error"], "boom")
	}
}
