package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexuscore/fabric/internal/agent"
	"github.com/nexuscore/fabric/internal/mcp"
	"github.com/nexuscore/fabric/internal/memory"
	"github.com/nexuscore/fabric/internal/multiagent"
	"github.com/nexuscore/fabric/internal/observability"
	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/internal/view"
	"github.com/nexuscore/fabric/pkg/models"
	"go.opentelemetry.io/otel/trace"
)

// handlerState is the top-level state of per-socket state
// machine.
type handlerState string

const (
	stateIdle       handlerState = "idle"
	stateRunning    handlerState = "running"
	stateCancelling handlerState = "cancelling"
)

// approvalTimeout is the auto-deny deadline for a suspended tool call.
const approvalTimeout = 5 * time.Minute

// frameSummaryCharCap bounds the transcript handed to the summarizer.
const frameSummaryCharCap = 8192

// socketSender abstracts the outbound half of the transport so the
// handler can be tested without a real *websocket.Conn (adapted by
// wsSocket in server.go).
type socketSender interface {
	Send(payload []byte) error
}

// AgentLister resolves the agents available to a user for a given
// conversation.
type AgentLister interface {
	AvailableAgents(ctx context.Context, userID, conversationID string) ([]models.Agent, error)
}

// ProviderResolver picks the LLMProvider and model for one agent,
// honoring the user's per-agent backend/model overrides (the
// supplemented User.lm_backend_url/summary_model fields).
type ProviderResolver interface {
	ProviderFor(user models.User, a models.Agent) (agent.LLMProvider, string)
}

// AgentMemoryUpdater persists the result of agent-memory consolidation.
// It is a narrow slice of whatever repository owns Agent CRUD, which
// the runtime's other persistence operations don't otherwise name.
type AgentMemoryUpdater interface {
	UpdateAgentMemory(ctx context.Context, agentID, memory string) error
}

// SessionHandler drives one user's live turns: persistence, the
// Administrator routing loop, per-agent tool-calling loops, the
// approval round-trip, and post-turn consolidation.
// Exactly one SessionHandler is live per user at a time, owned by a
// ConnectionRegistry.
type SessionHandler struct {
	UserID string
	User   models.User

	Store       sessions.Store
	Registry    *agent.ToolRegistry
	Agents      AgentLister
	Providers   ProviderResolver
	AgentMemory AgentMemoryUpdater
	Consolidate *memory.Consolidator
	Logger      *slog.Logger

	// Tools and ToolServers are optional: when both are set, runTurn
	// refreshes this user's external (MCP) tools into Registry at the
	// top of every turn. A handler built without them still
	// serves the unconditional built-ins BuildToolRegistry registered.
	Tools       *mcp.Orchestrator
	ToolServers ToolServerLister

	// Metrics is optional; a nil Metrics makes every recording call a
	// no-op so tests can build a SessionHandler without a Prometheus
	// registry.
	Metrics *observability.Metrics

	// Tracer is optional; a nil Tracer skips span creation entirely so
	// tests can build a SessionHandler without an OTel exporter.
	Tracer *observability.Tracer

	mu      sync.Mutex
	state   handlerState
	socket  socketSender
	cancel  context.CancelFunc
	pending map[string]*approvalFuture
}

// approvalFuture is the suspension point a tool call blocks on while
// awaiting a tool_approval_response.
type approvalFuture struct {
	done     chan struct{}
	once     sync.Once
	approved bool
	args     map[string]any
}

func newApprovalFuture() *approvalFuture {
	return &approvalFuture{done: make(chan struct{})}
}

func (f *approvalFuture) resolve(approved bool, args map[string]any) {
	f.once.Do(func() {
		f.approved = approved
		f.args = args
		close(f.done)
	})
}

// NewSessionHandler builds a handler bound to socket, the transport for
// this connection. socket may be swapped later via Rebind on reconnect.
func NewSessionHandler(userID string, user models.User, socket socketSender, deps SessionHandler) *SessionHandler {
	h := deps
	h.UserID = userID
	h.User = user
	h.socket = socket
	h.state = stateIdle
	h.pending = make(map[string]*approvalFuture)
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	return &h
}

// Rebind swaps in a new socket for a reconnecting user without
// disturbing any in-flight turn.
func (h *SessionHandler) Rebind(socket socketSender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.socket = socket
}

func (h *SessionHandler) send(payload []byte) {
	h.mu.Lock()
	s := h.socket
	h.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.Send(payload); err != nil {
		h.Logger.Warn("send failed", "user_id", h.UserID, "error", err)
	}
}

// forwardStreamEvent encodes one agent.StreamEvent (from an agent's own
// loop, the Administrator's routing call, or a delegated sub-agent) as
// a stream_chunk and sends it, so every caller wires chunks to the
// client the same way.
func (h *SessionHandler) forwardStreamEvent(ev agent.StreamEvent, conversationID, frameID string) {
	chunk, err := encodeStreamChunk(StreamChunkPayload{
		Content:        ev.Content,
		Thinking:       ev.Thinking,
		Role:           ev.Role,
		AgentID:        ev.AgentID,
		Name:           ev.Name,
		ConversationID: conversationID,
		FrameID:        frameID,
	})
	if err == nil {
		h.send(chunk)
	}
}

// sendAgentSwitch announces a delegation hand-off (spec.md §4.7).
func (h *SessionHandler) sendAgentSwitch(ev models.AgentSwitchEvent) {
	payload, err := encodeAgentSwitch(AgentSwitchPayload{
		FromAgentID:   ev.FromAgentID,
		FromAgentName: ev.FromAgentName,
		ToAgentID:     ev.ToAgentID,
		ToAgentName:   ev.ToAgentName,
		Reason:        ev.Reason,
	})
	if err == nil {
		h.send(payload)
	}
}

func (h *SessionHandler) sendError(code, message string) {
	if h.Metrics != nil {
		h.Metrics.ErrorEmitted(code)
	}
	payload, err := encodeError(code, message)
	if err != nil {
		return
	}
	h.send(payload)
}

// RequestApproval implements agent.ApprovalRequester: it sends a
// tool_approval_request event and blocks until the matching response
// arrives, the 5-minute timeout elapses (auto-deny), or ctx is
// cancelled (treated as denied, ).
func (h *SessionHandler) RequestApproval(ctx context.Context, req agent.ApprovalRequest) (bool, map[string]any, error) {
	approvalID := uuid.NewString()
	future := newApprovalFuture()

	h.mu.Lock()
	h.pending[approvalID] = future
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, approvalID)
		h.mu.Unlock()
	}()

	payload, err := encodeToolApprovalRequest(ToolApprovalRequestPayload{
		ApprovalID:  approvalID,
		ToolName:    req.ToolName,
		ToolArgs:    req.ToolArgs,
		AgentID:     req.AgentID,
		Name:        req.AgentName,
		Description: req.Description,
		RiskLevel:   string(req.RiskLevel),
	})
	if err != nil {
		return false, nil, err
	}
	h.send(payload)

	timer := time.NewTimer(approvalTimeout)
	defer timer.Stop()

	select {
	case <-future.done:
		return future.approved, future.args, nil
	case <-timer.C:
		return false, nil, fmt.Errorf("approval timed out")
	case <-ctx.Done():
		return false, nil, ctx.Err()
	}
}

// ResolveApproval completes a pending approval future. It is a no-op if
// approvalID has no pending future (already resolved, timed out, or
// never existed).
func (h *SessionHandler) ResolveApproval(approvalID string, approved bool, modifiedArgs map[string]any) {
	h.mu.Lock()
	future, ok := h.pending[approvalID]
	h.mu.Unlock()
	if !ok {
		return
	}
	future.resolve(approved, modifiedArgs)
}

// denyAllPending treats every currently-pending approval as denied,
// the cancellation semantics requires when a turn is
// cancelled mid-flight.
func (h *SessionHandler) denyAllPending() {
	h.mu.Lock()
	futures := make([]*approvalFuture, 0, len(h.pending))
	for _, f := range h.pending {
		futures = append(futures, f)
	}
	h.mu.Unlock()
	for _, f := range futures {
		f.resolve(false, nil)
	}
}

// HandleCancel implements the cancel transition: if a turn is running,
// its context is cancelled and pending approvals are auto-denied.
func (h *SessionHandler) HandleCancel() {
	h.mu.Lock()
	cancel := h.cancel
	if h.state == stateRunning {
		h.state = stateCancelling
	}
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.denyAllPending()
}

// HandleChatRequest implements the chat_request transition: IDLE ->
// RUNNING, or, if a turn is already running, cancels it first then
// starts the new one, running the full turn algorithm in a background
// goroutine.
func (h *SessionHandler) HandleChatRequest(ctx context.Context, req ChatRequestPayload) {
	h.mu.Lock()
	if h.state == stateRunning {
		h.mu.Unlock()
		h.HandleCancel()
	} else {
		h.mu.Unlock()
	}

	turnCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.state = stateRunning
	h.cancel = cancel
	h.mu.Unlock()

	h.metricsTurnStarted()
	started := time.Now()
	go func() {
		defer func() {
			h.mu.Lock()
			h.state = stateIdle
			h.cancel = nil
			h.mu.Unlock()
			h.metricsTurnEnded(time.Since(started))
		}()
		h.runTurn(turnCtx, req)
	}()
}

// metricsTurnStarted and metricsTurnEnded record the active-turn gauge
// and per-turn duration; both are no-ops when the handler was built
// without a Metrics (e.g. in unit tests).
func (h *SessionHandler) metricsTurnStarted() {
	if h.Metrics != nil {
		h.Metrics.TurnStarted()
	}
}

func (h *SessionHandler) metricsTurnEnded(d time.Duration) {
	if h.Metrics != nil {
		h.Metrics.TurnEnded(d.Seconds())
	}
}

// runTurn implements turn algorithm end to end: persist
// the user message, run the Administrator's initial selection, drive
// agents in the routing queue up to MaxTurnsDefault hops, persist
// output, and finish with a done event plus fire-and-forget
// consolidation.
func (h *SessionHandler) runTurn(ctx context.Context, req ChatRequestPayload) {
	conv, frame, err := h.resolveConversationAndFrame(ctx, req.ConversationID)
	if err != nil {
		h.sendError(CodeNotFound, err.Error())
		return
	}

	if h.Tracer != nil {
		var span trace.Span
		ctx, span = h.Tracer.TraceTurn(ctx, h.UserID, conv.ID)
		defer span.End()
	}
	ctx = observability.AddConversationID(ctx, conv.ID)

	h.syncExternalTools(ctx)

	userMsg := &models.Message{
		ID:        uuid.NewString(),
		FrameID:   frame.ID,
		Role:      models.RoleUser,
		Content:   req.Text,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.AppendMessage(ctx, userMsg); err != nil {
		h.sendError(CodeProvider, "failed to persist message: "+err.Error())
		return
	}

	history, err := h.Store.GetMessages(ctx, frame.ID, 0)
	if err != nil {
		h.sendError(CodeProvider, "failed to load history: "+err.Error())
		return
	}

	available, err := h.Agents.AvailableAgents(ctx, h.UserID, conv.ID)
	if err != nil {
		h.sendError(CodeProvider, "failed to load agents: "+err.Error())
		return
	}

	admin := &multiagent.Administrator{Provider: h.adminProvider(available), Model: h.adminModel(available)}

	adminEvents, adminQueue := admin.StreamInitialSelection(ctx, req.Text, available)
	for ev := range adminEvents {
		h.forwardStreamEvent(ev, conv.ID, frame.ID)
	}
	queue := <-adminQueue

	turnCount := 0
	var latest models.Message
	spoke := map[string]models.Agent{}
	for len(queue) > 0 && turnCount < models.MaxTurnsDefault {
		select {
		case <-ctx.Done():
			h.finishCancelled(conv, frame)
			return
		default:
		}

		next := queue[0]
		queue = queue[1:]
		if next.Target == models.RouteToUser {
			break
		}

		target, ok := findAgent(available, next.AgentID)
		if !ok {
			break
		}

		content, toolMsgs, rawInput, rawOutput := h.driveAgent(ctx, target, available, history, conv.ID, frame.ID)
		if ctx.Err() != nil {
			h.finishCancelled(conv, frame)
			return
		}

		assistantMsg := models.Message{
			ID:        uuid.NewString(),
			FrameID:   frame.ID,
			Role:      models.RoleAssistant,
			Speaker:   target.Name,
			AgentID:   target.ID,
			Content:   content,
			RawInput:  rawInput,
			RawOutput: rawOutput,
			CreatedAt: time.Now().UTC(),
		}
		if err := h.Store.AppendMessage(ctx, &assistantMsg); err != nil {
			h.Logger.Error("persist assistant message failed", "error", err)
		}
		for i := range toolMsgs {
			if err := h.Store.AppendMessage(ctx, &toolMsgs[i]); err != nil {
				h.Logger.Error("persist tool message failed", "error", err)
			}
		}
		history = append(history, assistantMsg)
		history = append(history, toolMsgs...)
		latest = assistantMsg
		spoke[target.ID] = target

		decisionEvents, decisionResult := admin.StreamDecideRouting(ctx, latest, history, available)
		for ev := range decisionEvents {
			h.forwardStreamEvent(ev, conv.ID, frame.ID)
		}
		decision := <-decisionResult
		if h.Metrics != nil {
			h.Metrics.RecordRoutingDecision(string(decision.Target), "lm")
		}
		if decision.Target == models.RouteToUser {
			break
		}
		queue = append(queue, decision)
		turnCount++
	}

	if h.Metrics != nil {
		h.Metrics.RecordAdministratorCycles(turnCount)
	}

	if err := h.Store.TouchConversation(ctx, conv.ID); err != nil {
		h.Logger.Warn("touch conversation failed", "error", err)
	}

	donePayload, err := encodeDone(DonePayload{ConversationID: conv.ID, FrameID: frame.ID})
	if err == nil {
		h.send(donePayload)
	}

	spokeAgents := make([]models.Agent, 0, len(spoke))
	for _, a := range spoke {
		spokeAgents = append(spokeAgents, a)
	}
	h.consolidateAsync(frame.ID, history, spokeAgents)
}

// syncExternalTools refreshes this user's MCP-backed tools into
// Registry before the turn's agents run. It is a no-op
// when the handler wasn't built with an Orchestrator/ToolServerLister,
// and failures are logged rather than surfaced: a tool server outage
// shouldn't block the turn from using the built-ins that still work.
func (h *SessionHandler) syncExternalTools(ctx context.Context) {
	if h.Tools == nil || h.ToolServers == nil {
		return
	}
	servers, err := h.ToolServers.ToolServersFor(ctx, h.UserID)
	if err != nil {
		h.Logger.Warn("list tool servers failed", "user_id", h.UserID, "error", err)
		return
	}
	started := time.Now()
	syncErr := h.Tools.Sync(ctx, h.UserID, servers, h.Registry)
	if h.Metrics != nil {
		h.Metrics.RecordExternalToolSync(time.Since(started).Seconds(), syncErr)
	}
	if syncErr != nil {
		h.Logger.Warn("external tool sync failed", "user_id", h.UserID, "error", syncErr)
	}
}

func (h *SessionHandler) finishCancelled(conv *models.Conversation, frame *models.Frame) {
	h.sendError(CodeCancelled, "turn cancelled")
	donePayload, err := encodeDone(DonePayload{ConversationID: conv.ID, FrameID: frame.ID})
	if err == nil {
		h.send(donePayload)
	}
}

// driveAgent runs one sub-agent's bounded tool-calling loop, forwarding
// each StreamEvent to the socket as a stream_chunk and splitting tool
// events out into their own persisted messages. The returned
// rawInput/rawOutput are the supplemented debug columns: the exact
// prepared-messages JSON sent to the LM on the final round and its raw
// streamed content.
func (h *SessionHandler) driveAgent(ctx context.Context, target models.Agent, siblings []models.Agent, history []models.Message, conversationID, frameID string) (content string, toolMsgs []models.Message, rawInput string, rawOutput string) {
	provider, model := h.Providers.ProviderFor(h.User, target)
	resolved := target
	if resolved.Model == "" {
		resolved.Model = model
	}

	runner := &delegationRunner{h: h, siblings: siblings, history: history, conversationID: conversationID, frameID: frameID}
	sink := func(ev agent.StreamEvent) { h.forwardStreamEvent(ev, conversationID, frameID) }
	onSwitch := func(ev models.AgentSwitchEvent) { h.sendAgentSwitch(ev) }
	delegationTools := multiagent.BuildDelegationTools(resolved, siblings, runner, sink, onSwitch)

	loop := &agent.Loop{
		Agent:      resolved,
		Provider:   provider,
		Registry:   h.Registry,
		Approval:   h,
		Metrics:    h.Metrics,
		ExtraTools: delegationTools,
	}
	viewCfg := view.Config{Viewer: resolved, User: h.User, Siblings: siblings, Now: time.Now()}

	for ev := range loop.Process(ctx, history, viewCfg, conversationID) {
		h.forwardStreamEvent(ev, conversationID, frameID)
		switch ev.Role {
		case "assistant":
			content += ev.Content
		case "tool":
			toolMsgs = append(toolMsgs, models.Message{
				ID:        uuid.NewString(),
				FrameID:   frameID,
				Role:      models.RoleTool,
				Speaker:   ev.Name,
				Content:   ev.Content,
				AgentID:   target.ID,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
	return content, toolMsgs, loop.LastRawInput, loop.LastRawOutput
}

// consolidateAsync launches two fire-and-forget tasks at the end of
// every turn: summarization of the turn's frame and, for each agent
// that spoke, memory consolidation.
func (h *SessionHandler) consolidateAsync(frameID string, history []models.Message, spoke []models.Agent) {
	if h.Consolidate == nil {
		return
	}
	bg := context.Background()
	capped := capMessages(history, frameSummaryCharCap)
	h.Consolidate.RunFrameSummaryAsync(bg, capped, h.User.SummaryModel, func(summary string) {
		if summary == "" {
			return
		}
		if err := h.Store.UpdateFrameSummary(bg, frameID, summary); err != nil {
			h.Logger.Error("persist frame summary failed", "error", err)
			return
		}
		if h.Metrics != nil {
			h.Metrics.FrameSummarized()
		}
	})

	if h.AgentMemory == nil {
		return
	}
	recent := renderRecentExchange(capped)
	for _, a := range spoke {
		agentID := a.ID
		_, model := h.Providers.ProviderFor(h.User, a)
		h.Consolidate.RunAgentMemoryConsolidationAsync(bg, a, recent, model, func(updated string) {
			if err := h.AgentMemory.UpdateAgentMemory(bg, agentID, updated); err != nil {
				h.Logger.Error("persist agent memory failed", "agent_id", agentID, "error", err)
				return
			}
			if h.Metrics != nil {
				h.Metrics.AgentMemoryConsolidated()
			}
		})
	}
}

func renderRecentExchange(history []models.Message) string {
	var b []byte
	for _, m := range history {
		speaker := m.Speaker
		if speaker == "" {
			speaker = string(m.Role)
		}
		b = append(b, []byte("["+speaker+"]: "+m.Content+"\n")...)
	}
	return string(b)
}

func (h *SessionHandler) adminProvider(available []models.Agent) agent.LLMProvider {
	if len(available) == 0 {
		return nil
	}
	provider, _ := h.Providers.ProviderFor(h.User, available[0])
	return provider
}

func (h *SessionHandler) adminModel(available []models.Agent) string {
	if len(available) == 0 {
		return ""
	}
	_, model := h.Providers.ProviderFor(h.User, available[0])
	return model
}

func findAgent(available []models.Agent, id string) (models.Agent, bool) {
	for _, a := range available {
		if a.ID == id {
			return a, true
		}
	}
	return models.Agent{}, false
}

// capMessages trims a transcript to at most charCap characters of
// content, keeping the most recent messages.
func capMessages(history []models.Message, charCap int) []models.Message {
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		total += len(history[i].Content)
		if total > charCap {
			break
		}
		start = i
	}
	return history[start:]
}

// resolveConversationAndFrame loads or creates the active conversation
// and its latest (or newly created) frame.
func (h *SessionHandler) resolveConversationAndFrame(ctx context.Context, conversationID string) (*models.Conversation, *models.Frame, error) {
	var conv *models.Conversation
	var err error
	if conversationID != "" {
		conv, err = h.Store.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		conv = &models.Conversation{ID: uuid.NewString(), UserID: h.UserID, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		if err := h.Store.CreateConversation(ctx, conv); err != nil {
			return nil, nil, err
		}
	}

	frame, err := h.Store.LatestFrame(ctx, conv.ID)
	if err != nil {
		if err != sessions.ErrNotFound {
			return nil, nil, err
		}
		frame = nil
	}
	if frame == nil {
		frame = &models.Frame{ID: uuid.NewString(), ConversationID: conv.ID, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
		if err := h.Store.CreateFrame(ctx, frame); err != nil {
			return nil, nil, err
		}
	}
	return conv, frame, nil
}
