package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexuscore/fabric/pkg/models"
)

// MemoryStore is an in-process Store backed by mutex-guarded maps,
// grounded on the teacher's internal/sessions/memory.go. It backs unit
// tests and single-process deployments; it is not shared across
// processes.
type MemoryStore struct {
	mu sync.RWMutex

	conversations map[string]*models.Conversation
	frames        map[string]*models.Frame
	framesByConv  map[string][]string // conversationID -> frame IDs, oldest first
	messages      map[string][]models.Message

	users       map[string]*models.User
	agents      map[string]*models.Agent
	skills      map[string]*models.Skill
	toolServers map[string]*models.ToolServer
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		frames:        make(map[string]*models.Frame),
		framesByConv:  make(map[string][]string),
		messages:      make(map[string][]models.Message),
		users:         make(map[string]*models.User),
		agents:        make(map[string]*models.Agent),
		skills:        make(map[string]*models.Skill),
		toolServers:   make(map[string]*models.ToolServer),
	}
}

func (s *MemoryStore) CreateConversation(ctx context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.conversations[c.ID] = &cp
	return nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, userID string, opts ListOptions) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Conversation
	for _, c := range s.conversations {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })

	if opts.Offset > 0 && opts.Offset < len(out) {
		out = out[opts.Offset:]
	} else if opts.Offset >= len(out) {
		out = nil
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) TouchConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateFrame(ctx context.Context, f *models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.frames[f.ID] = &cp
	s.framesByConv[f.ConversationID] = append(s.framesByConv[f.ConversationID], f.ID)
	return nil
}

func (s *MemoryStore) GetFrame(ctx context.Context, id string) (*models.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) LatestFrame(ctx context.Context, conversationID string) (*models.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.framesByConv[conversationID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	f := s.frames[ids[len(ids)-1]]
	cp := *f
	return &cp, nil
}

// ListFrames returns every frame in a conversation, oldest first.
func (s *MemoryStore) ListFrames(ctx context.Context, conversationID string) ([]*models.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.framesByConv[conversationID]
	out := make([]*models.Frame, 0, len(ids))
	for _, id := range ids {
		f := s.frames[id]
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) UpdateFrameSummary(ctx context.Context, frameID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[frameID]
	if !ok {
		return ErrNotFound
	}
	f.Summary = summary
	f.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.frames[m.FrameID]; !ok {
		return ErrNotFound
	}
	cp := *m
	s.messages[m.FrameID] = append(s.messages[m.FrameID], cp)
	return nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, frameID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[frameID]
	return limitTail(msgs, limit), nil
}

// GetConversationHistory concatenates every frame's messages in
// creation order, oldest first, then applies limit to the tail — the
// view builder (internal/view) always wants the most recent N entries
// in chronological order.
func (s *MemoryStore) GetConversationHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, frameID := range s.framesByConv[conversationID] {
		out = append(out, s.messages[frameID]...)
	}
	return limitTail(out, limit), nil
}

func (s *MemoryStore) GetOrCreateUser(ctx context.Context, id, username, displayName string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	now := time.Now().UTC()
	u := &models.User{ID: id, Username: username, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}
	s.users[id] = u
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreateAgent(ctx context.Context, a *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAgents(ctx context.Context, userID string) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Agent
	for _, a := range s.agents {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateAgentMemory(ctx context.Context, agentID, memory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return ErrNotFound
	}
	a.Memory = memory
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CreateSkill(ctx context.Context, sk *models.Skill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sk
	s.skills[sk.ID] = &cp
	return nil
}

func (s *MemoryStore) ListSkills(ctx context.Context, userID string) ([]models.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Skill
	for _, sk := range s.skills {
		if sk.UserID == userID {
			out = append(out, *sk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetSkillByName(ctx context.Context, userID, name string) (*models.Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sk := range s.skills {
		if sk.UserID == userID && sk.Name == name {
			cp := *sk
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateToolServer(ctx context.Context, t *models.ToolServer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.toolServers[t.ID] = &cp
	return nil
}

func (s *MemoryStore) ListToolServers(ctx context.Context, userID string) ([]models.ToolServer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ToolServer
	for _, t := range s.toolServers {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func limitTail(msgs []models.Message, limit int) []models.Message {
	if limit <= 0 || limit >= len(msgs) {
		out := make([]models.Message, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]models.Message, limit)
	copy(out, msgs[len(msgs)-limit:])
	return out
}
