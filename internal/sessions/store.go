// Package sessions persists the Conversation -> Frame -> Message
// hierarchy, grounded on the teacher's
// internal/sessions/cockroach.go (prepared statements, connection pool
// config, transactional append) generalized from its flat Session
// model onto the runtime's three-entity hierarchy.
package sessions

import (
	"context"
	"errors"

	"github.com/nexuscore/fabric/pkg/models"
)

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("sessions: not found")

// ListOptions constrains a conversation listing.
type ListOptions struct {
	Limit  int
	Offset int
}

// Store is the persistence boundary for entities. Every
// method takes a context so a backend with network round-trips
// (Postgres) can honor cancellation/deadlines.
type Store interface {
	CreateConversation(ctx context.Context, c *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, userID string, opts ListOptions) ([]*models.Conversation, error)
	TouchConversation(ctx context.Context, id string) error

	CreateFrame(ctx context.Context, f *models.Frame) error
	GetFrame(ctx context.Context, id string) (*models.Frame, error)
	LatestFrame(ctx context.Context, conversationID string) (*models.Frame, error)
	ListFrames(ctx context.Context, conversationID string) ([]*models.Frame, error)
	UpdateFrameSummary(ctx context.Context, frameID, summary string) error

	AppendMessage(ctx context.Context, m *models.Message) error
	GetMessages(ctx context.Context, frameID string, limit int) ([]models.Message, error)
	GetConversationHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error)

	// GetOrCreateUser returns the persisted preferences row for id,
	// inserting a default one on first connect, mirroring
	// get_or_create_frame's pattern for the User entity.
	GetOrCreateUser(ctx context.Context, id, username, displayName string) (*models.User, error)

	CreateAgent(ctx context.Context, a *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context, userID string) ([]models.Agent, error)
	// UpdateAgentMemory implements AgentMemoryUpdater (internal/gateway)
	// so a Store can be handed to a SessionHandler directly.
	UpdateAgentMemory(ctx context.Context, agentID, memory string) error

	CreateSkill(ctx context.Context, sk *models.Skill) error
	ListSkills(ctx context.Context, userID string) ([]models.Skill, error)
	GetSkillByName(ctx context.Context, userID, name string) (*models.Skill, error)

	CreateToolServer(ctx context.Context, t *models.ToolServer) error
	ListToolServers(ctx context.Context, userID string) ([]models.ToolServer, error)
}
