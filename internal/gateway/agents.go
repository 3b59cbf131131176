package gateway

import (
	"context"

	"github.com/nexuscore/fabric/internal/sessions"
	"github.com/nexuscore/fabric/pkg/models"
)

// StoreAgentLister implements AgentLister directly against a Store:
// persisted agents are scoped to a user (pkg/models.Agent.UserID), not
// to a conversation, so conversationID is accepted only to satisfy the
// interface and otherwise ignored.
type StoreAgentLister struct {
	Store sessions.Store
}

func (l StoreAgentLister) AvailableAgents(ctx context.Context, userID, conversationID string) ([]models.Agent, error) {
	return l.Store.ListAgents(ctx, userID)
}
