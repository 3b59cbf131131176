package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/nexuscore/fabric/pkg/models"
)

func (s *PostgresStore) CreateConversation(ctx context.Context, c *models.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.Title, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string, opts ListOptions) ([]*models.Conversation, error) {
	query := `SELECT id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC`
	args := []any{userID}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TouchConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateFrame(ctx context.Context, f *models.Frame) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (id, conversation_id, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.ConversationID, f.Summary, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create frame: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFrame(ctx context.Context, id string) (*models.Frame, error) {
	f := &models.Frame{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, summary, created_at, updated_at FROM frames WHERE id = $1`, id).
		Scan(&f.ID, &f.ConversationID, &f.Summary, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get frame: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) LatestFrame(ctx context.Context, conversationID string) (*models.Frame, error) {
	f := &models.Frame{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, summary, created_at, updated_at FROM frames
		WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT 1`, conversationID).
		Scan(&f.ID, &f.ConversationID, &f.Summary, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest frame: %w", err)
	}
	return f, nil
}

// ListFrames returns every frame in a conversation, oldest first.
func (s *PostgresStore) ListFrames(ctx context.Context, conversationID string) ([]*models.Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, summary, created_at, updated_at FROM frames
		WHERE conversation_id = $1 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var out []*models.Frame
	for rows.Next() {
		f := &models.Frame{}
		if err := rows.Scan(&f.ID, &f.ConversationID, &f.Summary, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateFrameSummary(ctx context.Context, frameID, summary string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE frames SET summary = $1, updated_at = $2 WHERE id = $3`,
		summary, time.Now().UTC(), frameID)
	if err != nil {
		return fmt.Errorf("update frame summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage inserts the message and bumps the frame's updated_at in
// one transaction, mirroring the teacher's AppendMessage atomicity.
func (s *PostgresStore) AppendMessage(ctx context.Context, m *models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, frame_id, role, speaker, content, thinking, agent_id, raw_input, raw_output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.FrameID, m.Role, m.Speaker, m.Content, m.Thinking, m.AgentID, m.RawInput, m.RawOutput, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE frames SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), m.FrameID); err != nil {
		return fmt.Errorf("touch frame: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetMessages(ctx context.Context, frameID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, frame_id, role, speaker, content, thinking, agent_id, raw_input, raw_output, created_at
		FROM messages WHERE frame_id = $1 ORDER BY created_at ASC LIMIT $2`, frameID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) GetConversationHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.frame_id, m.role, m.speaker, m.content, m.thinking, m.agent_id, m.raw_input, m.raw_output, m.created_at
		FROM messages m
		JOIN frames f ON f.id = m.frame_id
		WHERE f.conversation_id = $1
		ORDER BY m.created_at ASC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("get conversation history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *PostgresStore) GetOrCreateUser(ctx context.Context, id, username, displayName string) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, display_name, system_prompt, lm_backend_url, summary_model, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.SystemPrompt, &u.LMBackendURL, &u.SummaryModel, &u.CreatedAt, &u.UpdatedAt)
	if err == nil {
		return u, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get user: %w", err)
	}

	now := time.Now().UTC()
	*u = models.User{ID: id, Username: username, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Username, u.DisplayName, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateAgent(ctx context.Context, a *models.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, user_id, name, system_prompt, voice_ref, avatar_handle, model, excluded_tools, think, memory, trigger_phrase, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.UserID, a.Name, a.SystemPrompt, a.VoiceRef, a.AvatarHandle, a.Model, pq.Array(a.ExcludedTools), a.Think, a.Memory, a.TriggerPhrase, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	a := &models.Agent{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, system_prompt, voice_ref, avatar_handle, model, excluded_tools, think, memory, trigger_phrase, created_at, updated_at
		FROM agents WHERE id = $1`, id).
		Scan(&a.ID, &a.UserID, &a.Name, &a.SystemPrompt, &a.VoiceRef, &a.AvatarHandle, &a.Model, pq.Array(&a.ExcludedTools), &a.Think, &a.Memory, &a.TriggerPhrase, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAgents(ctx context.Context, userID string) ([]models.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, system_prompt, voice_ref, avatar_handle, model, excluded_tools, think, memory, trigger_phrase, created_at, updated_at
		FROM agents WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.SystemPrompt, &a.VoiceRef, &a.AvatarHandle, &a.Model, pq.Array(&a.ExcludedTools), &a.Think, &a.Memory, &a.TriggerPhrase, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateAgentMemory(ctx context.Context, agentID, memory string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE agents SET memory = $1, updated_at = $2 WHERE id = $3`,
		memory, time.Now().UTC(), agentID)
	if err != nil {
		return fmt.Errorf("update agent memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateSkill(ctx context.Context, sk *models.Skill) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (id, user_id, name, instructions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sk.ID, sk.UserID, sk.Name, sk.Instructions, sk.CreatedAt, sk.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create skill: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSkills(ctx context.Context, userID string) ([]models.Skill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, instructions, created_at, updated_at
		FROM skills WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []models.Skill
	for rows.Next() {
		var sk models.Skill
		if err := rows.Scan(&sk.ID, &sk.UserID, &sk.Name, &sk.Instructions, &sk.CreatedAt, &sk.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSkillByName(ctx context.Context, userID, name string) (*models.Skill, error) {
	sk := &models.Skill{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, instructions, created_at, updated_at
		FROM skills WHERE user_id = $1 AND name = $2`, userID, name).
		Scan(&sk.ID, &sk.UserID, &sk.Name, &sk.Instructions, &sk.CreatedAt, &sk.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skill: %w", err)
	}
	return sk, nil
}

func (s *PostgresStore) CreateToolServer(ctx context.Context, t *models.ToolServer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_servers (id, user_id, name, transport, url, command, args, env, enabled, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.UserID, t.Name, t.Transport, t.URL, t.Command, pq.Array(t.Args), envJSON(t.Env), t.Enabled, t.Location, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create tool server: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListToolServers(ctx context.Context, userID string) ([]models.ToolServer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, transport, url, command, args, env, enabled, location, created_at, updated_at
		FROM tool_servers WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tool servers: %w", err)
	}
	defer rows.Close()

	var out []models.ToolServer
	for rows.Next() {
		var t models.ToolServer
		var env []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Transport, &t.URL, &t.Command, pq.Array(&t.Args), &env, &t.Enabled, &t.Location, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tool server: %w", err)
		}
		t.Env = parseEnvJSON(env)
		out = append(out, t)
	}
	return out, rows.Err()
}

// envJSON/parseEnvJSON round-trip a tool server's env map through the
// tool_servers.env JSONB column.
func envJSON(env map[string]string) []byte {
	if len(env) == 0 {
		return []byte("{}")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return []byte("{}")
	}
	return payload
}

func parseEnvJSON(raw []byte) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var env map[string]string
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	return env
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.FrameID, &m.Role, &m.Speaker, &m.Content, &m.Thinking, &m.AgentID, &m.RawInput, &m.RawOutput, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
