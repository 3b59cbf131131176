// Package view builds the per-agent message view: the single
// pure-function choke point that lets every agent see shared
// conversation history through a first-person chat role. It has no
// side effects and no dependency on the agent loop, the Administrator,
// or any I/O — it is unit tested purely on (history, viewer, user
// prefs, siblings) -> prepared messages.
package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/nexuscore/fabric/pkg/models"
)

// PreparedMessage is one entry in the sequence an LM call receives.
// Role is one of "system", "user", "assistant", "tool".
type PreparedMessage struct {
	Role    string
	Content string
}

// Config parameterizes Build for one viewing agent.
type Config struct {
	Viewer   models.Agent   // the agent whose view is being built
	User     models.User    // owner whose prefs shape the preamble
	Siblings []models.Agent // other agents present in the conversation
	Now      time.Time      // injected for determinism in tests
}

// siblingDescriptionLen is the truncation length for a sibling agent's
// system prompt when listed in another agent's preamble.
const siblingDescriptionLen = 150

// Build runs these steps, in order:
//
//  1. Synthesizes the viewer's system preamble (persona, user prefs,
//     timestamp, sibling roster) as the first message.
//  2. Walks the raw history oldest-first, tracking the last assistant
//     speaker so tool-message ownership is judged by who triggered the
//     tool call, not by the tool's own name.
//  3. Drops messages already absorbed into the preamble (role=system)
//     and anything authored by or owned by the Administrator.
//  4. Retags everything else to the first-person roles the LM
//     understands: the viewer's own turns become "assistant", tool
//     results it triggered become "tool", and everything else becomes
//     "user" with a "[{speaker}]: " / "[User]: " prefix.
func Build(history []models.Message, cfg Config) []PreparedMessage {
	out := []PreparedMessage{{Role: "system", Content: buildPreamble(cfg)}}

	var lastAssistantSpeaker string
	for _, m := range history {
		if m.Role == models.RoleSystem {
			continue
		}

		if m.Role == models.RoleAssistant {
			lastAssistantSpeaker = m.Speaker
		}

		if m.Role == models.RoleAssistant && m.IsAdministrator() {
			continue
		}
		if m.Role == models.RoleTool && lastAssistantSpeaker == models.AdministratorName {
			continue
		}

		switch {
		case m.Role == models.RoleAssistant && m.Speaker == cfg.Viewer.Name:
			out = append(out, PreparedMessage{Role: "assistant", Content: m.Content})
		case m.Role == models.RoleTool && lastAssistantSpeaker == cfg.Viewer.Name:
			out = append(out, PreparedMessage{Role: "tool", Content: m.Content})
		default:
			out = append(out, PreparedMessage{Role: "user", Content: prefixContent(m)})
		}
	}

	return out
}

func prefixContent(m models.Message) string {
	if m.Role == models.RoleUser || m.Speaker == "" {
		return fmt.Sprintf("[User]: %s", m.Content)
	}
	return fmt.Sprintf("[%s]: %s", m.Speaker, m.Content)
}

func buildPreamble(cfg Config) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("You are %s.", cfg.Viewer.Name))
	if cfg.Viewer.SystemPrompt != "" {
		parts = append(parts, cfg.Viewer.SystemPrompt)
	}
	if cfg.User.SystemPrompt != "" {
		parts = append(parts, cfg.User.SystemPrompt)
	}
	if name := cfg.User.PreferredName(); name != "" {
		parts = append(parts, fmt.Sprintf("The user prefers to be called: %s", name))
	}

	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	parts = append(parts, fmt.Sprintf("Current time: %s", now.UTC().Format(time.RFC3339)))

	if descs := siblingDescriptions(cfg); len(descs) > 0 {
		parts = append(parts, "Other agents in this conversation:\n"+strings.Join(descs, "\n")+
			"\n\nFocus on your own response; a separate system handles turn-taking.")
	}

	return strings.Join(parts, "\n\n")
}

func siblingDescriptions(cfg Config) []string {
	var descs []string
	for _, a := range cfg.Siblings {
		if a.Name == cfg.Viewer.Name {
			continue
		}
		descs = append(descs, fmt.Sprintf("- %s: %s", a.Name, a.DescriptionSnippet(siblingDescriptionLen)))
	}
	return descs
}
