package models

import "testing"

func TestAgentExcludesTool(t *testing.T) {
	a := &Agent{ExcludedTools: []string{"delete_all", "websearch"}}
	if !a.ExcludesTool("delete_all") {
		t.Error("expected delete_all to be excluded")
	}
	if a.ExcludesTool("get_skill_instructions") {
		t.Error("did not expect get_skill_instructions to be excluded")
	}

	var nilAgent *Agent
	if nilAgent.ExcludesTool("anything") {
		t.Error("nil agent should exclude nothing")
	}
}

func TestAgentDescriptionSnippet(t *testing.T) {
	a := &Agent{SystemPrompt: "short prompt"}
	if got := a.DescriptionSnippet(150); got != "short prompt" {
		t.Errorf("got %q", got)
	}
}

func TestAgentDescriptionSnippetTruncates(t *testing.T) {
	prompt := ""
	for i := 0; i < 200; i++ {
		prompt += "a"
	}
	a := &Agent{SystemPrompt: prompt}
	got := a.DescriptionSnippet(150)
	if len(got) != 150 {
		t.Errorf("expected truncation to 150 runes, got %d", len(got))
	}
}

func TestAgentDescriptionSnippetEmpty(t *testing.T) {
	a := &Agent{}
	if got := a.DescriptionSnippet(150); got != "General assistant" {
		t.Errorf("got %q", got)
	}
}
