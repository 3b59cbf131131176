package main

import "testing"

func TestBuildRootCmd(t *testing.T) {
	root := buildRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "agents", "skills", "sessions", "tool-servers"} {
		if !names[want] {
			t.Errorf("root command missing subcommand %q", want)
		}
	}
}

func TestDefaultConfigPath(t *testing.T) {
	if p := defaultConfigPath(); p == "" {
		t.Error("defaultConfigPath returned empty string")
	}
}
