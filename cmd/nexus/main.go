// Command nexus runs the multi-agent conversational runtime's gateway
// process: the WebSocket turn-orchestration server plus a
// handful of operator CLI commands for schema migration and inspecting
// persisted state. Grounded on the teacher's cmd/nexus/main.go (cobra
// root wiring, version variables), narrowed from its channel-adapter
// CLI surface (Telegram/Discord/Slack/plugins/pairing) to this
// runtime's core scope (see DESIGN.md for what was dropped and why).
package main

import (
	"fmt"
	"os"
)

// version, commit, and date are set via -ldflags at build time,
// mirroring the teacher's release tooling.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
