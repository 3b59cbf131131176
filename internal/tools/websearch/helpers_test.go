package websearch

import "encoding/json"

// toArgs round-trips v through JSON to produce the map[string]any shape
// the agent runtime passes to Tool.Execute.
func toArgs(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil
	}
	return args
}
