package decoder

import "encoding/json"

// toolArg maps a tool name to the input field that best summarizes an
// invocation of it. Unlisted tools fall back to the bare tool name.
var toolArg = map[string]string{
	"Bash":         "command",
	"Read":         "file_path",
	"Write":        "file_path",
	"Edit":         "file_path",
	"NotebookEdit": "notebook_path",
	"Grep":         "pattern",
	"Glob":         "pattern",
	"WebFetch":     "url",
	"WebSearch":    "query",
	"Task":         "description",
}

// summarizeTool renders a tool invocation into one human-readable line,
// e.g. "Bash: npm test" or "Read: internal/session/session.go".
func summarizeTool(name string, input json.RawMessage) string {
	if name == "" {
		name = "tool"
	}
	field, ok := toolArg[name]
	if !ok || len(input) == 0 {
		return truncate(name, MaxToolSummaryLen)
	}

	var args map[string]json.RawMessage
	if err := json.Unmarshal(input, &args); err != nil {
		return truncate(name, MaxToolSummaryLen)
	}
	var detail string
	if raw, ok := args[field]; ok {
		json.Unmarshal(raw, &detail) //nolint:errcheck // non-string detail stays empty
	}
	if detail == "" {
		return truncate(name, MaxToolSummaryLen)
	}
	return truncate(name+": "+detail, MaxToolSummaryLen)
}
