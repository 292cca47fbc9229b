// Package decoder parses the agent's stream-json output into normalized
// Events. One line in, zero or one Event out. Malformed or partial lines
// are a normal part of streaming output and are skipped, never errors.
package decoder

import (
	"bytes"
	"encoding/json"
	"time"
)

// Free-text fields are truncated before storage so the event log and
// downstream rendering stay bounded regardless of agent verbosity.
const (
	MaxTextLen        = 500
	MaxThinkingLen    = 150
	MaxToolSummaryLen = 200
	MaxToolResultLen  = 300
)

// typeMarker is the cheap pre-filter applied before JSON parsing. Lines
// without it cannot be stream-json records and are skipped outright.
var typeMarker = []byte(`"type"`)

// Decode parses one raw output line. It returns the decoded Event and
// true, or a zero Event and false when the line carries nothing useful.
func Decode(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !bytes.Contains(line, typeMarker) {
		return Event{}, false
	}

	var rec streamRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return Event{}, false
	}
	if rec.Type == "" {
		return Event{}, false
	}

	now := time.Now()
	switch rec.Type {
	case "assistant":
		return decodeAssistant(rec, now)
	case "user":
		return decodeToolResult(rec, now)
	case "result":
		return Event{
			Type:      EventTerminalResult,
			Timestamp: now,
			Data: TerminalResultData{
				IsError:      rec.IsError,
				InputTokens:  rec.Usage.InputTokens,
				OutputTokens: rec.Usage.OutputTokens,
			},
		}, true
	default:
		return Event{
			Type:      EventOther,
			Timestamp: now,
			Data:      OtherData{RawType: rec.Type},
		}, true
	}
}

func decodeAssistant(rec streamRecord, ts time.Time) (Event, bool) {
	var msg streamMessage
	if len(rec.Message) > 0 {
		if err := json.Unmarshal(rec.Message, &msg); err != nil {
			return Event{}, false
		}
	}

	data := AssistantMessageData{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			data.Text = truncate(data.Text+block.Text, MaxTextLen)
		case "thinking":
			data.Thinking = truncate(data.Thinking+block.Thinking, MaxThinkingLen)
		case "tool_use":
			data.Tools = append(data.Tools, summarizeTool(block.Name, block.Input))
		}
	}
	return Event{Type: EventAssistantMessage, Timestamp: ts, Data: data}, true
}

// decodeToolResult extracts tool_result blocks from a "user" record. User
// records without one (e.g. echoed prompts) decode to Other.
func decodeToolResult(rec streamRecord, ts time.Time) (Event, bool) {
	var msg streamMessage
	if len(rec.Message) > 0 {
		if err := json.Unmarshal(rec.Message, &msg); err != nil {
			return Event{}, false
		}
	}
	for _, block := range msg.Content {
		if block.Type != "tool_result" {
			continue
		}
		return Event{
			Type:      EventToolResult,
			Timestamp: ts,
			Data: ToolResultData{
				Content: truncate(flattenContent(block.Content), MaxToolResultLen),
				IsError: block.IsError,
			},
		}, true
	}
	return Event{Type: EventOther, Timestamp: ts, Data: OtherData{RawType: rec.Type}}, true
}

// flattenContent handles the two shapes a tool_result content field takes:
// a plain string, or an array of {type: "text", text: ...} blocks.
func flattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var out string
	for _, b := range blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// truncate limits s to max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// --- stream-json wire types ---

type streamRecord struct {
	Type    string          `json:"type"`
	IsError bool            `json:"is_error,omitempty"`
	Usage   streamUsage     `json:"usage,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

type streamMessage struct {
	Role    string        `json:"role,omitempty"`
	Content []streamBlock `json:"content,omitempty"`
	Usage   streamUsage   `json:"usage,omitempty"`
}

type streamBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
	IsError  bool            `json:"is_error,omitempty"`
}

type streamUsage struct {
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}
