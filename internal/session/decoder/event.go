package decoder

import "time"

// Event is one decoded unit of agent output. Events are immutable once
// constructed and are appended to the session's event log in arrival order.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      any // type-specific payload
}

// EventType identifies the kind of decoded event.
type EventType int

const (
	EventAssistantMessage EventType = iota
	EventToolResult
	EventTerminalResult
	EventOther
)

// String returns the event type name used on the wire.
func (t EventType) String() string {
	switch t {
	case EventAssistantMessage:
		return "assistant_message"
	case EventToolResult:
		return "tool_result"
	case EventTerminalResult:
		return "terminal_result"
	case EventOther:
		return "other"
	default:
		return "unknown"
	}
}

// AssistantMessageData is the payload for EventAssistantMessage.
type AssistantMessageData struct {
	Text         string   `json:"text,omitempty"`
	Thinking     string   `json:"thinking,omitempty"`
	Tools        []string `json:"tools,omitempty"`
	InputTokens  int64    `json:"input_tokens,omitempty"`
	OutputTokens int64    `json:"output_tokens,omitempty"`
}

// ToolResultData is the payload for EventToolResult.
type ToolResultData struct {
	Content string `json:"content,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// TerminalResultData is the payload for EventTerminalResult. The agent
// emits exactly one of these at the end of a well-behaved run.
type TerminalResultData struct {
	IsError      bool  `json:"is_error,omitempty"`
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}

// OtherData is the payload for EventOther: a well-formed record whose
// kind the decoder does not recognize.
type OtherData struct {
	RawType string `json:"raw_type"`
}
