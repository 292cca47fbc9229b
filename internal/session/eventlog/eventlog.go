// Package eventlog provides the durable, append-only record of a
// session's decoded events. One JSONL file per session, truncated and
// recreated at session start. The supervisor's drain loop is the only
// writer; readers (status follow, dashboard) consume concurrently and
// treat a partial trailing record as not-yet-available.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"pilot/internal/session/decoder"
)

// FileName is the event log file name inside the session directory.
const FileName = "events.jsonl"

// Log is an open, writable session event log.
type Log struct {
	file *os.File
}

// Create truncates or creates the event log in the given session
// directory. Each session starts from an empty log.
func Create(sessionDir string) (*Log, error) {
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(sessionDir, FileName), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &Log{file: f}, nil
}

// Append JSON-encodes an event and writes it as a single line.
func (l *Log) Append(ev decoder.Event) error {
	data, err := json.Marshal(toEnvelope(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

// Path returns the event log file path.
func (l *Log) Path() string {
	return l.file.Name()
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.file.Close()
}

// Read reads all complete events from the log at path. Malformed lines
// and a partial trailing record are skipped.
func Read(path string) ([]decoder.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readEvents(f)
}

// Tail streams events appended after the current end of file, polling
// for growth. The returned channel is closed when ctx is cancelled.
func Tail(ctx context.Context, path string, pollInterval time.Duration) (<-chan decoder.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log for tail: %w", err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("seek to end: %w", err)
	}

	ch := make(chan decoder.Event, 64)
	go func() {
		defer f.Close()
		defer close(ch)
		reader := bufio.NewReader(f)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		var partial []byte
		for {
			// Read all currently available complete lines.
			for {
				line, err := reader.ReadBytes('\n')
				if err != nil {
					// Partial data (no trailing newline yet) — accumulate.
					partial = append(partial, line...)
					break
				}
				if len(partial) > 0 {
					line = append(partial, line...)
					partial = nil
				}
				ev, err := parseRecord(line)
				if err != nil {
					continue // skip malformed lines
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// --- Wire format ---

// envelope is the on-disk JSON shape: the decoded event plus its
// wall-clock timestamp.
type envelope struct {
	Timestamp time.Time       `json:"ts"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

var stringToType = map[string]decoder.EventType{
	"assistant_message": decoder.EventAssistantMessage,
	"tool_result":       decoder.EventToolResult,
	"terminal_result":   decoder.EventTerminalResult,
	"other":             decoder.EventOther,
}

func toEnvelope(ev decoder.Event) envelope {
	env := envelope{
		Timestamp: ev.Timestamp,
		Type:      ev.Type.String(),
	}
	if ev.Data != nil {
		data, _ := json.Marshal(ev.Data)
		env.Data = data
	}
	return env
}

func parseRecord(line []byte) (decoder.Event, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return decoder.Event{}, err
	}
	evType, ok := stringToType[env.Type]
	if !ok {
		return decoder.Event{}, fmt.Errorf("unknown event type: %s", env.Type)
	}

	ev := decoder.Event{Type: evType, Timestamp: env.Timestamp}
	if len(env.Data) > 0 {
		data, err := unmarshalData(evType, env.Data)
		if err != nil {
			return decoder.Event{}, fmt.Errorf("unmarshal data for %s: %w", env.Type, err)
		}
		ev.Data = data
	}
	return ev, nil
}

func unmarshalData(evType decoder.EventType, raw json.RawMessage) (any, error) {
	switch evType {
	case decoder.EventAssistantMessage:
		var d decoder.AssistantMessageData
		return d, json.Unmarshal(raw, &d)
	case decoder.EventToolResult:
		var d decoder.ToolResultData
		return d, json.Unmarshal(raw, &d)
	case decoder.EventTerminalResult:
		var d decoder.TerminalResultData
		return d, json.Unmarshal(raw, &d)
	case decoder.EventOther:
		var d decoder.OtherData
		return d, json.Unmarshal(raw, &d)
	default:
		var d map[string]any
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d, nil
	}
}

func readEvents(r io.Reader) ([]decoder.Event, error) {
	var events []decoder.Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := parseRecord(line)
		if err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	return events, scanner.Err()
}
