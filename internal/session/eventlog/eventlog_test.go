package eventlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pilot/internal/session/decoder"
)

func TestCreateTruncatesExistingLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("stale records from a prior session\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Create(dir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 0 {
		t.Errorf("log not truncated, has %d bytes", len(data))
	}
}

func TestAppendRead_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	l, err := Create(dir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer l.Close()

	events := []decoder.Event{
		{
			Type:      decoder.EventAssistantMessage,
			Timestamp: time.Now().UTC(),
			Data: decoder.AssistantMessageData{
				Text:  "hello",
				Tools: []string{"Bash: echo hi"},
			},
		},
		{
			Type:      decoder.EventToolResult,
			Timestamp: time.Now().UTC(),
			Data:      decoder.ToolResultData{Content: "hi", IsError: false},
		},
		{
			Type:      decoder.EventTerminalResult,
			Timestamp: time.Now().UTC(),
			Data:      decoder.TerminalResultData{InputTokens: 10, OutputTokens: 2},
		},
		{
			Type:      decoder.EventOther,
			Timestamp: time.Now().UTC(),
			Data:      decoder.OtherData{RawType: "system"},
		},
	}
	for _, ev := range events {
		if err := l.Append(ev); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := Read(l.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("read %d events, want %d", len(got), len(events))
	}
	for i := range events {
		if got[i].Type != events[i].Type {
			t.Errorf("event %d type = %v, want %v", i, got[i].Type, events[i].Type)
		}
	}

	am := got[0].Data.(decoder.AssistantMessageData)
	if am.Text != "hello" || len(am.Tools) != 1 {
		t.Errorf("assistant payload = %+v", am)
	}
	tr := got[2].Data.(decoder.TerminalResultData)
	if tr.InputTokens != 10 || tr.OutputTokens != 2 {
		t.Errorf("terminal payload = %+v", tr)
	}
}

func TestRead_SkipsMalformedAndPartialLines(t *testing.T) {
	dir := t.TempDir()
	l, err := Create(dir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := l.Append(decoder.Event{Type: decoder.EventOther, Timestamp: time.Now(), Data: decoder.OtherData{RawType: "x"}}); err != nil {
		t.Fatal(err)
	}
	// Simulate garbage plus a record cut mid-append.
	if _, err := l.file.WriteString("not json\n{\"ts\":\"2026-01-01T00:00:00Z\",\"type\":\"tool_re"); err != nil {
		t.Fatal(err)
	}
	l.Close()

	got, err := Read(l.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("read %d events, want 1", len(got))
	}
}

func TestTail_StreamsNewEvents(t *testing.T) {
	dir := t.TempDir()
	l, err := Create(dir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer l.Close()

	// Written before Tail starts — must not be replayed.
	if err := l.Append(decoder.Event{Type: decoder.EventOther, Timestamp: time.Now(), Data: decoder.OtherData{RawType: "old"}}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := Tail(ctx, l.Path(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}

	want := decoder.Event{
		Type:      decoder.EventAssistantMessage,
		Timestamp: time.Now(),
		Data:      decoder.AssistantMessageData{Text: "fresh"},
	}
	if err := l.Append(want); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-ch:
		if ev.Type != decoder.EventAssistantMessage {
			t.Errorf("type = %v, want assistant_message", ev.Type)
		}
		if ev.Data.(decoder.AssistantMessageData).Text != "fresh" {
			t.Errorf("text = %q, want fresh", ev.Data.(decoder.AssistantMessageData).Text)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for tailed event")
	}

	cancel()
	// Channel must close after cancellation.
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("tail channel never closed")
		}
	}
}
