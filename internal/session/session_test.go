//go:build !windows

package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"pilot/internal/config"
	"pilot/internal/session/decoder"
	"pilot/internal/session/eventlog"
	"pilot/internal/session/supervisor"
)

// stubAgent writes an executable script that ignores its stdin task and
// emits the given stream-json lines, then returns a config invoking it.
func stubAgent(t *testing.T, script string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stub-agent")
	full := "#!/bin/sh\ncat >/dev/null\n" + script
	if err := os.WriteFile(path, []byte(full), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Agent.Command = path
	cfg.Agent.Plain = true
	cfg.Budgets.SessionTimeoutSeconds = 30
	cfg.Budgets.IdleTimeoutSeconds = 30
	cfg.Budgets.PollIntervalSeconds = 1
	cfg.Budgets.DrainIntervalMs = 20
	return cfg
}

func TestRun_SuccessEndToEnd(t *testing.T) {
	cfg := stubAgent(t, `
echo '{"type":"assistant","message":{"content":[{"type":"text","text":"hello"}]}}'
echo '{"type":"result","is_error":false,"usage":{"input_tokens":10,"output_tokens":2}}'
`)
	workDir := t.TempDir()

	var mu sync.Mutex
	var seen []decoder.EventType
	res, err := Run(context.Background(), Options{
		Task:    "echo hello",
		WorkDir: workDir,
		Config:  cfg,
		OnEvent: func(ev decoder.Event) {
			mu.Lock()
			seen = append(seen, ev.Type)
			mu.Unlock()
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != supervisor.StatusSuccess {
		t.Fatalf("status = %v (cause %v), want success", res.Status, res.Cause)
	}
	if res.TokensIn != 10 || res.TokensOut != 2 {
		t.Errorf("tokens = %d/%d, want 10/2", res.TokensIn, res.TokensOut)
	}
	if res.SessionID == "" {
		t.Error("empty session id")
	}

	events, err := eventlog.Read(res.EventLogPath)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("event log has %d records, want 2", len(events))
	}
	if events[0].Type != decoder.EventAssistantMessage || events[1].Type != decoder.EventTerminalResult {
		t.Errorf("log order = %v, %v", events[0].Type, events[1].Type)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Errorf("OnEvent saw %d events, want 2", len(seen))
	}
}

func TestRun_ErrorResultEndToEnd(t *testing.T) {
	cfg := stubAgent(t, `echo '{"type":"result","is_error":true}'`)
	res, err := Run(context.Background(), Options{
		Task:    "break something",
		WorkDir: t.TempDir(),
		Config:  cfg,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != supervisor.StatusFailure || res.Cause != supervisor.CauseResultError {
		t.Errorf("status = %v/%v, want failure/result_error", res.Status, res.Cause)
	}
}

func TestRun_TruncatesPriorEventLog(t *testing.T) {
	cfg := stubAgent(t, `echo '{"type":"result","is_error":false}'`)
	workDir := t.TempDir()

	// First session leaves records behind.
	if _, err := Run(context.Background(), Options{Task: "a", WorkDir: workDir, Config: cfg, Logger: zerolog.Nop()}); err != nil {
		t.Fatal(err)
	}
	res, err := Run(context.Background(), Options{Task: "b", WorkDir: workDir, Config: cfg, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}

	events, err := eventlog.Read(res.EventLogPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("second session log has %d records, want 1 (log not truncated)", len(events))
	}
}

func TestBuildCommand(t *testing.T) {
	t.Run("default adds stream-json flags", func(t *testing.T) {
		agent := config.AgentConfig{Command: "claude", Model: "opus", ExtraArgs: "--max-turns 50"}
		args, stdin, err := buildCommand(agent, "do the thing")
		if err != nil {
			t.Fatal(err)
		}
		joined := ""
		for _, a := range args {
			joined += a + " "
		}
		for _, want := range []string{"--print", "--output-format", "stream-json", "--model", "opus", "--max-turns", "50"} {
			found := false
			for _, a := range args {
				if a == want {
					found = true
				}
			}
			if !found {
				t.Errorf("args %q missing %q", joined, want)
			}
		}
		if stdin == nil {
			t.Error("expected task on stdin")
		}
	})

	t.Run("plain passes only extra args", func(t *testing.T) {
		agent := config.AgentConfig{Command: "./stub", Plain: true, ExtraArgs: "-x"}
		args, stdin, err := buildCommand(agent, "task")
		if err != nil {
			t.Fatal(err)
		}
		if len(args) != 1 || args[0] != "-x" {
			t.Errorf("args = %v, want [-x]", args)
		}
		if stdin == nil {
			t.Error("expected task on stdin")
		}
	})

	t.Run("pty passes task as argument", func(t *testing.T) {
		agent := config.AgentConfig{Command: "claude", PTY: true}
		args, stdin, err := buildCommand(agent, "the task")
		if err != nil {
			t.Fatal(err)
		}
		if args[len(args)-1] != "the task" {
			t.Errorf("last arg = %q, want the task", args[len(args)-1])
		}
		if stdin != nil {
			t.Error("stdin must be nil in pty mode")
		}
	})
}
