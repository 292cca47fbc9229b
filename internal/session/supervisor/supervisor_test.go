//go:build !windows

package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pilot/internal/session/decoder"
	"pilot/internal/session/eventlog"
)

// testConfig returns a Config that runs the given shell script with
// budgets sized for fast tests.
func testConfig(t *testing.T, script string) Config {
	t.Helper()
	dir := t.TempDir()
	log, err := eventlog.Create(dir)
	if err != nil {
		t.Fatalf("create event log: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return Config{
		Command:       "sh",
		Args:          []string{"-c", script},
		Dir:           dir,
		RawOutputPath: filepath.Join(dir, "agent-output.log"),
		Log:           log,
		SessionBudget: 10 * time.Second,
		IdleBudget:    10 * time.Second,
		PollInterval:  25 * time.Millisecond,
		DrainInterval: 20 * time.Millisecond,
		KillGrace:     100 * time.Millisecond,
	}
}

const successScript = `
echo '{"type":"assistant","message":{"content":[{"type":"text","text":"hello"}]}}'
echo '{"type":"result","is_error":false,"usage":{"input_tokens":10,"output_tokens":2}}'
`

func TestRun_Success(t *testing.T) {
	cfg := testConfig(t, successScript)
	out, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusSuccess {
		t.Fatalf("status = %v (cause %v), want success", out.Status, out.Cause)
	}
	if out.InputTokens != 10 || out.OutputTokens != 2 {
		t.Errorf("tokens = %d/%d, want 10/2", out.InputTokens, out.OutputTokens)
	}

	events, err := eventlog.Read(cfg.Log.Path())
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("event log has %d records, want 2", len(events))
	}
	if events[0].Type != decoder.EventAssistantMessage || events[1].Type != decoder.EventTerminalResult {
		t.Errorf("event order = %v, %v", events[0].Type, events[1].Type)
	}
	if events[0].Data.(decoder.AssistantMessageData).Text != "hello" {
		t.Errorf("text = %q, want hello", events[0].Data.(decoder.AssistantMessageData).Text)
	}
}

func TestRun_ErrorResult(t *testing.T) {
	cfg := testConfig(t, `echo '{"type":"result","is_error":true}'`)
	out, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusFailure || out.Cause != CauseResultError {
		t.Errorf("status = %v/%v, want failure/result_error", out.Status, out.Cause)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	cfg := testConfig(t, `echo 'not json at all'; exit 3`)
	out, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusFailure || out.Cause != CauseExitCode {
		t.Errorf("status = %v/%v, want failure/exit_code", out.Status, out.Cause)
	}
	if out.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", out.ExitCode)
	}
}

func TestRun_CleanExitWithoutResult(t *testing.T) {
	cfg := testConfig(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}'`)
	out, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusFailure || out.Cause != CauseNoResult {
		t.Errorf("status = %v/%v, want failure/no_result", out.Status, out.Cause)
	}
}

func TestRun_WallClockKill(t *testing.T) {
	cfg := testConfig(t, `sleep 30`)
	cfg.SessionBudget = 150 * time.Millisecond

	start := time.Now()
	out, err := Run(context.Background(), cfg)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusKilled || out.Cause != CauseWallClock {
		t.Errorf("status = %v/%v, want killed/wall_clock", out.Status, out.Cause)
	}
	// Budget plus one poll interval plus the kill grace, with slack.
	if elapsed > 2*time.Second {
		t.Errorf("kill took %v, want well under 2s", elapsed)
	}
}

func TestRun_IdleKill(t *testing.T) {
	cfg := testConfig(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"one line then silence"}]}}'; sleep 30`)
	cfg.IdleBudget = 150 * time.Millisecond

	start := time.Now()
	out, err := Run(context.Background(), cfg)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusKilled || out.Cause != CauseIdle {
		t.Errorf("status = %v/%v, want killed/idle", out.Status, out.Cause)
	}
	if elapsed > 2*time.Second {
		t.Errorf("kill took %v, want well under 2s", elapsed)
	}

	// The line before the silence must still be in the log.
	events, err := eventlog.Read(cfg.Log.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != decoder.EventAssistantMessage {
		t.Errorf("events = %v, want one assistant message", events)
	}
}

func TestRun_KillsProcessGroupDescendants(t *testing.T) {
	// The child backgrounds a grandchild writing a heartbeat file, then
	// sleeps. After the wall-clock kill the heartbeat must stop too.
	cfg := testConfig(t, `(while true; do echo beat >> grandchild.txt; sleep 0.05; done) & sleep 30`)
	cfg.SessionBudget = 150 * time.Millisecond

	out, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusKilled {
		t.Fatalf("status = %v, want killed", out.Status)
	}

	marker := filepath.Join(cfg.Dir, "grandchild.txt")
	sizeAt := func() int64 {
		fi, err := os.Stat(marker)
		if err != nil {
			return 0
		}
		return fi.Size()
	}
	before := sizeAt()
	time.Sleep(300 * time.Millisecond)
	if after := sizeAt(); after != before {
		t.Errorf("grandchild still writing after kill: %d -> %d bytes", before, after)
	}
}

func TestRun_NaturalExitBeatsExpiry(t *testing.T) {
	// The child exits right around the budget mark. Whichever side wins
	// the race, exactly one terminal status comes back, and a completed
	// protocol must never be reported as killed.
	cfg := testConfig(t, successScript)
	cfg.SessionBudget = 10 * time.Second
	cfg.PollInterval = 10 * time.Millisecond

	out, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusSuccess {
		t.Errorf("status = %v (cause %v), want success", out.Status, out.Cause)
	}
}

func TestRun_CallerCancellation(t *testing.T) {
	cfg := testConfig(t, `sleep 30`)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out, err := Run(ctx, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Status != StatusKilled || out.Cause != CauseCancelled {
		t.Errorf("status = %v/%v, want killed/cancelled", out.Status, out.Cause)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took %v, want well under 2s", elapsed)
	}
}

func TestTerminateTree_IdempotentAfterExit(t *testing.T) {
	cfg := testConfig(t, `true`)
	raw, err := os.OpenFile(cfg.RawOutputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	h, err := startProcess(cfg, raw)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		h.wait() //nolint:errcheck
		close(exited)
	}()
	<-exited

	// Signaling an already-reaped process group twice must not panic or
	// report anything.
	h.terminateTree(50*time.Millisecond, exited)
	h.terminateTree(50*time.Millisecond, exited)
	h.closeIO()
}
