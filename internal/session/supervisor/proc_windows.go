//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"strconv"
	"time"
)

// procHandle owns the child process. Windows has no POSIX process
// groups; tree termination goes through taskkill instead.
type procHandle struct {
	cmd      *exec.Cmd
	out      *os.File
	copyDone chan struct{}
}

// startProcess spawns the agent with its combined output redirected into
// the raw output file. UsePTY is ignored on Windows.
func startProcess(cfg Config, out *os.File) (*procHandle, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnv(cfg.Env)
	cmd.Stdin = cfg.Stdin
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	h := &procHandle{cmd: cmd, out: out, copyDone: make(chan struct{})}
	close(h.copyDone)
	return h, nil
}

func (h *procHandle) wait() error {
	return h.cmd.Wait()
}

func (h *procHandle) outputDone() <-chan struct{} {
	return h.copyDone
}

// terminateTree kills the child and its descendants via taskkill /T,
// falling back to killing the direct child. Best-effort and idempotent.
func (h *procHandle) terminateTree(grace time.Duration, exited <-chan struct{}) {
	pid := strconv.Itoa(h.cmd.Process.Pid)
	exec.Command("taskkill", "/T", "/PID", pid).Run() //nolint:errcheck // best-effort graceful ask
	select {
	case <-exited:
		return
	case <-time.After(grace):
	}
	exec.Command("taskkill", "/T", "/F", "/PID", pid).Run() //nolint:errcheck // best-effort
	h.cmd.Process.Kill()                                    //nolint:errcheck // may already be gone
}

func (h *procHandle) closeIO() {
	h.out.Close()
}

func exitedOnSignal(ee *exec.ExitError) bool {
	return false
}
