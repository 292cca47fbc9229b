//go:build !windows

package supervisor

import (
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// procHandle owns the child process and its process-group identifier.
// Never exposed outside spawn, signal delivery, and cleanup.
type procHandle struct {
	cmd  *exec.Cmd
	pgid int

	out      *os.File // raw output file, write side
	ptm      *os.File // pty master, nil in pipe mode
	copyDone chan struct{}
}

// startProcess spawns the agent with its combined output redirected into
// the raw output file. The child is placed in a new process group so all
// of its descendants can be signaled as a unit: Setpgid in pipe mode,
// setsid via the pty in PTY mode.
func startProcess(cfg Config, out *os.File) (*procHandle, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = buildEnv(cfg.Env)

	h := &procHandle{cmd: cmd, out: out, copyDone: make(chan struct{})}

	if cfg.UsePTY {
		ptm, err := pty.Start(cmd)
		if err != nil {
			return nil, err
		}
		h.ptm = ptm
		go func() {
			defer close(h.copyDone)
			io.Copy(out, ptm) //nolint:errcheck // EIO on child exit is the normal stop
		}()
	} else {
		cmd.Stdin = cfg.Stdin
		cmd.Stdout = out
		cmd.Stderr = out
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		close(h.copyDone)
	}

	h.pgid = cmd.Process.Pid
	return h, nil
}

// wait reaps the child process.
func (h *procHandle) wait() error {
	return h.cmd.Wait()
}

// outputDone is closed once all child output has reached the raw file.
func (h *procHandle) outputDone() <-chan struct{} {
	return h.copyDone
}

// terminateTree signals the whole process group: graceful SIGTERM, a
// grace interval for well-behaved children to flush, then SIGKILL.
// Best-effort and idempotent — a group that is already gone is not an
// error.
func (h *procHandle) terminateTree(grace time.Duration, exited <-chan struct{}) {
	syscall.Kill(-h.pgid, syscall.SIGTERM) //nolint:errcheck // group may already be reaped
	select {
	case <-exited:
	case <-time.After(grace):
	}
	syscall.Kill(-h.pgid, syscall.SIGKILL) //nolint:errcheck // group may already be reaped
}

// closeIO releases the pty master and raw output writer.
func (h *procHandle) closeIO() {
	if h.ptm != nil {
		h.ptm.Close()
	}
	h.out.Close()
}

// exitedOnSignal reports whether the wait status records death by signal.
func exitedOnSignal(ee *exec.ExitError) bool {
	ws, ok := ee.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}
