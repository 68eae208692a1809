// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultStopGrace is how long Stop waits after SIGTERM before killing.
	DefaultStopGrace = 2 * time.Second

	// pipeWaitDelay bounds how long Wait keeps copying output after the
	// child exits. Grandchildren may hold the pipes open indefinitely.
	pipeWaitDelay = time.Second

	maxLogLine = 1024 * 1024
)

// Process is a handle to a spawned runtime child.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	waitErr error
}

func startProcess(cmd *exec.Cmd, logger *log.Logger, pipe bool) (*Process, error) {
	var stdout, stderr *lineLogger
	if pipe {
		stdout = &lineLogger{logger: logger, prefix: "stdout"}
		stderr = &lineLogger{logger: logger, prefix: "stderr"}
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}
	cmd.WaitDelay = pipeWaitDelay

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		if errors.Is(err, exec.ErrWaitDelay) {
			// The child exited cleanly; only its output outlived it.
			err = nil
		}
		if pipe {
			stdout.flush()
			stderr.flush()
		}
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p, nil
}

// lineLogger is an io.Writer that logs each complete line it receives.
type lineLogger struct {
	logger *log.Logger
	prefix string

	mu  sync.Mutex
	buf []byte
}

func (w *lineLogger) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLogLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(b), nil
}

func (w *lineLogger) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineLogger) emit(line []byte) {
	w.logger.Info(string(bytes.TrimSuffix(line, []byte("\r"))), "prefix", w.prefix)
}

// Pid returns the child's process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the child has exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the wait error after Done is closed, nil before.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Stop asks the child to terminate with SIGTERM and kills it if it is still
// running after DefaultStopGrace or when ctx ends. It returns once the child
// has been reaped, or with ctx's error if reaping outlives ctx.
func (p *Process) Stop(ctx context.Context) error {
	return p.StopWithGrace(ctx, DefaultStopGrace)
}

// StopWithGrace is Stop with a custom grace period.
func (p *Process) StopWithGrace(ctx context.Context, grace time.Duration) error {
	if p.Exited() {
		return nil
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Signals other than Kill are unsupported on Windows.
		return p.kill(ctx)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	return p.kill(ctx)
}

func (p *Process) kill(ctx context.Context) error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		select {
		case <-p.done:
			return nil
		default:
			return fmt.Errorf("killing runtime process %d: %w", p.Pid(), err)
		}
	}

	// Kill is final, so reaping needs at most pipeWaitDelay more.
	timer := time.NewTimer(pipeWaitDelay + time.Second)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("runtime process %d not reaped after kill", p.Pid())
	case <-ctx.Done():
		return fmt.Errorf("waiting for runtime process %d: %w", p.Pid(), ctx.Err())
	}
}
