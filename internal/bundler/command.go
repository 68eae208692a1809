// SPDX-License-Identifier: MPL-2.0

package bundler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/edgeserve/edgeserve/internal/runtime"
)

// maxStderrBytes bounds the bundler stderr kept for error messages.
const maxStderrBytes = 64 << 10

var errNoArtifact = errors.New("bundler exited without producing an artifact")

type (
	// CommandBundler runs an external bundler executable that speaks the
	// JSON-lines protocol in protocol.go.
	CommandBundler struct {
		command string
		args    []string
		env     map[string]string
		logger  *log.Logger
	}

	// CommandOption configures a CommandBundler.
	CommandOption func(*CommandBundler)

	// limitedBuffer keeps the first max bytes written to it.
	limitedBuffer struct {
		mu  sync.Mutex
		buf bytes.Buffer
		max int
	}
)

// WithEnv adds variables to the bundler's environment.
func WithEnv(env map[string]string) CommandOption {
	return func(c *CommandBundler) { c.env = env }
}

// WithLogger sets the logger for bundler log messages.
func WithLogger(l *log.Logger) CommandOption {
	return func(c *CommandBundler) { c.logger = l }
}

// NewCommandBundler creates a bundler that runs command with args per build.
func NewCommandBundler(command string, args []string, opts ...CommandOption) *CommandBundler {
	c := &CommandBundler{command: command, args: args}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	return c
}

// Build runs one bundler process. A load failure aborts the build at once
// and is returned unchanged.
func (c *CommandBundler) Build(ctx context.Context, roots []string, load LoadFunc, importMapURL string) (_ []byte, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Env = append(os.Environ(), runtime.EnvToSlice(c.env)...)

	stderr := &limitedBuffer{max: maxStderrBytes}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating bundler stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating bundler stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting bundler: %w", err)
	}
	defer func() {
		_ = stdin.Close()
		if err != nil {
			cancel()
		}
		// Stderr is complete only after Wait.
		waitErr := cmd.Wait()
		switch {
		case errors.Is(err, errNoArtifact):
			err = fmt.Errorf("%w%s", errNoArtifact, stderr.suffix())
		case err == nil && waitErr != nil:
			err = fmt.Errorf("bundler exited: %w%s", waitErr, stderr.suffix())
		}
	}()

	enc := json.NewEncoder(stdin)
	if err := enc.Encode(HostMessage{Type: MsgBuild, Roots: roots, ImportMapURL: importMapURL}); err != nil {
		return nil, fmt.Errorf("sending build request: %w", err)
	}

	dec := json.NewDecoder(stdout)
	for {
		var msg BundlerMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errNoArtifact
			}
			return nil, fmt.Errorf("reading bundler output: %w", err)
		}

		switch msg.Type {
		case MsgLoad:
			res, loadErr := load(ctx, msg.Specifier)
			if loadErr != nil {
				return nil, loadErr
			}
			if err := enc.Encode(HostMessage{Type: MsgLoaded, ID: msg.ID, Result: res}); err != nil {
				return nil, fmt.Errorf("answering load of %s: %w", msg.Specifier, err)
			}
		case MsgArtifact:
			return msg.Data, nil
		case MsgError:
			return nil, &ReportedError{Message: msg.Message}
		case MsgLog:
			c.logger.Debug(msg.Message, "prefix", "bundler")
		default:
			return nil, fmt.Errorf("unexpected bundler message %q", msg.Type)
		}
	}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}

func (b *limitedBuffer) suffix() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSpace(b.buf.String())
	if s == "" {
		return ""
	}
	return ": " + s
}
