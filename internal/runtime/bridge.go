// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
)

type (
	// BinaryProvider returns the path of a usable runtime binary, installing
	// one on first use.
	BinaryProvider interface {
		EnsureBinary(ctx context.Context) (string, error)
	}

	// StartOptions control how a background process is spawned.
	StartOptions struct {
		// Env holds variables for the child.
		Env map[string]string

		// ExtendEnv adds the parent's environment beneath Env. When false the
		// child sees only Env.
		ExtendEnv bool

		// PipeOutput streams the child's stdout and stderr into the logger.
		// When false the output is discarded.
		PipeOutput bool

		// Dir is the child's working directory.
		Dir string
	}

	// Bridge runs the managed runtime binary.
	Bridge struct {
		binary BinaryProvider
		logger *log.Logger
		env    map[string]string
	}

	// BridgeOption configures a Bridge.
	BridgeOption func(*Bridge)
)

// WithLogger sets the logger that receives child output and diagnostics.
func WithLogger(l *log.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithEnv adds variables to every Run call, on top of the parent environment.
func WithEnv(env map[string]string) BridgeOption {
	return func(b *Bridge) { b.env = env }
}

// NewBridge creates a Bridge backed by binary.
func NewBridge(binary BinaryProvider, opts ...BridgeOption) *Bridge {
	b := &Bridge{binary: binary}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = log.New(io.Discard)
	}
	return b
}

// BinaryPath ensures the binary is installed and returns its path.
func (b *Bridge) BinaryPath(ctx context.Context) (string, error) {
	return b.binary.EnsureBinary(ctx)
}

// Run executes the binary with args, waits for it and captures its output.
// A non-zero exit returns the Result together with a *CommandError.
func (b *Bridge) Run(ctx context.Context, args ...string) (*Result, error) {
	path, err := b.binary.EnsureBinary(ctx)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, path, args...)
	if len(b.env) > 0 {
		cmd.Env = mergeEnviron(os.Environ(), b.env)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.logger.Debug("Running runtime command", "args", args)
	err = cmd.Run()
	result := &Result{Output: stdout.String(), ErrOutput: stderr.String()}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, &CommandError{Args: args, ExitCode: result.ExitCode, Stderr: result.ErrOutput}
		}
		return nil, fmt.Errorf("failed to execute runtime: %w", err)
	}
	return result, nil
}

// Start spawns the binary with args in the background. The child is not tied
// to ctx; stop it with Process.Stop.
func (b *Bridge) Start(ctx context.Context, args []string, opts StartOptions) (*Process, error) {
	path, err := b.binary.EnsureBinary(ctx)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = opts.Dir
	if opts.ExtendEnv {
		cmd.Env = mergeEnviron(os.Environ(), opts.Env)
	} else {
		cmd.Env = EnvToSlice(opts.Env)
	}

	b.logger.Debug("Starting runtime", "args", args)
	return startProcess(cmd, b.logger, opts.PipeOutput)
}
