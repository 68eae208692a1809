// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	// HelperEnv marks a re-executed test binary as the fake runtime.
	HelperEnv = "EDGESERVE_HELPER_PROCESS"

	// ModeEnv selects the fake runtime's behavior for "run":
	// "" serves the port, "exit" exits at once, "hang" never listens,
	// "stubborn" serves but ignores SIGTERM, "orphan" leaves a long-lived
	// child holding stdout and stderr, then serves.
	ModeEnv = "EDGESERVE_HELPER_MODE"

	// EnvDumpEnv names a file the fake runtime writes its environment to.
	EnvDumpEnv = "EDGESERVE_HELPER_ENV_DUMP"

	// BrokenGraphMarker makes "info --json" fail when present in the artifact.
	BrokenGraphMarker = "BROKEN_GRAPH"

	// FakeVersion is what the fake runtime reports for --version.
	FakeVersion = "1.2.5"
)

// FakeRuntimeRequested reports whether this process is a re-executed fake
// runtime. Call it first thing in TestMain.
func FakeRuntimeRequested() bool {
	return os.Getenv(HelperEnv) == "1"
}

// HelperEnvironment returns the variables a child needs to act as the fake
// runtime, merged with extra.
func HelperEnvironment(extra map[string]string) map[string]string {
	env := map[string]string{HelperEnv: "1"}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

// RunFakeRuntime interprets args like the runtime CLI and returns the exit
// code.
func RunFakeRuntime(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "fake runtime: no command")
		return 2
	}

	switch args[0] {
	case "--version":
		fmt.Printf("deno %s (release, x86_64-unknown-linux-gnu)\nv8 12.0\n", FakeVersion)
		return 0
	case "echo":
		fmt.Println(strings.Join(args[1:], " "))
		return 0
	case "fail":
		fmt.Fprintln(os.Stderr, "fake runtime failure")
		return 3
	case "cache":
		return 0
	case "linger":
		time.Sleep(lingerDuration)
		return 0
	case "info":
		return fakeInfo(args[1:])
	case "run":
		return fakeRun(args[1:])
	}

	fmt.Fprintf(os.Stderr, "fake runtime: unknown command %q\n", args[0])
	return 2
}

func fakeInfo(args []string) int {
	if len(args) < 2 || args[0] != "--json" {
		fmt.Fprintln(os.Stderr, "usage: info --json <file>")
		return 2
	}
	path := args[1]
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if strings.Contains(string(data), BrokenGraphMarker) {
		fmt.Fprintln(os.Stderr, "error: module graph unavailable")
		return 1
	}

	graph := map[string]any{
		"roots": []string{"file://" + path},
		"modules": []map[string]any{
			{"specifier": "file://" + path, "local": path, "size": len(data)},
		},
	}
	_ = json.NewEncoder(os.Stdout).Encode(graph)
	return 0
}

func fakeRun(args []string) int {
	if path := os.Getenv(EnvDumpEnv); path != "" {
		env := os.Environ()
		slices.Sort(env)
		_ = os.WriteFile(path, []byte(strings.Join(env, "\n")), 0o644)
	}

	idx := slices.Index(args, "--port")
	if idx < 0 || idx+1 >= len(args) {
		fmt.Fprintln(os.Stderr, "missing --port")
		return 2
	}
	port, err := strconv.Atoi(args[idx+1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid --port")
		return 2
	}

	mode := os.Getenv(ModeEnv)
	switch mode {
	case "exit":
		fmt.Fprintln(os.Stderr, "boot failed")
		return 1
	case "hang":
		time.Sleep(time.Hour)
		return 0
	}

	if mode == "orphan" {
		if err := spawnLingering(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	term := make(chan os.Signal, 1)
	if mode == "stubborn" {
		signal.Ignore(syscall.SIGTERM)
	} else {
		signal.Notify(term, syscall.SIGTERM, os.Interrupt)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = ln.Close() }()
	fmt.Printf("Listening on http://127.0.0.1:%d/\n", port)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	<-term
	return 0
}

// lingerDuration is how long an orphaned grandchild keeps the output pipes.
const lingerDuration = 30 * time.Second

// spawnLingering starts a grandchild that inherits stdout and stderr and is
// never waited for.
func spawnLingering() error {
	self, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(self, "linger")
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
