// SPDX-License-Identifier: MPL-2.0

package supervisor

import (
	"context"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultReadinessInterval is the delay between connection probes.
	DefaultReadinessInterval = 100 * time.Millisecond

	// DefaultReadinessTimeout bounds how long a start may wait for the port.
	DefaultReadinessTimeout = 60 * time.Second

	// DefaultReadinessHost is the address probed for the runtime port.
	DefaultReadinessHost = "127.0.0.1"
)

type (
	// ReadinessOptions configure WaitForServer. Zero fields take the defaults.
	ReadinessOptions struct {
		Host     string
		Interval time.Duration
		Timeout  time.Duration
	}

	// exitWatcher is satisfied by *runtime.Process.
	exitWatcher interface {
		Done() <-chan struct{}
	}
)

func (o ReadinessOptions) withDefaults() ReadinessOptions {
	if o.Host == "" {
		o.Host = DefaultReadinessHost
	}
	if o.Interval <= 0 {
		o.Interval = DefaultReadinessInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultReadinessTimeout
	}
	return o
}

// WaitForServer probes host:port until a TCP connection succeeds. It returns
// false as soon as proc exits, the timeout passes or ctx ends.
func WaitForServer(ctx context.Context, port int, proc exitWatcher, opts ReadinessOptions) bool {
	opts = opts.withDefaults()
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	deadline := time.NewTimer(opts.Timeout)
	defer deadline.Stop()

	for {
		// An exited process wins over a port that someone else holds.
		select {
		case <-proc.Done():
			return false
		default:
		}

		if probe(addr, opts.Interval) {
			return true
		}

		select {
		case <-proc.Done():
			return false
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func probe(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
