package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// EmbeddedTor manages a private Tor daemon for the lifetime of one invocation.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout bounds the daemon bootstrap.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor creates a stopped daemon handle.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: 3 * time.Minute}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on ephemeral SOCKS and control ports and waits
// for it to bootstrap.
//
// Design decision: Ephemeral ports rather than Tor's usual 9050 let the
// embedded daemon run next to a system Tor, and let parallel invocations
// each own a daemon without colliding.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	if ctx.Err() != nil {
		_ = process.Stop() //nolint:errcheck // best effort
		return ctx.Err()
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	return nil
}

// Stop terminates the daemon. Stopping a stopped daemon is a no-op.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the daemon's SOCKS5 address, empty before Start.
func (e *EmbeddedTor) SocksAddr() string {
	return e.socksAddr
}

// IsRunning reports whether the daemon has been started and not stopped.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// NewClient returns a Client routed through the daemon.
func (e *EmbeddedTor) NewClient(opts ...Option) (*Client, error) {
	if !e.IsRunning() {
		return nil, ErrTorNotRunning
	}
	return NewClient(append(opts, WithProxy(e.socksAddr))...)
}
