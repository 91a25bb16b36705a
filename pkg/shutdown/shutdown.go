// Package shutdown turns SIGINT/SIGTERM into context cancellation and runs
// registered cleanup functions in reverse order
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/logging"
)

// Manager handles graceful shutdown
type Manager struct {
	shutdownFuncs []func(context.Context) error
	mu            sync.Mutex
	timeout       time.Duration
	logger        *logging.Logger
	signals       chan os.Signal
	doneChan      chan struct{}
	once          sync.Once
}

// New creates a new shutdown manager
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		shutdownFuncs: make([]func(context.Context) error, 0),
		timeout:       timeout,
		logger:        logger.WithField("component", "shutdown"),
		signals:       make(chan os.Signal, 1),
		doneChan:      make(chan struct{}),
	}
}

// Register adds a shutdown function.
// Functions are called in reverse order (LIFO).
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, fn)
}

// Context returns a child of parent that is canceled on the first SIGINT or
// SIGTERM. Nothing else happens on the signal: whoever owns the work observes
// the cancellation and finishes on its own goroutine.
func (m *Manager) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signal.Notify(m.signals, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(m.signals)
		select {
		case sig := <-m.signals:
			m.logger.Warn("Received signal, initiating graceful shutdown", map[string]interface{}{
				"signal": sig.String(),
			})
			m.once.Do(func() { close(m.doneChan) })
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Trigger delivers sig as if the process had received it
func (m *Manager) Trigger(sig os.Signal) {
	select {
	case m.signals <- sig:
	default:
	}
}

// Done returns a channel that is closed when a signal was received
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Shutdown executes all registered shutdown functions once each and returns
// their combined errors
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var err error
	for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
		if fnErr := m.shutdownFuncs[i](ctx); fnErr != nil {
			m.logger.Error("Shutdown function failed", map[string]interface{}{
				"index": i,
				"error": fnErr.Error(),
			})
			err = multierr.Append(err, fnErr)
		}
	}
	m.shutdownFuncs = nil

	m.logger.Debug("Graceful shutdown complete")
	return err
}

// StopHTTPServer creates a shutdown function for http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop %s server: %w", name, err)
		}
		return nil
	}
}

// CloseResource creates a shutdown function for io.Closer
func CloseResource(closer interface{ Close() error }, name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", name, err)
		}
		return nil
	}
}

// OnInterrupt returns the function a rank runs once its work returns, either
// normally or because ctx was canceled. A registry that is still active is
// finalized first, then emit runs for the results. The returned function
// must run on the rank's own goroutine, like every other registry call.
func OnInterrupt(reg *events.Registry, emit func(*events.Registry) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if reg.Active() {
			if err := reg.Finalize(); err != nil {
				return err
			}
		}
		if emit == nil {
			return nil
		}
		return emit(reg)
	}
}
