package wm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrManagerExited means the manager announced a real exit, not a
	// restart. The daemon should shut down with it.
	ErrManagerExited = errors.New("window manager exited")
	// ErrRetriesExhausted means the connection could not be reestablished
	// within the attempt budget. Stale state is worse than no state, so the
	// process exits and the supervisor restarts it.
	ErrRetriesExhausted = errors.New("manager connection retries exhausted")
)

// ManagerOptions tune the connection lifecycle.
type ManagerOptions struct {
	CommandTimeout time.Duration
	Backoff        time.Duration
	BackoffCap     time.Duration
	MaxAttempts    int
}

// Manager owns the IPC session: a command connection, a subscription stream,
// reconnection with exponential backoff, and the restart-versus-exit split.
type Manager struct {
	socketPath string
	opts       ManagerOptions
	logger     *zap.Logger

	rebuild func(context.Context) error

	mu     sync.Mutex
	client *Client
	stream *EventStream

	events     chan Event
	reconnects atomic.Int64
}

func NewManager(socketPath string, opts ManagerOptions, logger *zap.Logger) *Manager {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 5 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	return &Manager{
		socketPath: socketPath,
		opts:       opts,
		logger:     logger,
		events:     make(chan Event, 64),
	}
}

// SetRebuildHook registers the callback invoked after every successful
// reconnection, before event delivery resumes.
func (m *Manager) SetRebuildHook(fn func(context.Context) error) {
	m.rebuild = fn
}

// Client returns the current command connection.
func (m *Manager) Client() *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// Events is the decoded event stream. Closed when Run returns.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Reconnects counts successful reconnections since startup.
func (m *Manager) Reconnects() int64 {
	return m.reconnects.Load()
}

// ConnectWithRetry establishes the session, retrying with exponential
// backoff up to maxAttempts (0 means the configured default).
func (m *Manager) ConnectWithRetry(ctx context.Context, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = m.opts.MaxAttempts
	}
	backoff := m.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := m.connect(); err != nil {
			lastErr = err
			m.logger.Warn("manager connect failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > m.opts.BackoffCap {
				backoff = m.opts.BackoffCap
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, maxAttempts, lastErr)
}

func (m *Manager) connect() error {
	client, err := Dial(m.socketPath, m.opts.CommandTimeout)
	if err != nil {
		return err
	}
	stream, err := Subscribe(m.socketPath, SubscriptionEvents, m.opts.CommandTimeout)
	if err != nil {
		client.Close() //nolint:errcheck
		return err
	}
	m.mu.Lock()
	oldClient, oldStream := m.client, m.stream
	m.client, m.stream = client, stream
	m.mu.Unlock()
	if oldClient != nil {
		oldClient.Close() //nolint:errcheck
	}
	if oldStream != nil {
		oldStream.Close() //nolint:errcheck
	}
	return nil
}

// Run pumps decoded events into Events until the context is canceled, the
// manager exits, or reconnection fails for good. A lost connection is
// retried transparently; a successful reconnect triggers the rebuild hook
// exactly once before delivery resumes.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.events)

	// Unblock the stream reader on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			m.closeStream()
		case <-done:
		}
	}()

	for {
		m.mu.Lock()
		stream := m.stream
		m.mu.Unlock()
		if stream == nil {
			return errors.New("manager session not connected")
		}

		ev, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("manager event stream lost", zap.Error(err))
			if err := m.reconnect(ctx); err != nil {
				return err
			}
			continue
		}

		if ev.Type == EventShutdown {
			var payload ShutdownEvent
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				m.logger.Warn("undecodable shutdown event", zap.Error(err))
				continue
			}
			if payload.Change == ShutdownExit {
				m.logger.Info("manager is exiting")
				return ErrManagerExited
			}
			// Restart: the stream will error out shortly; the read-error
			// path reconnects and rebuilds.
			m.logger.Info("manager is restarting, awaiting reconnect")
			continue
		}

		select {
		case m.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) reconnect(ctx context.Context) error {
	if err := m.ConnectWithRetry(ctx, 0); err != nil {
		return err
	}
	m.reconnects.Add(1)
	if m.rebuild != nil {
		if err := m.rebuild(ctx); err != nil {
			m.logger.Error("state rebuild after reconnect failed", zap.Error(err))
		}
	}
	m.logger.Info("manager session reestablished",
		zap.Int64("reconnects", m.reconnects.Load()))
	return nil
}

func (m *Manager) closeStream() {
	m.mu.Lock()
	stream := m.stream
	m.mu.Unlock()
	if stream != nil {
		stream.Close() //nolint:errcheck
	}
}

// Close tears down both connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	client, stream := m.client, m.stream
	m.client, m.stream = nil, nil
	m.mu.Unlock()
	var errs []error
	if stream != nil {
		if err := stream.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if client != nil {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close manager session: %v", errs)
	}
	return nil
}
