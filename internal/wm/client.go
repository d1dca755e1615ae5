package wm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

var (
	ErrNoSocket        = errors.New("window manager socket path is not set")
	ErrCommandFailed   = errors.New("manager command failed")
	ErrSubscribeDenied = errors.New("manager rejected subscription")
)

// Client is the request/response half of the manager session. One frame in
// flight at a time; the stream half lives on its own connection so command
// replies never interleave with events.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

// Dial opens a command connection to the manager socket.
func Dial(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		return nil, ErrNoSocket
	}
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial manager socket: %w", err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) roundTrip(ctx context.Context, msgType uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, net.ErrClosed
	}
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if err := writeMessage(c.conn, msgType, payload); err != nil {
		return nil, err
	}
	for {
		gotType, reply, err := readMessage(c.conn)
		if err != nil {
			return nil, err
		}
		// A command connection should never see event frames, but tolerate
		// and skip them rather than desynchronize.
		if gotType&eventFlag != 0 {
			continue
		}
		if gotType != msgType {
			return nil, fmt.Errorf("reply type mismatch: sent %d, got %d", msgType, gotType)
		}
		return reply, nil
	}
}

// RunCommand executes a manager command string and fails on the first
// unsuccessful result.
func (c *Client) RunCommand(ctx context.Context, command string) error {
	reply, err := c.roundTrip(ctx, msgRunCommand, []byte(command))
	if err != nil {
		return err
	}
	var results []CommandResult
	if err := json.Unmarshal(reply, &results); err != nil {
		return fmt.Errorf("decode command reply: %w", err)
	}
	for _, res := range results {
		if !res.Success {
			return fmt.Errorf("%w: %s: %s", ErrCommandFailed, command, res.Error)
		}
	}
	return nil
}

// GetTree fetches the full layout tree.
func (c *Client) GetTree(ctx context.Context) (*Node, error) {
	reply, err := c.roundTrip(ctx, msgGetTree, nil)
	if err != nil {
		return nil, err
	}
	var root Node
	if err := json.Unmarshal(reply, &root); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	return &root, nil
}

// GetWorkspaces fetches the current workspace list.
func (c *Client) GetWorkspaces(ctx context.Context) ([]Workspace, error) {
	reply, err := c.roundTrip(ctx, msgGetWorkspaces, nil)
	if err != nil {
		return nil, err
	}
	var workspaces []Workspace
	if err := json.Unmarshal(reply, &workspaces); err != nil {
		return nil, fmt.Errorf("decode workspaces: %w", err)
	}
	return workspaces, nil
}

// SendTick broadcasts an application-level signal through the manager's
// event bus.
func (c *Client) SendTick(ctx context.Context, payload string) error {
	reply, err := c.roundTrip(ctx, msgSendTick, []byte(payload))
	if err != nil {
		return err
	}
	var res struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(reply, &res); err != nil {
		return fmt.Errorf("decode tick reply: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("%w: tick", ErrCommandFailed)
	}
	return nil
}

// EventStream is the subscription half of the session: a dedicated
// connection that only ever receives event frames after the subscribe
// handshake.
type EventStream struct {
	conn net.Conn
}

// Subscribe opens a new connection and subscribes to the given event names.
func Subscribe(socketPath string, events []string, timeout time.Duration) (*EventStream, error) {
	if socketPath == "" {
		return nil, ErrNoSocket
	}
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial manager socket: %w", err)
	}
	payload, err := json.Marshal(events)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("encode subscription: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if err := writeMessage(conn, msgSubscribe, payload); err != nil {
		conn.Close() //nolint:errcheck
		return nil, err
	}
	msgType, reply, err := readMessage(conn)
	if err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("read subscribe reply: %w", err)
	}
	if msgType != msgSubscribe {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("subscribe reply type mismatch: %d", msgType)
	}
	var res struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(reply, &res); err != nil || !res.Success {
		conn.Close() //nolint:errcheck
		if err != nil {
			return nil, fmt.Errorf("decode subscribe reply: %w", err)
		}
		return nil, ErrSubscribeDenied
	}
	// Event delivery has no deadline; the manager pushes frames as they
	// happen and Close unblocks the reader.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("clear deadline: %w", err)
	}
	return &EventStream{conn: conn}, nil
}

// Next blocks until the next event frame arrives.
func (s *EventStream) Next() (Event, error) {
	for {
		msgType, payload, err := readMessage(s.conn)
		if err != nil {
			return Event{}, err
		}
		if msgType&eventFlag == 0 {
			// Stray reply frame; not ours to interpret.
			continue
		}
		return Event{Type: EventType(msgType), Payload: payload}, nil
	}
}

func (s *EventStream) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// SubscriptionEvents is the fixed event set the daemon subscribes to.
var SubscriptionEvents = []string{"window", "workspace", "shutdown", "tick"}

// Quote escapes a string for use inside a manager command.
func Quote(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}
