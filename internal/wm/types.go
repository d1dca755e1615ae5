package wm

import "encoding/json"

// Rect is a window geometry in output-relative pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// WindowProperties are the X11-style class hints. Best effort: Wayland-native
// windows carry an AppID on the node instead.
type WindowProperties struct {
	Class    string `json:"class"`
	Instance string `json:"instance"`
	Title    string `json:"title"`
}

// Node is one node of the manager's layout tree.
type Node struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Output           string            `json:"output,omitempty"`
	PID              int64             `json:"pid,omitempty"`
	AppID            string            `json:"app_id,omitempty"`
	Marks            []string          `json:"marks,omitempty"`
	Focused          bool              `json:"focused"`
	Urgent           bool              `json:"urgent"`
	Rect             Rect              `json:"rect"`
	WindowProperties *WindowProperties `json:"window_properties,omitempty"`
	Nodes            []*Node           `json:"nodes,omitempty"`
	FloatingNodes    []*Node           `json:"floating_nodes,omitempty"`
}

// IsWindow reports whether the node is a leaf holding an application window.
func (n *Node) IsWindow() bool {
	if n == nil || len(n.Nodes) > 0 {
		return false
	}
	if n.Type != "con" && n.Type != "floating_con" {
		return false
	}
	return n.AppID != "" || n.WindowProperties != nil
}

// WindowLeaf couples a window node with the workspace and output it was
// found under during a tree walk.
type WindowLeaf struct {
	Node      *Node
	Workspace string
	Output    string
	Floating  bool
}

// Windows walks the tree and returns every application window leaf in
// traversal order.
func (n *Node) Windows() []WindowLeaf {
	var out []WindowLeaf
	n.walk("", "", false, &out)
	return out
}

func (n *Node) walk(workspace, output string, floating bool, out *[]WindowLeaf) {
	if n == nil {
		return
	}
	if n.Type == "output" {
		output = n.Name
	}
	if n.Type == "workspace" {
		workspace = n.Name
		if n.Output != "" {
			output = n.Output
		}
	}
	if n.IsWindow() {
		*out = append(*out, WindowLeaf{Node: n, Workspace: workspace, Output: output, Floating: floating})
		return
	}
	for _, child := range n.Nodes {
		child.walk(workspace, output, false, out)
	}
	for _, child := range n.FloatingNodes {
		child.walk(workspace, output, true, out)
	}
}

// Workspace is one entry of a GET_WORKSPACES reply.
type Workspace struct {
	Name    string `json:"name"`
	Output  string `json:"output"`
	Visible bool   `json:"visible"`
	Focused bool   `json:"focused"`
	Urgent  bool   `json:"urgent"`
}

// CommandResult is one entry of a RUN_COMMAND reply.
type CommandResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Event is one decoded frame from the subscription stream.
type Event struct {
	Type    EventType
	Payload json.RawMessage
}

// WindowEvent is the payload of EventWindow frames. Change is one of
// new, close, focus, title, mark, move, floating, fullscreen_mode.
type WindowEvent struct {
	Change    string `json:"change"`
	Container Node   `json:"container"`
}

// WorkspaceEvent is the payload of EventWorkspace frames.
type WorkspaceEvent struct {
	Change  string `json:"change"`
	Current *Node  `json:"current,omitempty"`
	Old     *Node  `json:"old,omitempty"`
}

// ShutdownEvent is the payload of EventShutdown frames. Change distinguishes
// a manager restart (reconnect silently) from a manager exit (propagate).
type ShutdownEvent struct {
	Change string `json:"change"`
}

const (
	ShutdownRestart = "restart"
	ShutdownExit    = "exit"
)

// TickEvent is the payload of EventTick frames. First marks the synthetic
// tick delivered on subscribe; Payload carries application-level signals.
type TickEvent struct {
	First   bool   `json:"first"`
	Payload string `json:"payload"`
}
