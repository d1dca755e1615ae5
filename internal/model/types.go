package model

import "time"

// Scope says whether a window is tied to one project or always visible.
type Scope string

const (
	ScopeScoped Scope = "scoped"
	ScopeGlobal Scope = "global"
)

// TrackingState is the per-window lifecycle state. Closed is terminal.
type TrackingState string

const (
	TrackingUnclassified TrackingState = "unclassified"
	TrackingTracked      TrackingState = "tracked"
	TrackingClosed       TrackingState = "closed"
)

// WindowRecord is the daemon's view of one live window. InstanceID is unique
// for the lifetime of the daemon process; a closed window's record is removed
// and never reused.
type WindowRecord struct {
	WindowID       int64
	ProcessID      int64
	WindowClass    string
	WindowInstance string
	WindowTitle    string
	InstanceID     string
	AppName        string
	ProjectName    string
	WorkspaceID    string
	OutputName     string
	IsFloating     bool
	Scope          Scope
	Tracking       TrackingState
	Hidden         bool
	// HiddenFromWorkspace remembers where the window lived before it was
	// moved to the scratchpad, so a later show restores placement.
	HiddenFromWorkspace string
	CreatedAt           time.Time
	LastFocusedAt       time.Time
}

// Visible reports whether the window should be visible under the given
// active project. Global windows are always visible; scoped windows only
// when their project is the active one.
func (w WindowRecord) Visible(activeProject string) bool {
	if w.Scope == ScopeGlobal || w.ProjectName == "" {
		return true
	}
	return w.ProjectName == activeProject
}

// WorkspaceRecord mirrors one manager workspace. Rebuilt opportunistically
// from manager queries; the manager wins on conflict.
type WorkspaceRecord struct {
	Name       string
	OutputName string
	Visible    bool
	Focused    bool
	Urgent     bool
	WindowIDs  map[int64]struct{}
	UpdatedAt  time.Time
}

// ProjectConfig is a named work context. Managed exclusively through the
// control server and persisted as one JSON document per project.
type ProjectConfig struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Directory   string    `json:"directory"`
	Icon        string    `json:"icon,omitempty"`
	SavedLayout string    `json:"saved_layout,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActiveProject is the singleton active-project pointer. An empty
// ProjectName means global mode.
type ActiveProject struct {
	ProjectName string    `json:"project_name"`
	ActivatedAt time.Time `json:"activated_at"`
}

// EnvironmentSnapshot is the launch-time contract resolved from a window's
// owning process environment. Re-derived on demand; cached on the record at
// window creation.
type EnvironmentSnapshot struct {
	InstanceID  string
	AppName     string
	ProjectName string
	ProjectDir  string
	Scope       Scope
	Active      bool
	LaunchTime  time.Time
	LauncherPID int64
}

// WindowPlacement is one entry of a captured layout: identity plus geometry.
type WindowPlacement struct {
	AppName            string `json:"app_name"`
	ExpectedInstanceID string `json:"expected_instance_id"`
	Workspace          string `json:"workspace"`
	X                  int    `json:"x"`
	Y                  int    `json:"y"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	Floating           bool   `json:"floating"`
	Focused            bool   `json:"focused"`
}

// LayoutSnapshot is a captured, ordered set of placements for one project.
// At most one placement carries Focused=true.
type LayoutSnapshot struct {
	ProjectName string            `json:"project_name"`
	LayoutName  string            `json:"layout_name"`
	Placements  []WindowPlacement `json:"placements"`
	CapturedAt  time.Time         `json:"captured_at"`
}

// EventStatus tracks a diagnostic entry through handling.
type EventStatus string

const (
	EventPending EventStatus = "pending"
	EventDone    EventStatus = "done"
	EventError   EventStatus = "error"
)

// EventRecord is one bounded-ring diagnostic entry.
type EventRecord struct {
	EventID      string
	EventType    string
	Subtype      string
	Payload      string
	ReceivedAt   time.Time
	Status       EventStatus
	ErrorMessage string
}

// Counters are monotonically increasing daemon statistics exposed by
// get_status.
type Counters struct {
	EventsSeen     int64 `json:"events_seen"`
	EventsHandled  int64 `json:"events_handled"`
	EventsErrored  int64 `json:"events_errored"`
	WindowsCreated int64 `json:"windows_created"`
	WindowsClosed  int64 `json:"windows_closed"`
	Reconnects     int64 `json:"reconnects"`
	Rebuilds       int64 `json:"rebuilds"`
}

// Error codes defined by the control protocol contract.
const (
	ErrCodeInvalid            = "E_REQUEST_INVALID"
	ErrCodeInvalidEncoding    = "E_REQUEST_INVALID_ENCODING"
	ErrCodeProjectNotFound    = "E_PROJECT_NOT_FOUND"
	ErrCodeWindowNotFound     = "E_WINDOW_NOT_FOUND"
	ErrCodeLayoutNotFound     = "E_LAYOUT_NOT_FOUND"
	ErrCodeValidation         = "E_VALIDATION"
	ErrCodeOperationFailed    = "E_OPERATION_FAILED"
	ErrCodeManagerUnreachable = "E_MANAGER_UNREACHABLE"
	ErrCodeDaemonUnavailable  = "E_DAEMON_UNAVAILABLE"
)
