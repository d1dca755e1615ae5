// Package api declares the control protocol's v1 wire types. The daemon and
// the CLI client share these so the contract lives in one place.
package api

import (
	"time"

	"projd/internal/model"
)

const SchemaVersion = "v1"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Error         APIError  `json:"error"`
}

type HealthResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	PID           int       `json:"pid"`
}

type RingStats struct {
	Length   int   `json:"length"`
	Capacity int   `json:"capacity"`
	Dropped  int64 `json:"dropped"`
}

type StatusResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Version       string    `json:"version"`
	// StreamID is minted once per daemon process; a change between two
	// status calls means the daemon restarted in between.
	StreamID         string         `json:"stream_id"`
	UptimeSeconds    int64          `json:"uptime_seconds"`
	ManagerConnected bool           `json:"manager_connected"`
	ActiveProject    string         `json:"active_project"`
	ActivatedAt      *time.Time     `json:"activated_at,omitempty"`
	WindowCount      int            `json:"window_count"`
	ScopedWindows    int            `json:"scoped_windows"`
	GlobalWindows    int            `json:"global_windows"`
	HiddenWindows    int            `json:"hidden_windows"`
	WorkspaceCount   int            `json:"workspace_count"`
	Counters         model.Counters `json:"counters"`
	EventRing        RingStats      `json:"event_ring"`
}

type ActiveProjectResponse struct {
	SchemaVersion string     `json:"schema_version"`
	GeneratedAt   time.Time  `json:"generated_at"`
	ProjectName   string     `json:"project_name"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
}

type SwitchProjectRequest struct {
	// ProjectName empty means switch to global mode.
	ProjectName string `json:"project_name"`
}

type SwitchProjectResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	ProjectName   string    `json:"project_name"`
	ActivatedAt   time.Time `json:"activated_at"`
	// Reconciled is false when the visibility pass could not reach the
	// manager; the switch itself still took effect.
	Reconciled bool `json:"reconciled"`
}

type ProjectResponse struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Directory   string    `json:"directory"`
	Icon        string    `json:"icon,omitempty"`
	SavedLayout string    `json:"saved_layout,omitempty"`
	Active      bool      `json:"active"`
	WindowCount int       `json:"window_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProjectsEnvelope struct {
	SchemaVersion string            `json:"schema_version"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Projects      []ProjectResponse `json:"projects"`
}

type CreateProjectRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Directory   string `json:"directory"`
	Icon        string `json:"icon,omitempty"`
}

type WindowResponse struct {
	WindowID      int64     `json:"window_id"`
	ProcessID     int64     `json:"process_id,omitempty"`
	AppName       string    `json:"app_name,omitempty"`
	ProjectName   string    `json:"project_name,omitempty"`
	Scope         string    `json:"scope"`
	Tracking      string    `json:"tracking"`
	InstanceID    string    `json:"instance_id,omitempty"`
	Workspace     string    `json:"workspace,omitempty"`
	Output        string    `json:"output,omitempty"`
	Title         string    `json:"title,omitempty"`
	Class         string    `json:"class,omitempty"`
	Floating      bool      `json:"floating"`
	Hidden        bool      `json:"hidden"`
	CreatedAt     time.Time `json:"created_at"`
	LastFocusedAt time.Time `json:"last_focused_at,omitempty"`
}

type WindowsEnvelope struct {
	SchemaVersion string           `json:"schema_version"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Windows       []WindowResponse `json:"windows"`
}

type EventResponse struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Subtype      string    `json:"subtype,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

type EventsEnvelope struct {
	SchemaVersion string          `json:"schema_version"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Events        []EventResponse `json:"events"`
	Dropped       int64           `json:"dropped"`
}

type ReloadResponse struct {
	SchemaVersion  string    `json:"schema_version"`
	GeneratedAt    time.Time `json:"generated_at"`
	ProjectsLoaded int       `json:"projects_loaded"`
	// ActiveCleared reports that the active project vanished from disk and
	// the daemon fell back to global mode.
	ActiveCleared bool `json:"active_cleared"`
}

type LayoutSaveRequest struct {
	ProjectName string `json:"project_name"`
	LayoutName  string `json:"layout_name,omitempty"`
}

type LayoutSaveResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	ProjectName   string    `json:"project_name"`
	LayoutName    string    `json:"layout_name"`
	Placements    int       `json:"placements"`
	CapturedAt    time.Time `json:"captured_at"`
}

type LayoutRestoreRequest struct {
	ProjectName string `json:"project_name"`
	// LayoutName empty falls back to the project's saved_layout.
	LayoutName string `json:"layout_name,omitempty"`
}

type LayoutRestoreResponse struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	ProjectName   string    `json:"project_name"`
	LayoutName    string    `json:"layout_name"`
	Applied       int       `json:"applied"`
	Skipped       int       `json:"skipped"`
	SkippedApps   []string  `json:"skipped_apps,omitempty"`
}
