// Package state is the authoritative in-memory model of windows,
// workspaces, and the active project. Every mutation serializes through one
// mutex; no caller can observe a half-updated record.
package state

import (
	"errors"
	"sort"
	"sync"
	"time"

	"projd/internal/model"
)

var (
	ErrWindowNotFound  = errors.New("window not found")
	ErrDuplicateWindow = errors.New("window already tracked")
	// ErrInstanceConflict means two live windows claimed the same instance
	// id. Impossible by construction; logged loudly and rejected rather
	// than silently reconciled.
	ErrInstanceConflict = errors.New("instance id already claimed by another window")
)

type Manager struct {
	mu         sync.Mutex
	windows    map[int64]model.WindowRecord
	byInstance map[string]int64
	workspaces map[string]model.WorkspaceRecord
	active     model.ActiveProject
	counters   model.Counters
}

func NewManager() *Manager {
	return &Manager{
		windows:    make(map[int64]model.WindowRecord),
		byInstance: make(map[string]int64),
		workspaces: make(map[string]model.WorkspaceRecord),
	}
}

// AddWindow tracks a new window. Rejects duplicates of a live window id and
// instance-id claims already held by a different window.
func (m *Manager) AddWindow(rec model.WindowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.windows[rec.WindowID]; ok {
		return ErrDuplicateWindow
	}
	if rec.InstanceID != "" {
		if holder, ok := m.byInstance[rec.InstanceID]; ok && holder != rec.WindowID {
			return ErrInstanceConflict
		}
	}
	m.windows[rec.WindowID] = rec
	if rec.InstanceID != "" {
		m.byInstance[rec.InstanceID] = rec.WindowID
	}
	m.counters.WindowsCreated++
	return nil
}

// RemoveWindow drops a window record. The record is never reused.
func (m *Manager) RemoveWindow(windowID int64) (model.WindowRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[windowID]
	if !ok {
		return model.WindowRecord{}, false
	}
	delete(m.windows, windowID)
	if rec.InstanceID != "" && m.byInstance[rec.InstanceID] == windowID {
		delete(m.byInstance, rec.InstanceID)
	}
	m.counters.WindowsClosed++
	rec.Tracking = model.TrackingClosed
	return rec, true
}

// UpdateWindow applies a partial mutation under the lock and returns the
// resulting record.
func (m *Manager) UpdateWindow(windowID int64, mutate func(*model.WindowRecord)) (model.WindowRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[windowID]
	if !ok {
		return model.WindowRecord{}, ErrWindowNotFound
	}
	oldInstance := rec.InstanceID
	mutate(&rec)
	rec.WindowID = windowID
	if rec.InstanceID != oldInstance {
		if rec.InstanceID != "" {
			if holder, ok := m.byInstance[rec.InstanceID]; ok && holder != windowID {
				return model.WindowRecord{}, ErrInstanceConflict
			}
			m.byInstance[rec.InstanceID] = windowID
		}
		if oldInstance != "" && m.byInstance[oldInstance] == windowID {
			delete(m.byInstance, oldInstance)
		}
	}
	m.windows[windowID] = rec
	return rec, nil
}

func (m *Manager) GetWindow(windowID int64) (model.WindowRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.windows[windowID]
	return rec, ok
}

func (m *Manager) GetWindowByInstanceID(instanceID string) (model.WindowRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	windowID, ok := m.byInstance[instanceID]
	if !ok {
		return model.WindowRecord{}, false
	}
	rec, ok := m.windows[windowID]
	return rec, ok
}

// Windows returns every tracked window sorted by window id.
func (m *Manager) Windows() []model.WindowRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.WindowRecord, 0, len(m.windows))
	for _, rec := range m.windows {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowID < out[j].WindowID })
	return out
}

// WindowsByProject returns tracked windows scoped to the named project.
func (m *Manager) WindowsByProject(projectName string) []model.WindowRecord {
	all := m.Windows()
	out := all[:0:0]
	for _, rec := range all {
		if rec.ProjectName == projectName && rec.Scope == model.ScopeScoped {
			out = append(out, rec)
		}
	}
	return out
}

// SetActiveProject mutates the singleton pointer. Empty name means global
// mode. Returns the new value.
func (m *Manager) SetActiveProject(projectName string, at time.Time) model.ActiveProject {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = model.ActiveProject{ProjectName: projectName, ActivatedAt: at}
	return m.active
}

func (m *Manager) ActiveProject() model.ActiveProject {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// UpsertWorkspace merges one workspace record; the manager's view wins.
func (m *Manager) UpsertWorkspace(ws model.WorkspaceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws.WindowIDs == nil {
		if prev, ok := m.workspaces[ws.Name]; ok {
			ws.WindowIDs = prev.WindowIDs
		} else {
			ws.WindowIDs = make(map[int64]struct{})
		}
	}
	m.workspaces[ws.Name] = ws
}

func (m *Manager) RemoveWorkspace(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workspaces, name)
}

func (m *Manager) Workspaces() []model.WorkspaceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.WorkspaceRecord, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Rebuild replaces the window and workspace maps atomically from a freshly
// classified manager snapshot. Idempotent: records surviving a rebuild keep
// their original creation and focus timestamps and hide bookkeeping, so two
// consecutive rebuilds over the same tree produce identical maps.
func (m *Manager) Rebuild(windows []model.WindowRecord, workspaces []model.WorkspaceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nextWindows := make(map[int64]model.WindowRecord, len(windows))
	nextByInstance := make(map[string]int64, len(windows))
	for _, rec := range windows {
		if prev, ok := m.windows[rec.WindowID]; ok && prev.InstanceID == rec.InstanceID {
			rec.CreatedAt = prev.CreatedAt
			rec.LastFocusedAt = prev.LastFocusedAt
			rec.Hidden = prev.Hidden
			rec.HiddenFromWorkspace = prev.HiddenFromWorkspace
		}
		nextWindows[rec.WindowID] = rec
		if rec.InstanceID != "" {
			nextByInstance[rec.InstanceID] = rec.WindowID
		}
	}

	nextWorkspaces := make(map[string]model.WorkspaceRecord, len(workspaces))
	for _, ws := range workspaces {
		if ws.WindowIDs == nil {
			ws.WindowIDs = make(map[int64]struct{})
		}
		nextWorkspaces[ws.Name] = ws
	}
	for id, rec := range nextWindows {
		if ws, ok := nextWorkspaces[rec.WorkspaceID]; ok {
			ws.WindowIDs[id] = struct{}{}
			nextWorkspaces[rec.WorkspaceID] = ws
		}
	}

	m.windows = nextWindows
	m.byInstance = nextByInstance
	m.workspaces = nextWorkspaces
	m.counters.Rebuilds++
}

// Counter bumps. Window create/close counters move inside Add/Remove.

func (m *Manager) BumpEventsSeen() {
	m.mu.Lock()
	m.counters.EventsSeen++
	m.mu.Unlock()
}

func (m *Manager) BumpEventsHandled() {
	m.mu.Lock()
	m.counters.EventsHandled++
	m.mu.Unlock()
}

func (m *Manager) BumpEventsErrored() {
	m.mu.Lock()
	m.counters.EventsErrored++
	m.mu.Unlock()
}

func (m *Manager) BumpReconnects() {
	m.mu.Lock()
	m.counters.Reconnects++
	m.mu.Unlock()
}

func (m *Manager) Counters() model.Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}
