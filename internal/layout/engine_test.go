package layout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"projd/internal/launch"
	"projd/internal/model"
	"projd/internal/state"
	"projd/internal/wm"
)

// fakeCommander records manager commands and serves a canned tree.
type fakeCommander struct {
	mu       sync.Mutex
	commands []string
	tree     *wm.Node
	treeErr  error
}

func (f *fakeCommander) RunCommand(_ context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeCommander) GetTree(context.Context) (*wm.Node, error) {
	if f.treeErr != nil {
		return nil, f.treeErr
	}
	return f.tree, nil
}

func (f *fakeCommander) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func newTestEngine(t *testing.T, st *state.Manager, cmd *fakeCommander, launcher launch.Launcher) *Engine {
	t.Helper()
	e := NewEngine(st, cmd, launcher, Options{
		WaitTimeout:  50 * time.Millisecond,
		PollInterval: time.Millisecond,
	}, zap.NewNop())
	return e
}

func addScoped(t *testing.T, st *state.Manager, id int64, instanceID, app, workspace string, floating bool) {
	t.Helper()
	err := st.AddWindow(model.WindowRecord{
		WindowID:    id,
		InstanceID:  instanceID,
		AppName:     app,
		ProjectName: "alpha",
		WorkspaceID: workspace,
		IsFloating:  floating,
		Scope:       model.ScopeScoped,
		Tracking:    model.TrackingTracked,
	})
	require.NoError(t, err)
}

func treeWithWindows(nodes ...*wm.Node) *wm.Node {
	return &wm.Node{
		ID: 1, Type: "root",
		Nodes: []*wm.Node{{
			ID: 2, Type: "output", Name: "DP-1",
			Nodes: []*wm.Node{{
				ID: 3, Type: "workspace", Name: "2",
				Nodes: nodes,
			}},
		}},
	}
}

func TestCaptureRecordsIdentityAndGeometry(t *testing.T) {
	st := state.NewManager()
	addScoped(t, st, 10, "editor-alpha-100-1700000000", "editor", "2", false)
	addScoped(t, st, 11, "term-alpha-101-1700000001", "term", "2", true)

	cmd := &fakeCommander{tree: treeWithWindows(
		&wm.Node{ID: 10, Type: "con", AppID: "editor", Focused: true,
			Rect: wm.Rect{X: 0, Y: 0, Width: 1280, Height: 720}},
		&wm.Node{ID: 11, Type: "con", AppID: "term",
			Rect: wm.Rect{X: 40, Y: 50, Width: 600, Height: 400}},
	)}
	e := newTestEngine(t, st, cmd, launch.Func(func(context.Context, launch.Request) error { return nil }))

	snap, err := e.Capture(context.Background(), "alpha", "coding")
	require.NoError(t, err)
	require.Len(t, snap.Placements, 2)

	editor := snap.Placements[0]
	assert.Equal(t, "editor", editor.AppName)
	assert.Equal(t, "editor-alpha-100-1700000000", editor.ExpectedInstanceID)
	assert.Equal(t, "2", editor.Workspace)
	assert.Equal(t, 1280, editor.Width)
	assert.True(t, editor.Focused)

	term := snap.Placements[1]
	assert.True(t, term.Floating)
	assert.False(t, term.Focused)
	assert.Equal(t, 600, term.Width)
}

func TestCaptureHiddenWindowUsesOriginWorkspace(t *testing.T) {
	st := state.NewManager()
	addScoped(t, st, 10, "editor-alpha-100-1700000000", "editor", "", false)
	_, err := st.UpdateWindow(10, func(r *model.WindowRecord) {
		r.Hidden = true
		r.HiddenFromWorkspace = "3"
	})
	require.NoError(t, err)

	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launch.Func(func(context.Context, launch.Request) error { return nil }))

	snap, err := e.Capture(context.Background(), "alpha", "coding")
	require.NoError(t, err)
	require.Len(t, snap.Placements, 1)
	assert.Equal(t, "3", snap.Placements[0].Workspace)
}

func TestCaptureNoScopedWindows(t *testing.T) {
	st := state.NewManager()
	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launch.Func(func(context.Context, launch.Request) error { return nil }))

	_, err := e.Capture(context.Background(), "alpha", "coding")
	assert.ErrorIs(t, err, ErrNoScopedWindows)
}

func TestRestoreLaunchesAndPlacesWindows(t *testing.T) {
	st := state.NewManager()
	// A stale window from the previous session gets torn down first.
	addScoped(t, st, 5, "old-alpha-99-1600000000", "old", "1", false)

	var launched []launch.Request
	launcher := launch.Func(func(_ context.Context, req launch.Request) error {
		launched = append(launched, req)
		// Simulate the event pipeline tracking the new window.
		windowID := int64(100 + len(launched))
		return st.AddWindow(model.WindowRecord{
			WindowID:    windowID,
			InstanceID:  req.InstanceID,
			AppName:     req.AppName,
			ProjectName: req.ProjectName,
			Scope:       model.ScopeScoped,
			Tracking:    model.TrackingTracked,
		})
	})
	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launcher)

	snap := model.LayoutSnapshot{
		ProjectName: "alpha",
		LayoutName:  "coding",
		Placements: []model.WindowPlacement{
			{AppName: "editor", ExpectedInstanceID: "editor-alpha-100-1700000000", Workspace: "2", Focused: true},
			{AppName: "term", ExpectedInstanceID: "term-alpha-101-1700000001", Workspace: "2",
				Floating: true, X: 40, Y: 50, Width: 600, Height: 400},
		},
	}
	result, err := e.Restore(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 0, result.Skipped)

	require.Len(t, launched, 2)
	assert.Equal(t, "editor-alpha-100-1700000000", launched[0].InstanceID)
	assert.Equal(t, "alpha", launched[0].ProjectName)

	commands := cmd.recorded()
	assert.Contains(t, commands, "[con_id=5] kill")
	assert.Contains(t, commands, `[con_id=101] move container to workspace "2"`)
	assert.Contains(t, commands, "[con_id=102] floating enable")
	assert.Contains(t, commands, "[con_id=102] resize set 600 px 400 px")
	assert.Contains(t, commands, "[con_id=102] move position 40 px 50 px")
	// Focus lands last, after every placement is applied.
	assert.Equal(t, "[con_id=101] focus", commands[len(commands)-1])
}

func TestRestoreOverOpenWindowsWaitsForRelaunch(t *testing.T) {
	st := state.NewManager()
	// The window being restored over is still open and holds the very
	// instance id the placement expects.
	addScoped(t, st, 10, "editor-alpha-100-1700000000", "editor", "2", false)

	launcher := launch.Func(func(_ context.Context, req launch.Request) error {
		// The kill lands: close event removes the old record, then the
		// relaunched window arrives under a fresh con_id.
		st.RemoveWindow(10)
		return st.AddWindow(model.WindowRecord{
			WindowID:    42,
			InstanceID:  req.InstanceID,
			AppName:     req.AppName,
			ProjectName: req.ProjectName,
			Scope:       model.ScopeScoped,
			Tracking:    model.TrackingTracked,
		})
	})
	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launcher)

	snap := model.LayoutSnapshot{
		ProjectName: "alpha",
		Placements: []model.WindowPlacement{
			{AppName: "editor", ExpectedInstanceID: "editor-alpha-100-1700000000", Workspace: "2"},
		},
	}
	result, err := e.Restore(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)

	commands := cmd.recorded()
	assert.Contains(t, commands, "[con_id=10] kill")
	assert.Contains(t, commands, `[con_id=42] move container to workspace "2"`)
	for _, c := range commands {
		assert.NotEqual(t, `[con_id=10] move container to workspace "2"`, c,
			"placement applied to the killed window")
	}
}

func TestRestoreOverOpenWindowsNeverMatchesDoomedWindow(t *testing.T) {
	st := state.NewManager()
	addScoped(t, st, 10, "editor-alpha-100-1700000000", "editor", "2", false)

	// Launch succeeds but the relaunched window never shows up; the stale
	// record of the killed window keeps the instance id the whole time.
	launcher := launch.Func(func(context.Context, launch.Request) error { return nil })
	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launcher)

	snap := model.LayoutSnapshot{
		ProjectName: "alpha",
		Placements: []model.WindowPlacement{
			{AppName: "editor", ExpectedInstanceID: "editor-alpha-100-1700000000", Workspace: "2"},
		},
	}
	result, err := e.Restore(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"editor"}, result.SkippedApps)
	assert.Equal(t, []string{"[con_id=10] kill"}, cmd.recorded())
}

func TestRestorePartialSuccess(t *testing.T) {
	st := state.NewManager()
	launcher := launch.Func(func(_ context.Context, req launch.Request) error {
		if req.AppName == "ghost" {
			// Launch succeeds but the window never shows up.
			return nil
		}
		return st.AddWindow(model.WindowRecord{
			WindowID:    200,
			InstanceID:  req.InstanceID,
			AppName:     req.AppName,
			ProjectName: req.ProjectName,
			Scope:       model.ScopeScoped,
			Tracking:    model.TrackingTracked,
		})
	})
	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launcher)

	snap := model.LayoutSnapshot{
		ProjectName: "alpha",
		LayoutName:  "coding",
		Placements: []model.WindowPlacement{
			{AppName: "ghost", ExpectedInstanceID: "ghost-alpha-1-1700000000", Workspace: "1"},
			{AppName: "editor", ExpectedInstanceID: "editor-alpha-2-1700000001", Workspace: "2"},
		},
	}
	result, err := e.Restore(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"ghost"}, result.SkippedApps)
}

func TestRestoreRejectsMalformedInstanceID(t *testing.T) {
	st := state.NewManager()
	launched := 0
	launcher := launch.Func(func(context.Context, launch.Request) error {
		launched++
		return nil
	})
	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launcher)

	snap := model.LayoutSnapshot{
		ProjectName: "alpha",
		Placements:  []model.WindowPlacement{{AppName: "editor", ExpectedInstanceID: "not an id"}},
	}
	result, err := e.Restore(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, launched, "launcher invoked for a corrupt placement")
}

func TestRestoreLaunchFailureSkips(t *testing.T) {
	st := state.NewManager()
	launcher := launch.Func(func(context.Context, launch.Request) error {
		return errors.New("launcher binary missing")
	})
	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launcher)

	snap := model.LayoutSnapshot{
		ProjectName: "alpha",
		Placements:  []model.WindowPlacement{{AppName: "editor", ExpectedInstanceID: "editor-alpha-2-1700000001"}},
	}
	result, err := e.Restore(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 1, result.Skipped)
}

func TestRestoreStopsOnCancel(t *testing.T) {
	st := state.NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	launcher := launch.Func(func(context.Context, launch.Request) error {
		cancel() // cancel mid-restore, while waiting for the window
		return nil
	})
	cmd := &fakeCommander{tree: treeWithWindows()}
	e := newTestEngine(t, st, cmd, launcher)

	snap := model.LayoutSnapshot{
		ProjectName: "alpha",
		Placements: []model.WindowPlacement{
			{AppName: "editor", ExpectedInstanceID: "editor-alpha-2-1700000001"},
			{AppName: "term", ExpectedInstanceID: "term-alpha-3-1700000002"},
		},
	}
	_, err := e.Restore(ctx, snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	// The second placement never launched.
	for _, c := range cmd.recorded() {
		assert.False(t, strings.Contains(c, "term"), "unexpected command %q", c)
	}
}
