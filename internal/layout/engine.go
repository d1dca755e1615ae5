// Package layout captures and restores per-project window arrangements.
// Identity is environment-based: a placement names the app and the exact
// instance id the relaunched window must carry, never a window class.
package layout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"projd/internal/launch"
	"projd/internal/model"
	"projd/internal/procenv"
	"projd/internal/state"
	"projd/internal/wm"
)

// ErrNoScopedWindows means a capture found nothing to record for the project.
var ErrNoScopedWindows = errors.New("layout: no scoped windows for project")

// Commander is the manager command surface the engine needs.
type Commander interface {
	RunCommand(ctx context.Context, command string) error
	GetTree(ctx context.Context) (*wm.Node, error)
}

// Options tune the restore wait loop.
type Options struct {
	// WaitTimeout bounds how long one placement may take to appear after
	// its launch request. Default 5s.
	WaitTimeout time.Duration
	// PollInterval is the state-manager polling cadence. Default 100ms.
	PollInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 5 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 100 * time.Millisecond
	}
}

// Result summarizes a restore. Applied+Skipped equals the snapshot's
// placement count; Skipped>0 is partial success, not failure.
type Result struct {
	Applied     int      `json:"applied"`
	Skipped     int      `json:"skipped"`
	SkippedApps []string `json:"skipped_apps,omitempty"`
}

type Engine struct {
	state    *state.Manager
	cmd      Commander
	launcher launch.Launcher
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

func NewEngine(st *state.Manager, cmd Commander, launcher launch.Launcher, opts Options, logger *zap.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{
		state:    st,
		cmd:      cmd,
		launcher: launcher,
		opts:     opts,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetClock overrides the engine clock and sleeper. Tests only.
func (e *Engine) SetClock(now func() time.Time, sleep func(context.Context, time.Duration) error) {
	e.now = now
	e.sleep = sleep
}

// Capture records the current arrangement of the project's scoped windows.
// Geometry comes from a live tree query; hidden windows are captured at the
// workspace they were hidden from. At most one placement is focused.
func (e *Engine) Capture(ctx context.Context, projectName, layoutName string) (model.LayoutSnapshot, error) {
	records := e.state.WindowsByProject(projectName)
	if len(records) == 0 {
		return model.LayoutSnapshot{}, fmt.Errorf("%w: %s", ErrNoScopedWindows, projectName)
	}
	root, err := e.cmd.GetTree(ctx)
	if err != nil {
		return model.LayoutSnapshot{}, fmt.Errorf("capture: %w", err)
	}
	leaves := make(map[int64]wm.WindowLeaf, len(records))
	for _, leaf := range root.Windows() {
		leaves[leaf.Node.ID] = leaf
	}

	snapshot := model.LayoutSnapshot{
		ProjectName: projectName,
		LayoutName:  layoutName,
		CapturedAt:  e.now(),
	}
	focusedSeen := false
	for _, rec := range records {
		placement := model.WindowPlacement{
			AppName:            rec.AppName,
			ExpectedInstanceID: rec.InstanceID,
			Workspace:          rec.WorkspaceID,
			Floating:           rec.IsFloating,
		}
		if rec.Hidden && rec.HiddenFromWorkspace != "" {
			placement.Workspace = rec.HiddenFromWorkspace
		}
		if leaf, ok := leaves[rec.WindowID]; ok {
			placement.X = leaf.Node.Rect.X
			placement.Y = leaf.Node.Rect.Y
			placement.Width = leaf.Node.Rect.Width
			placement.Height = leaf.Node.Rect.Height
			if leaf.Node.Focused && !focusedSeen {
				placement.Focused = true
				focusedSeen = true
			}
		}
		snapshot.Placements = append(snapshot.Placements, placement)
	}
	return snapshot, nil
}

// Restore tears down the project's current scoped windows, then relaunches
// each placement and applies its recorded position. A placement whose window
// never appears within the wait budget is skipped with a warning; the rest
// of the snapshot still restores.
func (e *Engine) Restore(ctx context.Context, snapshot model.LayoutSnapshot) (Result, error) {
	// Kills are asynchronous: the doomed windows keep their state records,
	// and their instance ids, until the manager delivers close events. The
	// wait loop must not mistake one of them for a relaunch.
	doomed := make(map[int64]struct{})
	for _, rec := range e.state.WindowsByProject(snapshot.ProjectName) {
		doomed[rec.WindowID] = struct{}{}
		if err := e.cmd.RunCommand(ctx, fmt.Sprintf("[con_id=%d] kill", rec.WindowID)); err != nil {
			e.logger.Warn("kill before restore failed",
				zap.Int64("window_id", rec.WindowID), zap.Error(err))
		}
	}

	var result Result
	var focusWindowID int64
	for _, placement := range snapshot.Placements {
		windowID, err := e.restorePlacement(ctx, snapshot.ProjectName, placement, doomed)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			e.logger.Warn("placement skipped",
				zap.String("app", placement.AppName),
				zap.String("instance_id", placement.ExpectedInstanceID),
				zap.Error(err))
			result.Skipped++
			result.SkippedApps = append(result.SkippedApps, placement.AppName)
			continue
		}
		result.Applied++
		if placement.Focused {
			focusWindowID = windowID
		}
	}

	if focusWindowID != 0 {
		if err := e.cmd.RunCommand(ctx, fmt.Sprintf("[con_id=%d] focus", focusWindowID)); err != nil {
			e.logger.Warn("focus after restore failed",
				zap.Int64("window_id", focusWindowID), zap.Error(err))
		}
	}
	return result, nil
}

func (e *Engine) restorePlacement(ctx context.Context, projectName string, placement model.WindowPlacement, doomed map[int64]struct{}) (int64, error) {
	if _, err := procenv.ParseInstanceID(placement.ExpectedInstanceID); err != nil {
		return 0, fmt.Errorf("placement %s: %w", placement.AppName, err)
	}
	req := launch.Request{
		AppName:     placement.AppName,
		ProjectName: projectName,
		InstanceID:  placement.ExpectedInstanceID,
	}
	if err := e.launcher.Launch(ctx, req); err != nil {
		return 0, fmt.Errorf("launch %s: %w", placement.AppName, err)
	}
	rec, err := e.waitForWindow(ctx, placement.ExpectedInstanceID, doomed)
	if err != nil {
		return 0, err
	}
	if err := e.applyPlacement(ctx, rec.WindowID, placement); err != nil {
		return 0, err
	}
	return rec.WindowID, nil
}

func (e *Engine) waitForWindow(ctx context.Context, instanceID string, doomed map[int64]struct{}) (model.WindowRecord, error) {
	deadline := e.now().Add(e.opts.WaitTimeout)
	for {
		if rec, ok := e.state.GetWindowByInstanceID(instanceID); ok {
			if _, dying := doomed[rec.WindowID]; !dying {
				return rec, nil
			}
			// Still the record of a window killed above. Keep polling
			// until its close event lands and the relaunch takes over.
		}
		if !e.now().Before(deadline) {
			return model.WindowRecord{}, fmt.Errorf("window %s did not appear within %s", instanceID, e.opts.WaitTimeout)
		}
		if err := e.sleep(ctx, e.opts.PollInterval); err != nil {
			return model.WindowRecord{}, err
		}
	}
}

func (e *Engine) applyPlacement(ctx context.Context, windowID int64, placement model.WindowPlacement) error {
	if placement.Workspace != "" {
		cmd := fmt.Sprintf("[con_id=%d] move container to workspace %s",
			windowID, wm.Quote(placement.Workspace))
		if err := e.cmd.RunCommand(ctx, cmd); err != nil {
			return err
		}
	}
	if placement.Floating {
		if err := e.cmd.RunCommand(ctx, fmt.Sprintf("[con_id=%d] floating enable", windowID)); err != nil {
			return err
		}
		if placement.Width > 0 && placement.Height > 0 {
			cmd := fmt.Sprintf("[con_id=%d] resize set %d px %d px", windowID, placement.Width, placement.Height)
			if err := e.cmd.RunCommand(ctx, cmd); err != nil {
				return err
			}
		}
		cmd := fmt.Sprintf("[con_id=%d] move position %d px %d px", windowID, placement.X, placement.Y)
		if err := e.cmd.RunCommand(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}
