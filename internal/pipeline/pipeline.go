// Package pipeline consumes decoded manager events, classifies windows,
// mutates the state manager, and issues manager commands. A panic or error
// inside one handler is logged and recorded; the loop keeps running.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"projd/internal/classify"
	"projd/internal/journal"
	"projd/internal/model"
	"projd/internal/state"
	"projd/internal/wm"
)

// MarkPrefix tags scoped windows inside the manager so external tooling can
// identify them: proj:<project_name>.
const MarkPrefix = "proj:"

// TickTypeProjectSwitched is the tick payload type broadcast by the control
// server when the active project changes. Routing the switch through the
// manager's event bus keeps it ordered with window events.
const TickTypeProjectSwitched = "project-switched"

// TickSignal is the JSON payload carried by daemon-originated ticks.
type TickSignal struct {
	Type    string `json:"type"`
	Project string `json:"project"`
}

// Commander is the slice of the manager session the pipeline drives.
// *wm.Manager satisfies it through ManagerCommander; tests fake it.
type Commander interface {
	RunCommand(ctx context.Context, command string) error
	GetTree(ctx context.Context) (*wm.Node, error)
	GetWorkspaces(ctx context.Context) ([]wm.Workspace, error)
}

// ManagerCommander resolves the current command connection per call, so the
// pipeline survives reconnects without holding a stale client.
type ManagerCommander struct {
	Manager *wm.Manager
}

func (c ManagerCommander) RunCommand(ctx context.Context, command string) error {
	client := c.Manager.Client()
	if client == nil {
		return wm.ErrNoSocket
	}
	return client.RunCommand(ctx, command)
}

func (c ManagerCommander) GetTree(ctx context.Context) (*wm.Node, error) {
	client := c.Manager.Client()
	if client == nil {
		return nil, wm.ErrNoSocket
	}
	return client.GetTree(ctx)
}

func (c ManagerCommander) GetWorkspaces(ctx context.Context) ([]wm.Workspace, error) {
	client := c.Manager.Client()
	if client == nil {
		return nil, wm.ErrNoSocket
	}
	return client.GetWorkspaces(ctx)
}

type Pipeline struct {
	state      *state.Manager
	classifier *classify.Classifier
	cmd        Commander
	ring       *journal.Ring
	store      *journal.Store // nil disables the durable journal
	logger     *zap.Logger
	now        func() time.Time
}

func New(st *state.Manager, classifier *classify.Classifier, cmd Commander, ring *journal.Ring, store *journal.Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		state:      st,
		classifier: classifier,
		cmd:        cmd,
		ring:       ring,
		store:      store,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the pipeline clock. Tests only.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.now = now
}

// Run processes events strictly in arrival order until the channel closes or
// the context is canceled.
func (p *Pipeline) Run(ctx context.Context, events <-chan wm.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Handle(ctx, ev)
		}
	}
}

// Handle dispatches one event through the catch-and-log boundary and records
// it in the diagnostic ring and the durable journal.
func (p *Pipeline) Handle(ctx context.Context, ev wm.Event) {
	p.state.BumpEventsSeen()
	rec := model.EventRecord{
		EventID:    uuid.NewString(),
		EventType:  ev.Type.String(),
		Subtype:    eventSubtype(ev),
		Payload:    string(ev.Payload),
		ReceivedAt: p.now(),
		Status:     model.EventPending,
	}
	p.ring.Append(rec)
	if p.store != nil {
		if err := p.store.InsertEvent(ctx, rec); err != nil {
			p.logger.Warn("journal insert failed", zap.Error(err))
		}
	}

	err := p.dispatch(ctx, ev)
	status, errMsg := model.EventDone, ""
	if err != nil {
		status, errMsg = model.EventError, err.Error()
		p.state.BumpEventsErrored()
		p.logger.Error("event handler failed",
			zap.String("event_type", rec.EventType),
			zap.String("subtype", rec.Subtype),
			zap.Error(err))
	} else {
		p.state.BumpEventsHandled()
	}
	p.ring.SetStatus(rec.EventID, status, errMsg)
	if p.store != nil {
		if err := p.store.UpdateEventStatus(ctx, rec.EventID, status, errMsg); err != nil {
			p.logger.Warn("journal status update failed", zap.Error(err))
		}
	}
}

// dispatch routes by event type. The recover boundary converts handler
// panics into ordinary errors so the loop keeps running.
func (p *Pipeline) dispatch(ctx context.Context, ev wm.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	switch ev.Type {
	case wm.EventWindow:
		var payload wm.WindowEvent
		if uerr := json.Unmarshal(ev.Payload, &payload); uerr != nil {
			return fmt.Errorf("decode window event: %w", uerr)
		}
		return p.handleWindow(ctx, payload)
	case wm.EventWorkspace:
		var payload wm.WorkspaceEvent
		if uerr := json.Unmarshal(ev.Payload, &payload); uerr != nil {
			return fmt.Errorf("decode workspace event: %w", uerr)
		}
		return p.handleWorkspace(ctx, payload)
	case wm.EventTick:
		var payload wm.TickEvent
		if uerr := json.Unmarshal(ev.Payload, &payload); uerr != nil {
			return fmt.Errorf("decode tick event: %w", uerr)
		}
		return p.handleTick(ctx, payload)
	default:
		p.logger.Debug("ignoring event", zap.String("event_type", ev.Type.String()))
		return nil
	}
}

func eventSubtype(ev wm.Event) string {
	var probe struct {
		Change string `json:"change"`
	}
	if err := json.Unmarshal(ev.Payload, &probe); err != nil {
		return ""
	}
	return probe.Change
}

func (p *Pipeline) handleWindow(ctx context.Context, ev wm.WindowEvent) error {
	switch ev.Change {
	case "new":
		return p.handleWindowNew(ctx, ev.Container)
	case "close":
		if rec, ok := p.state.RemoveWindow(ev.Container.ID); ok {
			p.logger.Info("window closed",
				zap.Int64("window_id", rec.WindowID),
				zap.String("instance_id", rec.InstanceID))
		}
		return nil
	case "focus":
		now := p.now()
		_, err := p.state.UpdateWindow(ev.Container.ID, func(rec *model.WindowRecord) {
			rec.LastFocusedAt = now
		})
		if err == state.ErrWindowNotFound {
			// Focus for a window we never saw created: adopt it.
			return p.handleWindowNew(ctx, ev.Container)
		}
		return err
	case "title":
		_, err := p.state.UpdateWindow(ev.Container.ID, func(rec *model.WindowRecord) {
			rec.WindowTitle = ev.Container.Name
		})
		if err == state.ErrWindowNotFound {
			return nil
		}
		return err
	case "mark":
		return p.handleWindowMark(ev.Container)
	case "floating":
		_, err := p.state.UpdateWindow(ev.Container.ID, func(rec *model.WindowRecord) {
			rec.IsFloating = ev.Container.Type == "floating_con"
		})
		if err == state.ErrWindowNotFound {
			return nil
		}
		return err
	case "move":
		return p.refreshWindowPlacement(ctx, ev.Container.ID)
	default:
		return nil
	}
}

func (p *Pipeline) handleWindowNew(ctx context.Context, node wm.Node) error {
	rec := p.classifier.Classify(ctx, wm.WindowLeaf{Node: &node, Floating: node.Type == "floating_con"}, p.now())
	if err := p.state.AddWindow(rec); err != nil {
		switch err {
		case state.ErrDuplicateWindow:
			p.logger.Warn("duplicate window creation ignored", zap.Int64("window_id", rec.WindowID))
			return nil
		case state.ErrInstanceConflict:
			holder, _ := p.state.GetWindowByInstanceID(rec.InstanceID)
			p.logger.Error("instance id conflict: two windows claim one identity",
				zap.String("instance_id", rec.InstanceID),
				zap.Int64("holder_window_id", holder.WindowID),
				zap.Int64("claimant_window_id", rec.WindowID))
			return err
		default:
			return err
		}
	}
	p.logger.Info("window tracked",
		zap.Int64("window_id", rec.WindowID),
		zap.String("app", rec.AppName),
		zap.String("project", rec.ProjectName),
		zap.String("scope", string(rec.Scope)),
		zap.String("instance_id", rec.InstanceID))

	if rec.Scope == model.ScopeScoped && rec.ProjectName != "" {
		mark := MarkPrefix + rec.ProjectName
		if err := p.cmd.RunCommand(ctx, fmt.Sprintf("[con_id=%d] mark --add %s", rec.WindowID, mark)); err != nil {
			p.logger.Warn("mark command failed",
				zap.Int64("window_id", rec.WindowID), zap.Error(err))
		}
	}

	// A window born under a non-active project starts hidden.
	active := p.state.ActiveProject().ProjectName
	if !rec.Visible(active) {
		if err := p.hideWindow(ctx, rec); err != nil {
			p.logger.Warn("hide on create failed",
				zap.Int64("window_id", rec.WindowID), zap.Error(err))
		}
	}
	return nil
}

// handleWindowMark re-derives the project binding from the window's marks.
// Marks are an external override channel; the proj:<name> mark wins over the
// launch-time environment.
func (p *Pipeline) handleWindowMark(node wm.Node) error {
	project := ""
	for _, mark := range node.Marks {
		if len(mark) > len(MarkPrefix) && mark[:len(MarkPrefix)] == MarkPrefix {
			project = mark[len(MarkPrefix):]
			break
		}
	}
	_, err := p.state.UpdateWindow(node.ID, func(rec *model.WindowRecord) {
		if project != "" {
			rec.ProjectName = project
			rec.Scope = model.ScopeScoped
		} else if rec.InstanceID == "" {
			// Mark removed and no environment identity: back to global.
			rec.ProjectName = ""
			rec.Scope = model.ScopeGlobal
		}
	})
	if err == state.ErrWindowNotFound {
		return nil
	}
	return err
}

func (p *Pipeline) refreshWindowPlacement(ctx context.Context, windowID int64) error {
	root, err := p.cmd.GetTree(ctx)
	if err != nil {
		return fmt.Errorf("refresh placement: %w", err)
	}
	for _, leaf := range root.Windows() {
		if leaf.Node.ID != windowID {
			continue
		}
		_, err := p.state.UpdateWindow(windowID, func(rec *model.WindowRecord) {
			rec.WorkspaceID = leaf.Workspace
			rec.OutputName = leaf.Output
			rec.IsFloating = leaf.Floating
		})
		if err == state.ErrWindowNotFound {
			return nil
		}
		return err
	}
	return nil
}

// handleWorkspace refreshes the workspace mirror from a manager query
// instead of trusting the event payload; the manager always wins.
func (p *Pipeline) handleWorkspace(ctx context.Context, ev wm.WorkspaceEvent) error {
	if ev.Change == "empty" && ev.Current != nil {
		p.state.RemoveWorkspace(ev.Current.Name)
		return nil
	}
	return p.refreshWorkspaces(ctx)
}

func (p *Pipeline) refreshWorkspaces(ctx context.Context) error {
	workspaces, err := p.cmd.GetWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("query workspaces: %w", err)
	}
	now := p.now()
	for _, ws := range workspaces {
		p.state.UpsertWorkspace(model.WorkspaceRecord{
			Name:       ws.Name,
			OutputName: ws.Output,
			Visible:    ws.Visible,
			Focused:    ws.Focused,
			Urgent:     ws.Urgent,
			UpdatedAt:  now,
		})
	}
	return nil
}

func (p *Pipeline) handleTick(ctx context.Context, ev wm.TickEvent) error {
	if ev.First || ev.Payload == "" {
		return nil
	}
	var signal TickSignal
	if err := json.Unmarshal([]byte(ev.Payload), &signal); err != nil {
		// Foreign tick traffic on the shared bus; not ours.
		return nil
	}
	if signal.Type != TickTypeProjectSwitched {
		return nil
	}
	return p.ReconcileVisibility(ctx, signal.Project)
}

// ReconcileVisibility flips window visibility to match the active project:
// global windows always visible, scoped windows visible iff their project is
// active. Only windows whose visibility changes get commands.
func (p *Pipeline) ReconcileVisibility(ctx context.Context, activeProject string) error {
	var firstErr error
	for _, rec := range p.state.Windows() {
		want := rec.Visible(activeProject)
		have := !rec.Hidden
		if want == have {
			continue
		}
		var err error
		if want {
			err = p.showWindow(ctx, rec)
		} else {
			err = p.hideWindow(ctx, rec)
		}
		if err != nil {
			p.logger.Warn("visibility flip failed",
				zap.Int64("window_id", rec.WindowID),
				zap.Bool("show", want),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// hideWindow parks a window in the scratchpad, remembering where it came
// from so a later show restores placement.
func (p *Pipeline) hideWindow(ctx context.Context, rec model.WindowRecord) error {
	fromWorkspace := rec.WorkspaceID
	if err := p.cmd.RunCommand(ctx, fmt.Sprintf("[con_id=%d] move scratchpad", rec.WindowID)); err != nil {
		return err
	}
	_, err := p.state.UpdateWindow(rec.WindowID, func(r *model.WindowRecord) {
		r.Hidden = true
		r.HiddenFromWorkspace = fromWorkspace
	})
	if err == state.ErrWindowNotFound {
		return nil
	}
	return err
}

func (p *Pipeline) showWindow(ctx context.Context, rec model.WindowRecord) error {
	if err := p.cmd.RunCommand(ctx, fmt.Sprintf("[con_id=%d] scratchpad show", rec.WindowID)); err != nil {
		return err
	}
	if !rec.IsFloating {
		if err := p.cmd.RunCommand(ctx, fmt.Sprintf("[con_id=%d] floating disable", rec.WindowID)); err != nil {
			return err
		}
	}
	if rec.HiddenFromWorkspace != "" {
		cmd := fmt.Sprintf("[con_id=%d] move container to workspace %s",
			rec.WindowID, wm.Quote(rec.HiddenFromWorkspace))
		if err := p.cmd.RunCommand(ctx, cmd); err != nil {
			return err
		}
	}
	_, err := p.state.UpdateWindow(rec.WindowID, func(r *model.WindowRecord) {
		r.Hidden = false
		r.WorkspaceID = r.HiddenFromWorkspace
		r.HiddenFromWorkspace = ""
	})
	if err == state.ErrWindowNotFound {
		return nil
	}
	return err
}

// Rebuild replaces the state manager's window and workspace maps from a
// full manager snapshot. Registered as the connection manager's post-
// reconnect hook and run once at startup. Idempotent.
func (p *Pipeline) Rebuild(ctx context.Context) error {
	root, err := p.cmd.GetTree(ctx)
	if err != nil {
		return fmt.Errorf("query tree: %w", err)
	}
	workspaces, err := p.cmd.GetWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("query workspaces: %w", err)
	}

	now := p.now()
	leaves := root.Windows()
	records := make([]model.WindowRecord, 0, len(leaves))
	for _, leaf := range leaves {
		records = append(records, p.classifier.Classify(ctx, leaf, now))
	}
	wsRecords := make([]model.WorkspaceRecord, 0, len(workspaces))
	for _, ws := range workspaces {
		wsRecords = append(wsRecords, model.WorkspaceRecord{
			Name:       ws.Name,
			OutputName: ws.Output,
			Visible:    ws.Visible,
			Focused:    ws.Focused,
			Urgent:     ws.Urgent,
			UpdatedAt:  now,
		})
	}
	p.state.Rebuild(records, wsRecords)
	p.logger.Info("state rebuilt from manager snapshot",
		zap.Int("windows", len(records)),
		zap.Int("workspaces", len(wsRecords)))
	return nil
}
