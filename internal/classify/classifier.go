// Package classify turns raw manager nodes into window records. Identity
// comes from the launch-time environment contract; window class survives
// only as a display hint for windows launched outside the registered path.
package classify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"projd/internal/model"
	"projd/internal/procenv"
	"projd/internal/wm"
)

type Classifier struct {
	reader *procenv.Reader
	logger *zap.Logger
}

func New(reader *procenv.Reader, logger *zap.Logger) *Classifier {
	return &Classifier{reader: reader, logger: logger}
}

// Classify builds a WindowRecord for one window leaf. It never fails: a
// window whose process cannot be inspected is tracked as global scope with
// whatever display fields the node carries.
func (c *Classifier) Classify(ctx context.Context, leaf wm.WindowLeaf, now time.Time) model.WindowRecord {
	node := leaf.Node
	rec := model.WindowRecord{
		WindowID:      node.ID,
		WindowTitle:   node.Name,
		WorkspaceID:   leaf.Workspace,
		OutputName:    leaf.Output,
		IsFloating:    leaf.Floating,
		Scope:         model.ScopeGlobal,
		Tracking:      model.TrackingTracked,
		CreatedAt:     now,
		LastFocusedAt: now,
	}
	if props := node.WindowProperties; props != nil {
		rec.WindowClass = props.Class
		rec.WindowInstance = props.Instance
		if props.Title != "" {
			rec.WindowTitle = props.Title
		}
	}
	if node.AppID != "" {
		rec.WindowClass = node.AppID
	}

	pid, ok := c.reader.ResolvePID(ctx, node.ID, node.PID)
	if !ok {
		c.logger.Debug("window pid unresolved, tracking as global",
			zap.Int64("window_id", node.ID))
		return rec
	}
	rec.ProcessID = pid

	snap, ok := c.reader.Snapshot(pid)
	if !ok {
		// Launched outside the registered launch path. The class hint is
		// all we have; scope stays global.
		return rec
	}
	rec.InstanceID = snap.InstanceID
	rec.AppName = snap.AppName
	rec.ProjectName = snap.ProjectName
	rec.Scope = snap.Scope
	if snap.Scope != model.ScopeScoped {
		rec.ProjectName = ""
	}
	return rec
}
