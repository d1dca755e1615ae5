package procenv

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"projd/internal/model"
)

// Environment contract keys injected by the launcher at spawn time.
const (
	EnvInstanceID  = "APP_INSTANCE_ID"
	EnvAppName     = "APP_NAME"
	EnvProjectName = "PROJECT_NAME"
	EnvProjectDir  = "PROJECT_DIR"
	EnvScope       = "SCOPE"
	EnvActive      = "ACTIVE"
	EnvLaunchTime  = "LAUNCH_TIME"
	EnvLauncherPID = "LAUNCHER_PID"
)

// ancestryDepth bounds the parent walk used when the directly reported pid
// is a wrapper that did not inherit the contract.
const ancestryDepth = 5

// Reader resolves a window's owning process to its environment contract.
// Every method degrades instead of failing: a process we cannot inspect is
// treated as launched outside the registered launch path.
type Reader struct {
	logger *zap.Logger
	// pidLookup is the external fallback used when the manager node carries
	// no pid. Overridable in tests.
	pidLookup func(ctx context.Context, windowID int64) (int64, bool)
	// environ is overridable in tests; defaults to gopsutil.
	environ func(pid int64) ([]string, error)
	parent  func(pid int64) (int64, error)
}

func NewReader(logger *zap.Logger) *Reader {
	r := &Reader{logger: logger}
	r.pidLookup = r.externalPIDLookup
	r.environ = gopsutilEnviron
	r.parent = gopsutilParent
	return r
}

// Lookups lets callers replace process-table access with fakes.
type Lookups struct {
	PIDLookup func(ctx context.Context, windowID int64) (int64, bool)
	Environ   func(pid int64) ([]string, error)
	Parent    func(pid int64) (int64, error)
}

func NewReaderWithLookups(logger *zap.Logger, lk Lookups) *Reader {
	r := NewReader(logger)
	if lk.PIDLookup != nil {
		r.pidLookup = lk.PIDLookup
	}
	if lk.Environ != nil {
		r.environ = lk.Environ
	}
	if lk.Parent != nil {
		r.parent = lk.Parent
	}
	return r
}

func gopsutilEnviron(pid int64) ([]string, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	return proc.Environ()
}

func gopsutilParent(pid int64) (int64, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	ppid, err := proc.Ppid()
	if err != nil {
		return 0, err
	}
	return int64(ppid), nil
}

// ResolvePID finds the OS pid owning a window. The node pid from the event
// stream wins; otherwise an external utility is consulted. This call may
// block on a subprocess and must never be made while holding state locks.
func (r *Reader) ResolvePID(ctx context.Context, windowID, nodePID int64) (int64, bool) {
	if nodePID > 0 {
		return nodePID, true
	}
	return r.pidLookup(ctx, windowID)
}

func (r *Reader) externalPIDLookup(ctx context.Context, windowID int64) (int64, bool) {
	out, err := exec.CommandContext(ctx, "xdotool", "getwindowpid", strconv.FormatInt(windowID, 10)).Output()
	if err != nil {
		r.logger.Debug("external pid lookup failed",
			zap.Int64("window_id", windowID), zap.Error(err))
		return 0, false
	}
	pid, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// ReadEnvironment returns the process environment as a map. Permission
// failures and vanished processes yield an empty map, never an error.
func (r *Reader) ReadEnvironment(pid int64) map[string]string {
	if pid <= 0 {
		return map[string]string{}
	}
	raw, err := r.environ(pid)
	if err != nil {
		r.logger.Debug("environment read failed", zap.Int64("pid", pid), zap.Error(err))
		return map[string]string{}
	}
	env := make(map[string]string, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// Snapshot resolves the environment contract for a pid, walking up the
// process ancestry when the immediate process lacks the contract. The second
// return is false when no contract was found anywhere; the caller treats the
// window as global scope.
func (r *Reader) Snapshot(pid int64) (model.EnvironmentSnapshot, bool) {
	current := pid
	for depth := 0; depth <= ancestryDepth && current > 1; depth++ {
		env := r.ReadEnvironment(current)
		if snap, ok := snapshotFromEnv(env); ok {
			return snap, true
		}
		next, err := r.parent(current)
		if err != nil || next <= 1 || next == current {
			break
		}
		current = next
	}
	return model.EnvironmentSnapshot{Scope: model.ScopeGlobal}, false
}

func snapshotFromEnv(env map[string]string) (model.EnvironmentSnapshot, bool) {
	instanceID := strings.TrimSpace(env[EnvInstanceID])
	if instanceID == "" {
		return model.EnvironmentSnapshot{}, false
	}
	snap := model.EnvironmentSnapshot{
		InstanceID:  instanceID,
		AppName:     strings.TrimSpace(env[EnvAppName]),
		ProjectName: strings.TrimSpace(env[EnvProjectName]),
		ProjectDir:  strings.TrimSpace(env[EnvProjectDir]),
		Active:      strings.EqualFold(strings.TrimSpace(env[EnvActive]), "true"),
	}
	switch strings.TrimSpace(env[EnvScope]) {
	case string(model.ScopeScoped):
		snap.Scope = model.ScopeScoped
	case string(model.ScopeGlobal):
		snap.Scope = model.ScopeGlobal
	default:
		// Scope key absent or mangled: derive from the project binding.
		if snap.ProjectName != "" {
			snap.Scope = model.ScopeScoped
		} else {
			snap.Scope = model.ScopeGlobal
		}
	}
	if raw := strings.TrimSpace(env[EnvLaunchTime]); raw != "" {
		if sec, err := strconv.ParseInt(raw, 10, 64); err == nil && sec > 0 {
			snap.LaunchTime = time.Unix(sec, 0).UTC()
		}
	}
	if raw := strings.TrimSpace(env[EnvLauncherPID]); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			snap.LauncherPID = v
		}
	}
	return snap, true
}
