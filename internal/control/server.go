// Package control serves the daemon's v1 HTTP API over a private unix
// socket. Mutating operations funnel through one switch mutex so the
// active-project pointer stays single-writer.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"projd/internal/api"
	"projd/internal/journal"
	"projd/internal/layout"
	"projd/internal/model"
	"projd/internal/state"
	"projd/internal/store"
)

// DefaultLayoutName is used when a save request does not name the layout.
const DefaultLayoutName = "default"

// Deps are the collaborators the server drives. Announce propagates an
// active-project change to the manager side (tick broadcast with a direct
// reconcile fallback); ManagerConnected feeds get_status.
type Deps struct {
	State            *state.Manager
	Files            *store.Files
	Ring             *journal.Ring
	Layout           *layout.Engine
	Announce         func(ctx context.Context, projectName string) error
	ManagerConnected func() bool
	Version          string
	Logger           *zap.Logger
}

type Server struct {
	socketPath string
	deps       Deps
	httpSrv    *http.Server
	listener   net.Listener
	lockFile   *os.File
	startedAt  time.Time
	streamID   string

	mu          sync.Mutex
	switchMu    sync.Mutex
	shutdown    sync.Once
	shutdownErr error
}

func NewServer(socketPath string, deps Deps) *Server {
	mux := http.NewServeMux()
	s := &Server{
		socketPath: socketPath,
		deps:       deps,
		startedAt:  time.Now().UTC(),
		streamID:   uuid.NewString(),
		httpSrv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	mux.HandleFunc("/v1/health", s.healthHandler)
	mux.HandleFunc("/v1/status", s.statusHandler)
	mux.HandleFunc("/v1/project", s.activeProjectHandler)
	mux.HandleFunc("/v1/project/switch", s.switchHandler)
	mux.HandleFunc("/v1/projects", s.projectsHandler)
	mux.HandleFunc("/v1/projects/", s.projectByNameHandler)
	mux.HandleFunc("/v1/windows", s.windowsHandler)
	mux.HandleFunc("/v1/events", s.eventsHandler)
	mux.HandleFunc("/v1/config/reload", s.reloadHandler)
	mux.HandleFunc("/v1/layouts/save", s.layoutSaveHandler)
	mux.HandleFunc("/v1/layouts/restore", s.layoutRestoreHandler)
	return s
}

// Handler exposes the route table for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.socketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not unix socket: %s", s.socketPath)
		}
		if err := os.Remove(s.socketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close() //nolint:errcheck
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.deps.Logger.Info("control server listening", zap.String("socket", s.socketPath))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutdownErr
}

func (s *Server) acquireLock() error {
	lockPath := s.socketPath + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("another daemon holds %s: %w", lockPath, err)
	}
	s.lockFile = f
	return nil
}

func (s *Server) releaseLock() error {
	if s.lockFile == nil {
		return nil
	}
	f := s.lockFile
	s.lockFile = nil
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return f.Close()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Status:        "ok",
		Version:       s.deps.Version,
		PID:           os.Getpid(),
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	active := s.deps.State.ActiveProject()
	windows := s.deps.State.Windows()
	scoped, global, hidden := 0, 0, 0
	for _, rec := range windows {
		if rec.Scope == model.ScopeScoped {
			scoped++
		} else {
			global++
		}
		if rec.Hidden {
			hidden++
		}
	}
	resp := api.StatusResponse{
		SchemaVersion:    api.SchemaVersion,
		GeneratedAt:      time.Now().UTC(),
		Version:          s.deps.Version,
		StreamID:         s.streamID,
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		ManagerConnected: s.deps.ManagerConnected(),
		ActiveProject:    active.ProjectName,
		WindowCount:      len(windows),
		ScopedWindows:    scoped,
		GlobalWindows:    global,
		HiddenWindows:    hidden,
		WorkspaceCount:   len(s.deps.State.Workspaces()),
		Counters:         s.deps.State.Counters(),
		EventRing: api.RingStats{
			Length:   s.deps.Ring.Len(),
			Capacity: s.deps.Ring.Capacity(),
			Dropped:  s.deps.Ring.Dropped(),
		},
	}
	if !active.ActivatedAt.IsZero() {
		at := active.ActivatedAt
		resp.ActivatedAt = &at
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) activeProjectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	active := s.deps.State.ActiveProject()
	resp := api.ActiveProjectResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		ProjectName:   active.ProjectName,
	}
	if !active.ActivatedAt.IsZero() {
		at := active.ActivatedAt
		resp.ActivatedAt = &at
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) switchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.SwitchProjectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ProjectName != "" && !s.deps.Files.ProjectExists(req.ProjectName) {
		s.writeError(w, http.StatusNotFound, model.ErrCodeProjectNotFound,
			fmt.Sprintf("project %q is not defined", req.ProjectName))
		return
	}
	active, reconciled, err := s.switchTo(r.Context(), req.ProjectName)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.SwitchProjectResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		ProjectName:   active.ProjectName,
		ActivatedAt:   active.ActivatedAt,
		Reconciled:    reconciled,
	})
}

// switchTo persists the new pointer before exposing it, so a crash between
// the two steps resurfaces the old project on restart rather than an
// unpersisted one.
func (s *Server) switchTo(ctx context.Context, projectName string) (model.ActiveProject, bool, error) {
	s.switchMu.Lock()
	defer s.switchMu.Unlock()
	candidate := model.ActiveProject{ProjectName: projectName, ActivatedAt: time.Now().UTC()}
	if err := s.deps.Files.SaveActiveProject(candidate); err != nil {
		return model.ActiveProject{}, false, fmt.Errorf("persist active project: %w", err)
	}
	active := s.deps.State.SetActiveProject(candidate.ProjectName, candidate.ActivatedAt)
	reconciled := true
	if err := s.deps.Announce(ctx, projectName); err != nil {
		reconciled = false
		s.deps.Logger.Warn("visibility reconcile after switch failed",
			zap.String("project", projectName), zap.Error(err))
	}
	return active, reconciled, nil
}

func (s *Server) projectsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listProjects(w)
	case http.MethodPost:
		s.createProject(w, r)
	default:
		s.methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) listProjects(w http.ResponseWriter) {
	projects, err := s.deps.Files.ListProjects()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
		return
	}
	active := s.deps.State.ActiveProject().ProjectName
	resp := api.ProjectsEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Projects:      make([]api.ProjectResponse, 0, len(projects)),
	}
	for _, p := range projects {
		resp.Projects = append(resp.Projects, s.projectResponse(p, active))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) projectResponse(p model.ProjectConfig, active string) api.ProjectResponse {
	return api.ProjectResponse{
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Directory:   p.Directory,
		Icon:        p.Icon,
		SavedLayout: p.SavedLayout,
		Active:      p.Name == active,
		WindowCount: len(s.deps.State.WindowsByProject(p.Name)),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req api.CreateProjectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" || req.Directory == "" {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeInvalid, "name and directory are required")
		return
	}
	if s.deps.Files.ProjectExists(req.Name) {
		s.writeError(w, http.StatusConflict, model.ErrCodeValidation,
			fmt.Sprintf("project %q already exists", req.Name))
		return
	}
	now := time.Now().UTC()
	project := model.ProjectConfig{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Directory:   req.Directory,
		Icon:        req.Icon,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if project.DisplayName == "" {
		project.DisplayName = project.Name
	}
	if err := s.deps.Files.SaveProject(project); err != nil {
		switch {
		case errors.Is(err, store.ErrNameInvalid), errors.Is(err, store.ErrDirectoryMissing):
			s.writeError(w, http.StatusBadRequest, model.ErrCodeValidation, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, s.projectResponse(project, s.deps.State.ActiveProject().ProjectName))
}

func (s *Server) projectByNameHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/projects/")
	if rest == "" || strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, model.ErrCodeInvalid, "project route not found")
		return
	}
	name, err := url.PathUnescape(rest)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeInvalidEncoding, "invalid project name encoding")
		return
	}
	switch r.Method {
	case http.MethodGet:
		project, err := s.deps.Files.LoadProject(name)
		if err != nil {
			if errors.Is(err, store.ErrProjectNotFound) {
				s.writeError(w, http.StatusNotFound, model.ErrCodeProjectNotFound,
					fmt.Sprintf("project %q is not defined", name))
				return
			}
			s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, s.projectResponse(project, s.deps.State.ActiveProject().ProjectName))
	case http.MethodDelete:
		if s.deps.State.ActiveProject().ProjectName == name {
			s.writeError(w, http.StatusConflict, model.ErrCodeValidation,
				"cannot delete the active project; switch away first")
			return
		}
		if err := s.deps.Files.DeleteProject(name); err != nil {
			if errors.Is(err, store.ErrProjectNotFound) {
				s.writeError(w, http.StatusNotFound, model.ErrCodeProjectNotFound,
					fmt.Sprintf("project %q is not defined", name))
				return
			}
			s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.methodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) windowsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	project := r.URL.Query().Get("project")
	scope := r.URL.Query().Get("scope")
	if scope != "" && scope != string(model.ScopeScoped) && scope != string(model.ScopeGlobal) {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeInvalid, "scope must be scoped or global")
		return
	}
	resp := api.WindowsEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Windows:       []api.WindowResponse{},
	}
	for _, rec := range s.deps.State.Windows() {
		if project != "" && rec.ProjectName != project {
			continue
		}
		if scope != "" && string(rec.Scope) != scope {
			continue
		}
		resp.Windows = append(resp.Windows, api.WindowResponse{
			WindowID:      rec.WindowID,
			ProcessID:     rec.ProcessID,
			AppName:       rec.AppName,
			ProjectName:   rec.ProjectName,
			Scope:         string(rec.Scope),
			Tracking:      string(rec.Tracking),
			InstanceID:    rec.InstanceID,
			Workspace:     rec.WorkspaceID,
			Output:        rec.OutputName,
			Title:         rec.WindowTitle,
			Class:         rec.WindowClass,
			Floating:      rec.IsFloating,
			Hidden:        rec.Hidden,
			CreatedAt:     rec.CreatedAt,
			LastFocusedAt: rec.LastFocusedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, http.MethodGet)
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, model.ErrCodeInvalid, "limit must be a positive integer")
			return
		}
		limit = n
	}
	eventType := r.URL.Query().Get("type")
	resp := api.EventsEnvelope{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Events:        []api.EventResponse{},
		Dropped:       s.deps.Ring.Dropped(),
	}
	for _, rec := range s.deps.Ring.Recent(limit, eventType) {
		resp.Events = append(resp.Events, api.EventResponse{
			EventID:      rec.EventID,
			EventType:    rec.EventType,
			Subtype:      rec.Subtype,
			Status:       string(rec.Status),
			ErrorMessage: rec.ErrorMessage,
			ReceivedAt:   rec.ReceivedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// reloadHandler re-reads project definitions from disk. If the active
// project disappeared underneath us the daemon falls back to global mode so
// the pointer never dangles.
func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	projects, err := s.deps.Files.ListProjects()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
		return
	}
	activeCleared := false
	active := s.deps.State.ActiveProject().ProjectName
	if active != "" {
		found := false
		for _, p := range projects {
			if p.Name == active {
				found = true
				break
			}
		}
		if !found {
			if _, _, err := s.switchTo(r.Context(), ""); err != nil {
				s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
				return
			}
			activeCleared = true
			s.deps.Logger.Warn("active project removed from disk, reverting to global mode",
				zap.String("project", active))
		}
	}
	s.writeJSON(w, http.StatusOK, api.ReloadResponse{
		SchemaVersion:  api.SchemaVersion,
		GeneratedAt:    time.Now().UTC(),
		ProjectsLoaded: len(projects),
		ActiveCleared:  activeCleared,
	})
}

func (s *Server) layoutSaveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.LayoutSaveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ProjectName == "" {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeInvalid, "project_name is required")
		return
	}
	layoutName := req.LayoutName
	if layoutName == "" {
		layoutName = DefaultLayoutName
	}
	if !store.ValidName(layoutName) {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeValidation, "layout_name is invalid")
		return
	}
	project, err := s.deps.Files.LoadProject(req.ProjectName)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			s.writeError(w, http.StatusNotFound, model.ErrCodeProjectNotFound,
				fmt.Sprintf("project %q is not defined", req.ProjectName))
			return
		}
		s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
		return
	}

	snapshot, err := s.deps.Layout.Capture(r.Context(), req.ProjectName, layoutName)
	if err != nil {
		if errors.Is(err, layout.ErrNoScopedWindows) {
			s.writeError(w, http.StatusConflict, model.ErrCodeValidation, err.Error())
			return
		}
		s.writeError(w, http.StatusBadGateway, model.ErrCodeManagerUnreachable, err.Error())
		return
	}
	if err := s.deps.Files.SaveLayout(snapshot); err != nil {
		s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
		return
	}
	project.SavedLayout = layoutName
	project.UpdatedAt = time.Now().UTC()
	if err := s.deps.Files.SaveProject(project); err != nil {
		s.deps.Logger.Warn("update saved_layout pointer failed",
			zap.String("project", project.Name), zap.Error(err))
	}
	s.writeJSON(w, http.StatusOK, api.LayoutSaveResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		ProjectName:   snapshot.ProjectName,
		LayoutName:    snapshot.LayoutName,
		Placements:    len(snapshot.Placements),
		CapturedAt:    snapshot.CapturedAt,
	})
}

// layoutRestoreHandler relaunches a saved layout. The target project becomes
// active first so freshly launched windows come up visible.
func (s *Server) layoutRestoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, http.MethodPost)
		return
	}
	var req api.LayoutRestoreRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.ProjectName == "" {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeInvalid, "project_name is required")
		return
	}
	project, err := s.deps.Files.LoadProject(req.ProjectName)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			s.writeError(w, http.StatusNotFound, model.ErrCodeProjectNotFound,
				fmt.Sprintf("project %q is not defined", req.ProjectName))
			return
		}
		s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
		return
	}
	layoutName := req.LayoutName
	if layoutName == "" {
		layoutName = project.SavedLayout
	}
	if layoutName == "" {
		s.writeError(w, http.StatusNotFound, model.ErrCodeLayoutNotFound,
			fmt.Sprintf("project %q has no saved layout", req.ProjectName))
		return
	}
	snapshot, err := s.deps.Files.LoadLayout(req.ProjectName, layoutName)
	if err != nil {
		if errors.Is(err, store.ErrLayoutNotFound) {
			s.writeError(w, http.StatusNotFound, model.ErrCodeLayoutNotFound,
				fmt.Sprintf("layout %q is not saved for project %q", layoutName, req.ProjectName))
			return
		}
		s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
		return
	}

	if s.deps.State.ActiveProject().ProjectName != req.ProjectName {
		if _, _, err := s.switchTo(r.Context(), req.ProjectName); err != nil {
			s.writeError(w, http.StatusInternalServerError, model.ErrCodeOperationFailed, err.Error())
			return
		}
	}
	result, err := s.deps.Layout.Restore(r.Context(), snapshot)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, model.ErrCodeManagerUnreachable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.LayoutRestoreResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		ProjectName:   snapshot.ProjectName,
		LayoutName:    snapshot.LayoutName,
		Applied:       result.Applied,
		Skipped:       result.Skipped,
		SkippedApps:   result.SkippedApps,
	})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, model.ErrCodeInvalid, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg string) {
	resp := api.ErrorResponse{
		SchemaVersion: api.SchemaVersion,
		GeneratedAt:   time.Now().UTC(),
		Error:         api.APIError{Code: code, Message: msg},
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, allow ...string) {
	if len(allow) > 0 {
		w.Header().Set("Allow", strings.Join(allow, ", "))
	}
	s.writeError(w, http.StatusMethodNotAllowed, model.ErrCodeInvalid, "method not allowed")
}
