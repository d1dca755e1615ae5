// Package launch issues launch requests to the external application
// launcher. The daemon never starts applications itself: the launcher owns
// registry lookup and environment-contract injection, including the exact
// instance id we hand it.
package launch

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
)

// Request asks the launcher to start one application under one identity.
type Request struct {
	AppName     string
	ProjectName string
	InstanceID  string
}

type Launcher interface {
	Launch(ctx context.Context, req Request) error
}

// Func adapts a function to the Launcher interface. Tests use it to fake
// launches.
type Func func(ctx context.Context, req Request) error

func (f Func) Launch(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// CommandLauncher execs the configured launcher binary in a detached
// session. It does not wait for the application: window appearance is
// confirmed by the layout engine's exact-identity wait.
type CommandLauncher struct {
	command string
	logger  *zap.Logger
}

func NewCommandLauncher(command string, logger *zap.Logger) *CommandLauncher {
	return &CommandLauncher{command: command, logger: logger}
}

func (l *CommandLauncher) Launch(ctx context.Context, req Request) error {
	if req.AppName == "" || req.InstanceID == "" {
		return fmt.Errorf("launch request needs app name and instance id")
	}
	args := []string{"--app", req.AppName, "--instance-id", req.InstanceID}
	if req.ProjectName != "" {
		args = append(args, "--project", req.ProjectName)
	}
	cmd := exec.CommandContext(ctx, l.command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start launcher: %w", err)
	}
	l.logger.Debug("launch request issued",
		zap.String("app", req.AppName),
		zap.String("project", req.ProjectName),
		zap.String("instance_id", req.InstanceID),
		zap.Int("launcher_pid", cmd.Process.Pid))
	// Detach; the launcher reaps its own child.
	return cmd.Process.Release()
}
