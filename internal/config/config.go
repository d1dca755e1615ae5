package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config carries every runtime knob for the daemon. Paths default to
// XDG-style locations; flags in cmd/projd override them.
type Config struct {
	// SocketPath is the control-server UDS path (chmod 0600).
	SocketPath string
	// ManagerSocketPath is the window manager's IPC socket. Empty means
	// read $WM_SOCK (falling back to $SWAYSOCK / $I3SOCK) at connect time.
	ManagerSocketPath string
	// DataDir holds the persisted JSON documents (projects/, layouts/,
	// active_project.json).
	DataDir string
	// JournalPath is the sqlite event journal.
	JournalPath string
	// LauncherCommand is the external launcher invoked for layout-restore
	// launch requests.
	LauncherCommand string

	// Connection manager.
	MaxConnectAttempts  int
	ReconnectBackoff    time.Duration
	ReconnectBackoffCap time.Duration

	// CommandTimeout bounds every manager round trip.
	CommandTimeout time.Duration

	// Layout restore.
	RestoreWaitTimeout  time.Duration
	RestorePollInterval time.Duration

	// Diagnostics.
	EventRingCapacity      int
	JournalRetention       time.Duration
	RetentionSweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		SocketPath:             defaultSocketPath(),
		DataDir:                defaultDataDir(),
		JournalPath:            filepath.Join(defaultDataDir(), "journal.db"),
		LauncherCommand:        "proj-launch",
		MaxConnectAttempts:     10,
		ReconnectBackoff:       100 * time.Millisecond,
		ReconnectBackoffCap:    5 * time.Second,
		CommandTimeout:         5 * time.Second,
		RestoreWaitTimeout:     5 * time.Second,
		RestorePollInterval:    100 * time.Millisecond,
		EventRingCapacity:      1000,
		JournalRetention:       7 * 24 * time.Hour,
		RetentionSweepInterval: time.Hour,
	}
}

func defaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		return filepath.Join(runtimeDir, "projd", "projd.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".projd.sock"
	}
	return filepath.Join(home, ".local", "state", "projd", "projd.sock")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "projd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".projd"
	}
	return filepath.Join(home, ".local", "share", "projd")
}

// ManagerSocket resolves the window manager socket path, preferring the
// explicit config value over the conventional environment variables.
func (c Config) ManagerSocket() string {
	if c.ManagerSocketPath != "" {
		return c.ManagerSocketPath
	}
	for _, key := range []string{"WM_SOCK", "SWAYSOCK", "I3SOCK"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
