package procenv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GlobalProjectToken stands in for the project segment of an instance id
// launched outside any project.
const GlobalProjectToken = "global"

var ErrInstanceIDInvalid = errors.New("invalid instance id")

// InstanceID is the parsed form of an APP_INSTANCE_ID value:
// {app_name}-{project_name|"global"}-{launcher_pid}-{unix_timestamp}.
// App and project names may themselves contain dashes, so only the two
// trailing numeric segments are structurally recoverable; the env contract
// carries app and project separately.
type InstanceID struct {
	Raw         string
	LauncherPID int64
	LaunchedAt  time.Time
}

// ParseInstanceID validates the shape of an instance id. Layout restore runs
// it before trusting the id persisted in a snapshot.
func ParseInstanceID(raw string) (InstanceID, error) {
	raw = strings.TrimSpace(raw)
	segments := strings.Split(raw, "-")
	if len(segments) < 4 {
		return InstanceID{}, fmt.Errorf("%w: %q needs at least 4 segments", ErrInstanceIDInvalid, raw)
	}
	tsRaw := segments[len(segments)-1]
	pidRaw := segments[len(segments)-2]
	prefix := strings.Join(segments[:len(segments)-2], "-")
	if strings.Trim(prefix, "-") == "" {
		return InstanceID{}, fmt.Errorf("%w: %q has an empty name prefix", ErrInstanceIDInvalid, raw)
	}
	pid, err := strconv.ParseInt(pidRaw, 10, 64)
	if err != nil || pid <= 0 {
		return InstanceID{}, fmt.Errorf("%w: %q launcher pid segment", ErrInstanceIDInvalid, raw)
	}
	sec, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil || sec <= 0 {
		return InstanceID{}, fmt.Errorf("%w: %q timestamp segment", ErrInstanceIDInvalid, raw)
	}
	return InstanceID{
		Raw:         raw,
		LauncherPID: pid,
		LaunchedAt:  time.Unix(sec, 0).UTC(),
	}, nil
}

// FormatInstanceID builds an instance id the way the launcher does. The
// daemon only needs this for tests and diagnostics; real ids are minted by
// the launcher.
func FormatInstanceID(appName, projectName string, launcherPID int64, at time.Time) string {
	project := projectName
	if project == "" {
		project = GlobalProjectToken
	}
	return fmt.Sprintf("%s-%s-%d-%d", appName, project, launcherPID, at.Unix())
}
