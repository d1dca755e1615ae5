package procenv

import (
	"errors"
	"testing"
	"time"
)

func TestParseInstanceID(t *testing.T) {
	got, err := ParseInstanceID("editor-alpha-4242-1767225600")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.LauncherPID != 4242 {
		t.Fatalf("expected launcher pid 4242, got %d", got.LauncherPID)
	}
	if !got.LaunchedAt.Equal(time.Unix(1767225600, 0).UTC()) {
		t.Fatalf("unexpected launch time %v", got.LaunchedAt)
	}
}

func TestParseInstanceIDDashedNames(t *testing.T) {
	// App and project names may carry dashes; only the trailing numeric
	// segments are structural.
	got, err := ParseInstanceID("code-editor-my-web-app-99-1767225600")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.LauncherPID != 99 {
		t.Fatalf("expected launcher pid 99, got %d", got.LauncherPID)
	}
}

func TestParseInstanceIDRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"editor",
		"editor-alpha-1767225600",      // only 3 segments
		"editor-alpha-abc-1767225600",  // pid not numeric
		"editor-alpha-4242-notatime",   // timestamp not numeric
		"editor-alpha-0-1767225600",    // pid must be positive
		"editor-alpha-4242-0",          // timestamp must be positive
		"---4242-1767225600",           // empty name prefix
	} {
		if _, err := ParseInstanceID(raw); !errors.Is(err, ErrInstanceIDInvalid) {
			t.Fatalf("expected ErrInstanceIDInvalid for %q, got %v", raw, err)
		}
	}
}

func TestFormatInstanceIDRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	raw := FormatInstanceID("editor", "alpha", 4242, at)
	if raw != "editor-alpha-4242-1772359200" {
		t.Fatalf("unexpected format: %q", raw)
	}
	parsed, err := ParseInstanceID(raw)
	if err != nil {
		t.Fatalf("parse formatted id: %v", err)
	}
	if parsed.LauncherPID != 4242 || !parsed.LaunchedAt.Equal(at) {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestFormatInstanceIDGlobalToken(t *testing.T) {
	raw := FormatInstanceID("browser", "", 7, time.Unix(1767225600, 0))
	if raw != "browser-global-7-1767225600" {
		t.Fatalf("expected global token in %q", raw)
	}
}
