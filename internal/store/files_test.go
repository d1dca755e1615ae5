package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"projd/internal/model"
)

func testProject(t *testing.T, name string) model.ProjectConfig {
	t.Helper()
	dir := t.TempDir()
	return model.ProjectConfig{
		Name:        name,
		DisplayName: name,
		Directory:   dir,
		CreatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestProjectRoundTrip(t *testing.T) {
	f := New(t.TempDir())
	want := testProject(t, "alpha")
	if err := f.SaveProject(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := f.LoadProject("alpha")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
	if !f.ProjectExists("alpha") {
		t.Fatalf("ProjectExists should see the saved project")
	}
}

func TestSaveProjectValidation(t *testing.T) {
	f := New(t.TempDir())

	p := testProject(t, "../evil")
	if err := f.SaveProject(p); !errors.Is(err, ErrNameInvalid) {
		t.Fatalf("expected ErrNameInvalid for traversal name, got %v", err)
	}

	p = testProject(t, "alpha")
	p.Directory = "relative/path"
	if err := f.SaveProject(p); !errors.Is(err, ErrNameInvalid) {
		t.Fatalf("expected ErrNameInvalid for relative directory, got %v", err)
	}

	p = testProject(t, "alpha")
	p.Directory = filepath.Join(p.Directory, "does-not-exist")
	if err := f.SaveProject(p); !errors.Is(err, ErrDirectoryMissing) {
		t.Fatalf("expected ErrDirectoryMissing, got %v", err)
	}
}

func TestLoadProjectNotFound(t *testing.T) {
	f := New(t.TempDir())
	if _, err := f.LoadProject("ghost"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestListProjectsSortedAndSkipsGarbage(t *testing.T) {
	dataDir := t.TempDir()
	f := New(dataDir)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := f.SaveProject(testProject(t, name)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	// A torn or foreign file must not break the listing.
	if err := os.WriteFile(filepath.Join(dataDir, "projects", "garbage.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	got, err := f.ListProjects()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].Name != "alpha" || got[1].Name != "mid" || got[2].Name != "zeta" {
		t.Fatalf("expected sorted [alpha mid zeta], got %+v", got)
	}
}

func TestDeleteProjectRemovesLayouts(t *testing.T) {
	f := New(t.TempDir())
	if err := f.SaveProject(testProject(t, "alpha")); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap := model.LayoutSnapshot{ProjectName: "alpha", LayoutName: "default"}
	if err := f.SaveLayout(snap); err != nil {
		t.Fatalf("save layout: %v", err)
	}
	if err := f.DeleteProject("alpha"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.LoadProject("alpha"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("project should be gone, got %v", err)
	}
	if _, err := f.LoadLayout("alpha", "default"); !errors.Is(err, ErrLayoutNotFound) {
		t.Fatalf("layouts should be gone, got %v", err)
	}
	if err := f.DeleteProject("alpha"); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("double delete should report not found, got %v", err)
	}
}

func TestActiveProjectRoundTrip(t *testing.T) {
	f := New(t.TempDir())

	// Missing file means global mode at first boot.
	ap, err := f.LoadActiveProject()
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if ap.ProjectName != "" {
		t.Fatalf("expected global mode, got %q", ap.ProjectName)
	}

	want := model.ActiveProject{
		ProjectName: "alpha",
		ActivatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := f.SaveActiveProject(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := f.LoadActiveProject()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestLayoutRoundTripAndListing(t *testing.T) {
	f := New(t.TempDir())
	snap := model.LayoutSnapshot{
		ProjectName: "alpha",
		LayoutName:  "coding",
		CapturedAt:  time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
		Placements: []model.WindowPlacement{
			{AppName: "editor", ExpectedInstanceID: "editor-alpha-100-1700000000", Workspace: "2", Width: 1280, Height: 720, Focused: true},
		},
	}
	if err := f.SaveLayout(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.SaveLayout(model.LayoutSnapshot{ProjectName: "alpha", LayoutName: "review"}); err != nil {
		t.Fatalf("save second: %v", err)
	}
	if err := f.SaveLayout(model.LayoutSnapshot{ProjectName: "beta", LayoutName: "coding"}); err != nil {
		t.Fatalf("save other project: %v", err)
	}

	got, err := f.LoadLayout("alpha", "coding")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Placements) != 1 || got.Placements[0] != snap.Placements[0] {
		t.Fatalf("placements not round-tripped: %+v", got.Placements)
	}

	names, err := f.ListLayouts("alpha")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "coding" || names[1] != "review" {
		t.Fatalf("expected [coding review], got %v", names)
	}
}

func TestWriteIsAtomicNoTempLeftovers(t *testing.T) {
	dataDir := t.TempDir()
	f := New(dataDir)
	if err := f.SaveActiveProject(model.ActiveProject{ProjectName: "alpha"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "active_project.json" {
			t.Fatalf("unexpected leftover %q", entry.Name())
		}
	}
	info, err := os.Stat(filepath.Join(dataDir, "active_project.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}
