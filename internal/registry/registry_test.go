package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tclaveria/concierge/pkg/models"
)

func TestRegisterAndFind(t *testing.T) {
	r := New()

	err := r.Register(models.CapabilityDescriptor{
		Name:        "create_project",
		Description: "Creates a new project",
		Priority:    10,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	d, err := r.Find("create_project")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if d.Priority != 10 {
		t.Errorf("expected priority 10, got %d", d.Priority)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	desc := models.CapabilityDescriptor{Name: "analyze_risks"}

	if err := r.Register(desc); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := r.Register(desc)
	var dup *DuplicateCapabilityError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCapabilityError, got %v", err)
	}
	if dup.Name != "analyze_risks" {
		t.Errorf("expected duplicate name analyze_risks, got %q", dup.Name)
	}
}

func TestFindUnknown(t *testing.T) {
	r := New()

	_, err := r.Find("nope")
	var unknown *UnknownCapabilityError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownCapabilityError, got %v", err)
	}
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := New()
	if err := r.Register(models.CapabilityDescriptor{Name: "has space"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := New()
	if err := r.Register(models.CapabilityDescriptor{Name: "a"}); err != nil {
		t.Fatal(err)
	}

	snap := r.Snapshot()
	if err := r.Register(models.CapabilityDescriptor{Name: "b"}); err != nil {
		t.Fatal(err)
	}

	// The old snapshot must not see the later registration.
	if snap.Len() != 1 {
		t.Errorf("expected old snapshot to hold 1 capability, got %d", snap.Len())
	}
	if r.Snapshot().Len() != 2 {
		t.Errorf("expected current snapshot to hold 2 capabilities, got %d", r.Snapshot().Len())
	}
}

func TestListSorted(t *testing.T) {
	r := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(models.CapabilityDescriptor{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	names := r.Snapshot().Names()
	want := []string{"alpha", "mid", "zeta"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("expected names[%d]=%s, got %s", i, n, names[i])
		}
	}
}

func TestReplaceSwapsCatalog(t *testing.T) {
	r := New()
	if err := r.Register(models.CapabilityDescriptor{Name: "old"}); err != nil {
		t.Fatal(err)
	}

	err := r.Replace([]models.CapabilityDescriptor{
		{Name: "new_one"},
		{Name: "new_two"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	if _, err := r.Find("old"); err == nil {
		t.Error("expected old capability to be gone after replace")
	}
	if _, err := r.Find("new_one"); err != nil {
		t.Errorf("expected new capability present: %v", err)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capabilities.yaml")
	content := `
capabilities:
  - name: create_project
    description: Creates a project
    examples:
      - crear proyecto
      - new project
    parameters:
      - name: name
        type: string
        required: true
    produces:
      - project_id
    priority: 10
  - name: generate_charter
    description: Generates a project charter
    parameters:
      - name: project_id
        type: string
        required: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	descriptors, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(descriptors))
	}
	if descriptors[0].Name != "create_project" {
		t.Errorf("expected create_project first, got %s", descriptors[0].Name)
	}
	if len(descriptors[0].Produces) != 1 || descriptors[0].Produces[0] != "project_id" {
		t.Errorf("expected produces [project_id], got %v", descriptors[0].Produces)
	}

	r := New()
	if err := RegisterCatalog(r, path); err != nil {
		t.Fatalf("RegisterCatalog: %v", err)
	}
	if r.Snapshot().Len() != 2 {
		t.Errorf("expected 2 registered capabilities, got %d", r.Snapshot().Len())
	}
}

func TestLoadCatalogEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("capabilities: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCatalog(path); err == nil {
		t.Error("expected error for empty catalog")
	}
}
