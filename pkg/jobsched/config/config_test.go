package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultUsesMemoryStore(t *testing.T) {
	c := Default()
	if c.Store.URL != "memory://" {
		t.Fatalf("got store url %q, want memory://", c.Store.URL)
	}
	if c.Pool.MaxWorkers != 20 {
		t.Fatalf("got max workers %d, want 20", c.Pool.MaxWorkers)
	}
}

func TestLoadConfigFillsOmittedFieldsFromDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	doc := "store:\n  url: \"sqlite:///tmp/jobs.db\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Store.URL != "sqlite:///tmp/jobs.db" {
		t.Fatalf("got store url %q, want the document's value", c.Store.URL)
	}
	if c.Pool.MaxWorkers != 20 {
		t.Fatalf("got max workers %d, want the default 20 since the document omitted it", c.Pool.MaxWorkers)
	}
	if c.Pool.TaskTimeout != time.Hour {
		t.Fatalf("got task timeout %v, want default 1h", c.Pool.TaskTimeout)
	}
}

func TestLoadConfigOverridesPoolSizing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	doc := "pool:\n  max_workers: 5\n  task_timeout: 90s\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.Pool.MaxWorkers != 5 {
		t.Fatalf("got max workers %d, want 5", c.Pool.MaxWorkers)
	}
	if c.Pool.TaskTimeout != 90*time.Second {
		t.Fatalf("got task timeout %v, want 90s", c.Pool.TaskTimeout)
	}
}

func TestBootstrapDefaultsAppliesOverrides(t *testing.T) {
	c := Default()
	c.Bootstrap.JobID = "nightly"
	c.Bootstrap.Hour = 3

	d := c.BootstrapDefaults()
	if d.JobID != "nightly" {
		t.Fatalf("got job id %q, want nightly", d.JobID)
	}
	if d.Hour != 3 {
		t.Fatalf("got hour %d, want 3", d.Hour)
	}
}
