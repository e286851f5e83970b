package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenMemoryScheme(t *testing.T) {
	s, err := Open(context.Background(), "memory://")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("got %T, want *Memory", s)
	}
}

func TestOpenSQLiteScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobsched.db")
	s, err := Open(context.Background(), "sqlite://"+path+"?journal_mode=WAL&busy_timeout=2000")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLite); !ok {
		t.Fatalf("got %T, want *SQLite", s)
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	if _, err := Open(context.Background(), "redis://localhost"); err == nil {
		t.Fatal("expected an error for an unsupported scheme")
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "sqlite://"); err == nil {
		t.Fatal("expected an error for a missing sqlite path")
	}
}
