package factory

import (
	"path/filepath"
	"testing"
)

func TestNewSinkFromDSNSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewSinkFromDSN(path)
	if err != nil {
		t.Fatalf("sqlite path DSN: %v", err)
	}
	if c, ok := s.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	s, err = NewSinkFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("sqlite scheme DSN: %v", err)
	}
	if c, ok := s.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func TestNewSinkFromDSNErrors(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
	if _, err := NewSinkFromDSN("kafka://host:9092/topic"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestNewSinkFromDSNOpenSearch(t *testing.T) {
	s, err := NewSinkFromDSN("opensearch://localhost:9200/run-history")
	if err != nil {
		t.Fatalf("opensearch DSN: %v", err)
	}
	if s == nil {
		t.Fatalf("nil sink")
	}
}
