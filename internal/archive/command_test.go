package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "sink.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCommandSinkStreamsLogToStdin(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run_2026-08-27_03.00.00.log")
	content := "indexing 12 repos\ndone\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	script := writeScript(t, dir, `cat > "`+dir+`/$1.archived"`)

	s := NewCommandSink(script, nil)
	if err := s.Store(context.Background(), "xref-index", logPath); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "xref-index.archived"))
	if err != nil {
		t.Fatalf("read archived copy: %v", err)
	}
	if string(got) != content {
		t.Fatalf("archived content = %q, want %q", got, content)
	}
}

func TestCommandSinkLabelIsLastArgument(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.log")
	if err := os.WriteFile(logPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	script := writeScript(t, dir, `printf '%s' "$2" > "`+dir+`/label"`)

	s := NewCommandSink(script+" first", nil)
	if err := s.Store(context.Background(), "nightly", logPath); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "label"))
	if err != nil {
		t.Fatalf("read label: %v", err)
	}
	if string(got) != "nightly" {
		t.Fatalf("label argument = %q, want nightly", got)
	}
}

func TestCommandSinkFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.log")
	if err := os.WriteFile(logPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	s := NewCommandSink("false", nil)
	if err := s.Store(context.Background(), "xref-index", logPath); err == nil {
		t.Fatalf("expected error from failing archive command")
	}
}

func TestCommandSinkMissingLog(t *testing.T) {
	s := NewCommandSink("cat", nil)
	if err := s.Store(context.Background(), "xref-index", "/nonexistent/run.log"); err == nil {
		t.Fatalf("expected error for missing log file")
	}
}

func TestCommandSinkEmptyCommand(t *testing.T) {
	s := NewCommandSink("  ", nil)
	if err := s.Store(context.Background(), "xref-index", "/tmp/run.log"); err == nil {
		t.Fatalf("expected error for empty command")
	}
}
