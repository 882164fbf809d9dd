package history

import (
	"context"
	"testing"
	"time"
)

func newMemorySink(t *testing.T) *SQLSink {
	t.Helper()
	s, err := NewSQLSink(":memory:")
	if err != nil {
		t.Fatalf("new sqlite sink: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLSinkSendAndRecent(t *testing.T) {
	s := newMemorySink(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	rec := Record{
		Job:       "xref-index",
		PID:       4242,
		StartedAt: started,
		LogPath:   "/var/log/idxrun/run_2026-08-27_03.00.00.log",
	}
	if err := s.Send(ctx, Event{Type: EventStart, OccurredAt: started, Record: rec}); err != nil {
		t.Fatalf("send start: %v", err)
	}
	rec.FinishedAt = started.Add(30 * time.Second)
	rec.ExitCode = 3
	rec.ExitErr = "exit status 3"
	if err := s.Send(ctx, Event{Type: EventFinish, OccurredAt: rec.FinishedAt, Record: rec}); err != nil {
		t.Fatalf("send finish: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	// Only finish events are listed.
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	r := got[0]
	if r.Job != "xref-index" || r.PID != 4242 || r.ExitCode != 3 || r.ExitErr != "exit status 3" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.FinishedAt.IsZero() {
		t.Fatalf("finished_at not round-tripped")
	}
}

func TestSQLSinkRecentOrder(t *testing.T) {
	s := newMemorySink(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		rec := Record{
			Job:        "xref-index",
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			LogPath:    "/tmp/x.log",
		}
		if err := s.Send(ctx, Event{Type: EventFinish, OccurredAt: rec.FinishedAt, Record: rec}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if !got[0].StartedAt.After(got[1].StartedAt) {
		t.Fatalf("records not newest-first: %v then %v", got[0].StartedAt, got[1].StartedAt)
	}
}

func TestSQLSinkRejectsEmptyDSN(t *testing.T) {
	if _, err := NewSQLSink("  "); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
