package history

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenSearchSinkSend(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewOpenSearchSink(srv.URL, "run-history")
	e := Event{
		Type:       EventFinish,
		OccurredAt: time.Now().UTC(),
		Record:     Record{Job: "xref-index", ExitCode: 0, LogPath: "/tmp/run.log"},
	}
	if err := s.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/run-history/_doc" {
		t.Fatalf("path = %q", gotPath)
	}
	var decoded Event
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body not JSON: %v", err)
	}
	if decoded.Record.Job != "xref-index" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestOpenSearchSinkReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewOpenSearchSink(srv.URL, "run-history")
	if err := s.Send(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error for 500 response")
	}
}
