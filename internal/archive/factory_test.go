package archive

import "testing"

func TestNewSinkSelectsCommand(t *testing.T) {
	s, err := NewSink("savelog", nil, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if _, ok := s.(*CommandSink); !ok {
		t.Fatalf("got %T, want *CommandSink", s)
	}
}

func TestNewSinkSelectsObjectStore(t *testing.T) {
	s, err := NewSink("", nil, &ObjectConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "run-logs",
	})
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if _, ok := s.(*ObjectSink); !ok {
		t.Fatalf("got %T, want *ObjectSink", s)
	}
}

func TestNewSinkRejectsConflictAndAbsence(t *testing.T) {
	if _, err := NewSink("savelog", nil, &ObjectConfig{}); err == nil {
		t.Fatalf("expected error when both backends are configured")
	}
	if _, err := NewSink("", nil, nil); err == nil {
		t.Fatalf("expected error when no backend is configured")
	}
}
