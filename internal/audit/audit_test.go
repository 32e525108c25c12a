package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRingBufferCap(t *testing.T) {
	l := NewLogger(3, nil)
	for i := 0; i < 5; i++ {
		l.LogKeyUpdate("alice", "/alice/files/doc.txt", "OC_DEFAULT_MODULE", true, nil)
	}
	events := l.Recent()
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
}

func TestEventFields(t *testing.T) {
	l := NewLogger(10, nil)
	l.LogDecryptFile("alice", "/alice/files/doc.txt", false, errors.New("bad key"), 20*time.Millisecond)
	l.LogDecryptRun("alice", true, time.Second)

	events := l.Recent()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].EventType != EventTypeDecryptFile || events[0].Success || events[0].Error != "bad key" {
		t.Errorf("file event = %+v", events[0])
	}
	if events[1].EventType != EventTypeDecryptRun || !events[1].Success {
		t.Errorf("run event = %+v", events[1])
	}
}

func TestStreamsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(10, &buf)
	l.LogKeyUpdate("alice", "/p", "M", true, nil)

	var event Event
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("output is not one JSON line: %v", err)
	}
	if event.EventType != EventTypeKeyUpdate || event.User != "alice" {
		t.Errorf("event = %+v", event)
	}
}

func TestRecentReturnsCopy(t *testing.T) {
	l := NewLogger(10, nil)
	l.LogKeyUpdate("alice", "/p", "M", true, nil)
	events := l.Recent()
	events[0] = nil
	if got := l.Recent(); got[0] == nil {
		t.Error("Recent leaked internal slice")
	}
}
