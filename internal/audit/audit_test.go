package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// Event Tests
// =============================================================================

func TestU_NewEvent_Creation(t *testing.T) {
	event := NewEvent(EventVHLIssued, ResultSuccess)

	if event.EventType != EventVHLIssued {
		t.Errorf("expected EventType=%s, got %s", EventVHLIssued, event.EventType)
	}
	if event.Result != ResultSuccess {
		t.Errorf("expected Result=%s, got %s", ResultSuccess, event.Result)
	}
	if event.Timestamp == "" {
		t.Error("Timestamp should not be empty")
	}
	if event.Actor.Type != "service" {
		t.Errorf("expected Actor.Type=service, got %s", event.Actor.Type)
	}
}

func TestU_Event_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   *Event
		wantErr bool
	}{
		{
			name:    "[Unit] Validate: valid event",
			event:   NewEvent(EventCertificateIssued, ResultFailure),
			wantErr: false,
		},
		{
			name: "[Unit] Validate: missing event_type",
			event: &Event{
				Timestamp: "2024-01-15T10:00:00Z",
				Actor:     Actor{Type: "client", ID: "demo"},
				Result:    ResultSuccess,
			},
			wantErr: true,
		},
		{
			name: "[Unit] Validate: missing actor id",
			event: &Event{
				EventType: EventVHLResolved,
				Timestamp: "2024-01-15T10:00:00Z",
				Actor:     Actor{Type: "client"},
				Result:    ResultSuccess,
			},
			wantErr: true,
		},
		{
			name: "[Unit] Validate: missing result",
			event: &Event{
				EventType: EventVHLResolved,
				Timestamp: "2024-01-15T10:00:00Z",
				Actor:     Actor{Type: "client", ID: "demo"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestU_ResultOf(t *testing.T) {
	if ResultOf(true) != ResultSuccess || ResultOf(false) != ResultFailure {
		t.Error("ResultOf() mapped the flag incorrectly")
	}
}

// =============================================================================
// FileWriter Tests
// =============================================================================

func writeEvents(t *testing.T, w Writer, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e := NewEvent(EventCertificateIssued, ResultSuccess).
			WithObject(Object{Type: "immunization", ID: "imm-" + string(rune('1'+i))})
		if err := w.Write(e); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
}

func TestF_FileWriter_Chain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	if w.LastHash() != GenesisHash {
		t.Errorf("LastHash() = %s, want genesis", w.LastHash())
	}
	writeEvents(t, w, 3)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	count, err := VerifyChain(path)
	if err != nil {
		t.Fatalf("VerifyChain() error = %v", err)
	}
	if count != 3 {
		t.Errorf("VerifyChain() = %d, want 3", count)
	}

	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}
	if events[0].HashPrev != GenesisHash {
		t.Errorf("first hash_prev = %s, want genesis", events[0].HashPrev)
	}
	if events[2].Object.ID != "imm-3" {
		t.Errorf("third object = %s, want imm-3", events[2].Object.ID)
	}
}

func TestF_FileWriter_ContinuesExistingLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	writeEvents(t, w, 2)
	last := w.LastHash()
	_ = w.Close()

	w, err = NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() reopen error = %v", err)
	}
	if w.LastHash() != last {
		t.Errorf("reopened LastHash() = %s, want %s", w.LastHash(), last)
	}
	writeEvents(t, w, 1)
	_ = w.Close()

	if count, err := VerifyChain(path); err != nil || count != 3 {
		t.Errorf("VerifyChain() = %d, %v; want 3, nil", count, err)
	}
}

func TestF_VerifyChain_DetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	w, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter() error = %v", err)
	}
	writeEvents(t, w, 3)
	_ = w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), `"id":"imm-2"`, `"id":"imm-9"`, 1)
	if err := os.WriteFile(path, []byte(tampered), 0o600); err != nil {
		t.Fatal(err)
	}

	count, err := VerifyChain(path)
	if err == nil {
		t.Fatal("VerifyChain() should fail for a modified event")
	}
	if count != 1 {
		t.Errorf("VerifyChain() valid events = %d, want 1", count)
	}
}

func TestF_NewFileWriter_RejectsCorruptLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileWriter(path); err == nil {
		t.Error("NewFileWriter() should fail when the last line is not an event")
	}
}

func TestU_NopWriter(t *testing.T) {
	var w Writer = NopWriter{}
	if err := w.Write(&Event{}); err != nil {
		t.Errorf("NopWriter.Write() error = %v", err)
	}
	if w.LastHash() != GenesisHash {
		t.Errorf("NopWriter.LastHash() = %s", w.LastHash())
	}
}
