package main

import (
	"os"
	"strings"
	"testing"

	"github.com/lacpass/healthlink/internal/audit"
)

// writeAuditLog writes a short audit trail and returns its path.
func (tc *testContext) writeAuditLog() string {
	tc.t.Helper()
	path := tc.path("audit.jsonl")
	w, err := audit.NewFileWriter(path)
	if err != nil {
		tc.t.Fatalf("NewFileWriter() error = %v", err)
	}
	defer func() { _ = w.Close() }()

	events := []*audit.Event{
		audit.NewEvent(audit.EventVHLIssued, audit.ResultSuccess).
			WithObject(audit.Object{Type: "bundle", ID: "b-1"}),
		audit.NewEvent(audit.EventCertificateIssued, audit.ResultFailure).
			WithObject(audit.Object{Type: "immunization", ID: "imm-2"}).
			WithContext(audit.Context{Status: 422}),
	}
	for _, e := range events {
		if err := w.Write(e); err != nil {
			tc.t.Fatalf("Write() error = %v", err)
		}
	}
	return path
}

func TestF_Audit_Verify(t *testing.T) {
	t.Run("[Functional] AuditVerify: intact trail passes", func(t *testing.T) {
		tc := newTestContext(t)
		path := tc.writeAuditLog()

		out, err := executeCommand("", "audit", "verify", "--log", path)
		if err != nil {
			t.Fatalf("audit verify failed: %v", err)
		}
		if !strings.Contains(out, "VERIFICATION PASSED") || !strings.Contains(out, "Total events: 2") {
			t.Errorf("audit verify output = %q", out)
		}
	})

	t.Run("[Functional] AuditVerify: modified trail fails", func(t *testing.T) {
		tc := newTestContext(t)
		path := tc.writeAuditLog()
		data := strings.Replace(tc.readFile(path), `"id":"b-1"`, `"id":"b-2"`, 1)
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		out, err := executeCommand("", "audit", "verify", "--log", path)
		if err == nil {
			t.Fatal("audit verify should fail for a modified trail")
		}
		if !strings.Contains(out, "Valid events: 0") {
			t.Errorf("audit verify output = %q", out)
		}
	})
}

func TestF_Audit_Tail(t *testing.T) {
	t.Run("[Functional] AuditTail: shows the last events", func(t *testing.T) {
		tc := newTestContext(t)
		path := tc.writeAuditLog()

		out, err := executeCommand("", "audit", "tail", "--log", path, "-n", "1")
		if err != nil {
			t.Fatalf("audit tail failed: %v", err)
		}
		if strings.Contains(out, string(audit.EventVHLIssued)) {
			t.Errorf("audit tail -n 1 printed the first event:\n%s", out)
		}
		for _, want := range []string{string(audit.EventCertificateIssued), "immunization imm-2", "status=422"} {
			if !strings.Contains(out, want) {
				t.Errorf("audit tail output missing %q:\n%s", want, out)
			}
		}
	})
}
