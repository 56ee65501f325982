package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lacpass/healthlink/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Sandbox audit trail management",
	Long: `Commands for verifying and reading the audit trail written by
'hlink sandbox --audit-log'.

The trail records every VHL issued or resolved and every vaccination
certificate generated. Each event is chained to the previous one with a
SHA-256 hash.

Examples:
  # Verify audit trail integrity
  hlink audit verify --log audit.jsonl

  # Show last 10 events
  hlink audit tail --log audit.jsonl -n 10`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit trail integrity",
	Long: `Verify the hash chain of an audit trail file.

Each event contains:
  - hash_prev: SHA-256 hash of the previous event
  - hash: SHA-256 hash of the current event

The chain starts with hash_prev="sha256:genesis" for the first event. A
modified, deleted or inserted event breaks the chain at that position.`,
	Args: cobra.NoArgs,
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent audit events",
	Args:  cobra.NoArgs,
	RunE:  runAuditTail,
}

var (
	auditLogFile string
	auditTailNum int
)

func init() {
	auditVerifyCmd.Flags().StringVar(&auditLogFile, "log", "", "Path to audit trail file (required)")
	_ = auditVerifyCmd.MarkFlagRequired("log")

	auditTailCmd.Flags().StringVar(&auditLogFile, "log", "", "Path to audit trail file (required)")
	_ = auditTailCmd.MarkFlagRequired("log")
	auditTailCmd.Flags().IntVarP(&auditTailNum, "num", "n", 10, "Number of events to show")

	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Verifying audit trail: %s\n\n", auditLogFile)

	count, err := audit.VerifyChain(auditLogFile)
	if err != nil {
		fmt.Fprintf(w, "VERIFICATION FAILED\n")
		fmt.Fprintf(w, "  Valid events: %d\n", count)
		fmt.Fprintf(w, "  Error: %s\n", err)
		return fmt.Errorf("audit trail verification failed: %w", err)
	}

	fmt.Fprintf(w, "VERIFICATION PASSED\n")
	fmt.Fprintf(w, "  Total events: %d\n", count)
	fmt.Fprintf(w, "  Hash chain: VALID\n")
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	events, err := audit.ReadEvents(auditLogFile)
	if err != nil {
		return err
	}
	if len(events) > auditTailNum {
		events = events[len(events)-auditTailNum:]
	}

	if jsonOutput {
		return printJSON(cmd, events)
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Audit trail is empty")
		return nil
	}
	for i := range events {
		printEvent(cmd.OutOrStdout(), &events[i])
	}
	return nil
}

//nolint:errcheck // fmt.Fprintf errors are ignored for output formatting
func printEvent(w io.Writer, e *audit.Event) {
	resultIcon := "✓"
	if e.Result == audit.ResultFailure {
		resultIcon = "✗"
	}

	fmt.Fprintf(w, "[%s] %s %s\n", e.Timestamp, resultIcon, e.EventType)
	fmt.Fprintf(w, "    Actor:  %s@%s\n", e.Actor.ID, e.Actor.Host)
	if e.Object.Type != "" {
		fmt.Fprintf(w, "    Object: %s %s\n", e.Object.Type, e.Object.ID)
	}

	c := e.Context
	if c.RequestID != "" || c.Issuer != "" || c.Status != 0 || c.Reason != "" {
		fmt.Fprint(w, "    Context:")
		if c.RequestID != "" {
			fmt.Fprintf(w, " request_id=%s", c.RequestID)
		}
		if c.Issuer != "" {
			fmt.Fprintf(w, " issuer=%s", c.Issuer)
		}
		if c.Status != 0 {
			fmt.Fprintf(w, " status=%d", c.Status)
		}
		if c.Reason != "" {
			fmt.Fprintf(w, " reason=%s", c.Reason)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}
