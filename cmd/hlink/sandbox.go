package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/lacpass/healthlink/internal/api/router"
	"github.com/lacpass/healthlink/internal/api/server"
	"github.com/lacpass/healthlink/internal/api/service"
	"github.com/lacpass/healthlink/internal/audit"
	"github.com/lacpass/healthlink/internal/metrics"
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run a local stand-in exchange",
	Long: `Run an in-memory regional exchange for development and demos.

The sandbox serves FHIR document search and retrieval under /regional, VHL
issuance and resolution under /vhl, and ICVP certificates under /icvpcert.
Credentials are signed with an ephemeral key. With --seed the demo patient
RUN*12345678 holds a summary, an ICVP bundle and a PDF report.

Point the client at it with:
  regionalBase:   http://127.0.0.1:8480/regional
  issuanceUrl:    http://127.0.0.1:8480/vhl/_generate
  resolveUrl:     http://127.0.0.1:8480/vhl/_resolve
  certificateUrl: http://127.0.0.1:8480/icvpcert/_from-bundle

Examples:
  hlink sandbox
  hlink sandbox --addr :8443 --tls-cert cert.pem --tls-key key.pem --user demo --pass demo
  hlink sandbox --audit-log audit.jsonl
  hlink sandbox demo summary > summary.json`,
	Args: cobra.NoArgs,
	RunE: runSandbox,
}

var sandboxDemoCmd = &cobra.Command{
	Use:       "demo <summary|icvp>",
	Short:     "Print a demo bundle",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"summary", "icvp"},
	RunE:      runSandboxDemo,
}

var (
	sandboxAddr     string
	sandboxUser     string
	sandboxPass     string
	sandboxTLSCert  string
	sandboxTLSKey   string
	sandboxSeed     bool
	sandboxIssuer   string
	sandboxValidity time.Duration
	sandboxAuditLog string
)

func init() {
	f := sandboxCmd.Flags()
	f.StringVar(&sandboxAddr, "addr", "", "Listen address (default from config, 127.0.0.1:8480)")
	f.StringVar(&sandboxUser, "user", "", "Basic auth user (empty: no auth)")
	f.StringVar(&sandboxPass, "pass", "", "Basic auth password")
	f.StringVar(&sandboxTLSCert, "tls-cert", "", "TLS certificate file")
	f.StringVar(&sandboxTLSKey, "tls-key", "", "TLS private key file")
	f.BoolVar(&sandboxSeed, "seed", true, "Register the demo patient documents")
	f.StringVar(&sandboxIssuer, "issuer", service.DefaultIssuer, "Issuer of signed credentials")
	f.DurationVar(&sandboxValidity, "validity", service.DefaultValidity, "Validity of signed credentials")
	f.StringVar(&sandboxAuditLog, "audit-log", "", "Append a hash-chained audit trail of signed credentials to this file")

	sandboxCmd.AddCommand(sandboxDemoCmd)
}

func runSandbox(cmd *cobra.Command, args []string) error {
	if (sandboxTLSCert == "") != (sandboxTLSKey == "") {
		return fmt.Errorf("--tls-cert and --tls-key must be given together")
	}
	sc := settings.Sandbox
	if sandboxAddr != "" {
		sc.Addr = sandboxAddr
	}
	if cmd.Flags().Changed("user") {
		sc.BasicUser = sandboxUser
	}
	if cmd.Flags().Changed("pass") {
		sc.BasicPass = sandboxPass
	}

	log := logger.With(slog.String("component", "sandbox"))

	registry := service.NewRegistry()
	if sandboxSeed {
		if err := service.Seed(registry); err != nil {
			return fmt.Errorf("failed to seed documents: %w", err)
		}
		log.Info("seeded demo documents", "identifier", service.DemoIdentifier, "documents", registry.Len())
	}
	issuer, err := service.NewIssuer(sandboxIssuer, sandboxValidity)
	if err != nil {
		return err
	}

	var auditor audit.Writer = audit.NopWriter{}
	if sandboxAuditLog != "" {
		fw, err := audit.NewFileWriter(sandboxAuditLog)
		if err != nil {
			return err
		}
		defer fw.Close()
		auditor = fw
		log.Info("audit trail enabled", "path", sandboxAuditLog, "last_hash", fw.LastHash())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler, err := router.New(&router.Config{
		Version:   version,
		BasicUser: sc.BasicUser,
		BasicPass: sc.BasicPass,
		Documents: registry,
		Issuer:    issuer,
		Logger:    log,
		Audit:     auditor,
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
	})
	if err != nil {
		return err
	}

	cfg := server.DefaultConfig()
	if sc.Addr != "" {
		cfg.Addr = sc.Addr
	}
	cfg.TLSCert, cfg.TLSKey = sandboxTLSCert, sandboxTLSKey
	return server.New(cfg, handler, log).Run(cmd.Context())
}

func runSandboxDemo(cmd *cobra.Command, args []string) error {
	var (
		raw []byte
		err error
	)
	switch args[0] {
	case "summary":
		raw, err = service.DemoSummaryBundle()
	case "icvp":
		raw, err = service.DemoICVPBundle()
	default:
		return fmt.Errorf("unknown demo bundle %q: want summary or icvp", args[0])
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd, "", indentJSON(raw))
}
