// Command hlink is the CLI for exchanging health credentials with a regional
// document exchange.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lacpass/healthlink/internal/config"
	"github.com/lacpass/healthlink/internal/logging"
	"github.com/lacpass/healthlink/pkg/exchange"
)

// Build-time variables
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	configPath   string
	logLevel     string
	logFormat    string
	jsonOutput   bool
	regionalBase string
	timeout      string
)

// Loaded by the root PersistentPreRunE.
var (
	settings *config.Config
	logger   = logging.Discard()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hlink",
	Short: "Health credential exchange client",
	Long: `hlink talks to a regional health document exchange.

It discovers and retrieves a patient's clinical documents, decodes and encodes
HC1 credentials, issues and resolves verifiable health links (VHL), and
generates per-immunization vaccination certificates (ICVP).

Configuration is read from --config (YAML), then HLINK_* environment
variables, then flags.

Examples:
  # Find the documents of a patient
  hlink search 12345678

  # Decode a scanned credential
  hlink decode credential.txt

  # Share a patient summary as a QR code
  hlink issue summary.json --qr vhl.png

  # Run a local stand-in exchange
  hlink sandbox --addr 127.0.0.1:8480`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		cfg.ApplyEnv(os.LookupEnv)

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if flags.Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		if flags.Changed("regional-base") {
			cfg.Exchange.RegionalBase = regionalBase
		}
		if flags.Changed("timeout") {
			cfg.Exchange.Timeout = timeout
		}

		l, err := logging.New(cmd.ErrOrStderr(), logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return err
		}
		settings, logger = cfg, l
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a YAML config file")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	pf.BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	pf.StringVar(&regionalBase, "regional-base", "", "Regional FHIR base URL (overrides config)")
	pf.StringVar(&timeout, "timeout", "", "Per-request timeout, e.g. 30s (overrides config)")

	// Offline credential and bundle tools
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(scanCmd)

	// Exchange operations
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(certificatesCmd)

	// Local stand-in exchange
	rootCmd.AddCommand(sandboxCmd)
	rootCmd.AddCommand(auditCmd)
}

// newClient builds an exchange client from the loaded settings.
func newClient() (*exchange.Client, error) {
	ec, err := settings.ExchangeConfig()
	if err != nil {
		return nil, err
	}
	return exchange.New(ec, exchange.WithLogger(logger.With(slog.String("component", "exchange"))))
}
