package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lacpass/healthlink/pkg/hcert"
	"github.com/lacpass/healthlink/pkg/scan"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Read credentials from a barcode reader",
	Long: `Read lines from stdin, as a keyboard-wedge barcode reader types them,
until one is a valid HC1 credential. Other reads are ignored.

With --continuous the scan restarts after each credential until input ends.

Examples:
  hlink scan
  hlink scan --decode --continuous < reads.txt`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDecode     bool
	scanContinuous bool
)

func init() {
	scanCmd.Flags().BoolVar(&scanDecode, "decode", false, "Decode each credential instead of printing its text")
	scanCmd.Flags().BoolVar(&scanContinuous, "continuous", false, "Keep scanning until input ends")
}

func runScan(cmd *cobra.Command, args []string) error {
	loop := scan.NewLoop(scan.NewLineSource(cmd.InOrStdin()), logger.With(slog.String("component", "scan")))
	defer loop.Stop()

	scanned := 0
	for {
		res := <-loop.Start(cmd.Context())
		if res.Err != nil {
			if scanned > 0 && errors.Is(res.Err, scan.ErrSourceClosed) {
				return nil
			}
			return res.Err
		}
		scanned++

		if err := printScanned(cmd, res.Text); err != nil {
			return err
		}
		if !scanContinuous {
			return nil
		}
	}
}

func printScanned(cmd *cobra.Command, text string) error {
	if !scanDecode {
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	}
	cred, err := hcert.Decode(text)
	if err != nil {
		// A read can carry the prefix yet fail to decode.
		logger.Warn("scanned credential did not decode", "error", err)
		return nil
	}
	info := hcert.GetInfo(cred)
	if jsonOutput {
		return printJSON(cmd, info)
	}
	info.Print(cmd.OutOrStdout())
	return nil
}
