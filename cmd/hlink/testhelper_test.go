package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lacpass/healthlink/internal/api/router"
	"github.com/lacpass/healthlink/internal/api/service"
)

// Note: t.Parallel() is not used because Cobra commands share global flag state.

// executeCommand runs the root command with args and stdin, and returns
// what was written to stdout. Log output goes to a separate buffer.
func executeCommand(stdin string, args ...string) (output string, err error) {
	resetFlags(rootCmd)

	out, logs := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(logs)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err = rootCmd.Execute()
	return out.String(), err
}

// resetFlags restores every flag of cmd and its subcommands to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// testContext holds test resources.
type testContext struct {
	t       *testing.T
	tempDir string
}

// newTestContext creates a new test context with a temp directory.
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	return &testContext{t: t, tempDir: t.TempDir()}
}

// path returns a path within the temp directory.
func (tc *testContext) path(name string) string {
	return filepath.Join(tc.tempDir, name)
}

// writeFile writes content to a file in the temp directory.
func (tc *testContext) writeFile(name string, content []byte) string {
	tc.t.Helper()
	path := tc.path(name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		tc.t.Fatalf("Failed to write file %s: %v", name, err)
	}
	return path
}

// writeDemoBundles writes the demo summary and ICVP bundles.
func (tc *testContext) writeDemoBundles() (summary, icvp string) {
	tc.t.Helper()
	raw, err := service.DemoSummaryBundle()
	if err != nil {
		tc.t.Fatalf("DemoSummaryBundle() error = %v", err)
	}
	summary = tc.writeFile("summary.json", raw)

	raw, err = service.DemoICVPBundle()
	if err != nil {
		tc.t.Fatalf("DemoICVPBundle() error = %v", err)
	}
	icvp = tc.writeFile("icvp.json", raw)
	return summary, icvp
}

const (
	sandboxUser = "demo"
	sandboxPass = "secret"
)

// startSandbox serves a seeded sandbox and writes a config file pointing
// the client at it.
func (tc *testContext) startSandbox() (configPath string) {
	tc.t.Helper()
	registry := service.NewRegistry()
	if err := service.Seed(registry); err != nil {
		tc.t.Fatalf("Seed() error = %v", err)
	}
	issuer, err := service.NewIssuer("", 0)
	if err != nil {
		tc.t.Fatalf("NewIssuer() error = %v", err)
	}
	handler, err := router.New(&router.Config{
		BasicUser: sandboxUser,
		BasicPass: sandboxPass,
		Documents: registry,
		Issuer:    issuer,
	})
	if err != nil {
		tc.t.Fatalf("router.New() error = %v", err)
	}
	srv := httptest.NewServer(handler)
	tc.t.Cleanup(srv.Close)

	cfg := fmt.Sprintf(`exchange:
  regionalBase: %[1]s/regional
  basicUser: %[2]s
  basicPass: %[3]s
  issuanceUrl: %[1]s/vhl/_generate
  resolveUrl: %[1]s/vhl/_resolve
  certificateUrl: %[1]s/icvpcert/_from-bundle
  timeout: 10s
`, srv.URL, sandboxUser, sandboxPass)
	return tc.writeFile("hlink.yaml", []byte(cfg))
}

// readFile returns the content of path.
func (tc *testContext) readFile(path string) string {
	tc.t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		tc.t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}
