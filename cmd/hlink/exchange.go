package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/lacpass/healthlink/pkg/exchange"
	"github.com/lacpass/healthlink/pkg/fhir"
)

var searchCmd = &cobra.Command{
	Use:   "search <identifier>",
	Short: "Discover the documents of a patient",
	Long: `Search the regional exchange for the DocumentReferences of a patient and
list them newest first.

The identifier is normalized per exchange.identifier (config) before the
search; a bare national ID may be sent with or without its type prefix.

Examples:
  hlink search 12345678
  hlink search 'RUN*12345678' --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [identifier]",
	Short: "Retrieve a document",
	Long: `Retrieve one document of a patient. The document is picked from a fresh
search by --index (1-based, newest first) or --id, or addressed directly
with --ref relative to the regional base.

FHIR bundles are written as indented JSON; binary content (such as a PDF)
is written as is.

Examples:
  hlink fetch 12345678 --index 1
  hlink fetch 12345678 --id 42 -o summary.json
  hlink fetch --ref Binary/7 --content-type application/pdf -o report.pdf`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFetch,
}

var issueCmd = &cobra.Command{
	Use:   "issue [file|-]",
	Short: "Issue a VHL for a patient summary",
	Long: `Post a patient summary bundle to the issuance endpoint and print the
HC1 credential (VHL) it answers with.

Examples:
  hlink issue summary.json
  hlink issue summary.json --qr vhl.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIssue,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [text]",
	Short: "Resolve a VHL to its documents",
	Long: `Resolve a scanned or pasted VHL into the manifest of files it shares.
With --fetch every file is retrieved as well.

The credential is read from the argument, or stdin.

Examples:
  hlink resolve 'HC1:6BF...'
  hlink scan | hlink resolve --fetch -o shared/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResolve,
}

var certificatesCmd = &cobra.Command{
	Use:   "certificates [file|-]",
	Short: "Generate vaccination certificates from an ICVP bundle",
	Long: `Post an ICVP bundle to the certificate endpoint and report one result
per immunization. With -o, each certificate is written as <id>.png (QR) and
<id>.hc1 (credential text).

Examples:
  hlink certificates icvp.json
  hlink certificates icvp.json -o certs/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCertificates,
}

var (
	fetchIndex       int
	fetchID          string
	fetchRef         string
	fetchContentType string
	fetchOut         string

	issueQR string

	resolveFetch bool
	resolveOut   string

	certificatesOut string
)

func init() {
	f := fetchCmd.Flags()
	f.IntVar(&fetchIndex, "index", 0, "Document position in the search listing (1-based)")
	f.StringVar(&fetchID, "id", "", "DocumentReference id")
	f.StringVar(&fetchRef, "ref", "", "Reference relative to the regional base, e.g. Bundle/18")
	f.StringVar(&fetchContentType, "content-type", "", "Declared content type for --ref")
	f.StringVarP(&fetchOut, "out", "o", "", "Output file (default: stdout)")

	issueCmd.Flags().StringVar(&issueQR, "qr", "", "Also write the VHL as a PNG QR code")

	resolveCmd.Flags().BoolVar(&resolveFetch, "fetch", false, "Retrieve the files of the manifest")
	resolveCmd.Flags().StringVarP(&resolveOut, "out", "o", "", "Directory for fetched files (default: stdout)")

	certificatesCmd.Flags().StringVarP(&certificatesOut, "out", "o", "", "Directory for certificate files")
}

func runSearch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	docs, err := client.Search(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents found.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tDATE\tTYPE\tCONTENT")
	for i, d := range docs {
		date := d.Date
		if t, ok := d.Time(); ok {
			date = t.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, d.ID, orDash(date), orDash(d.TypeLabel), orDash(d.AttachmentContentType))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runFetch(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var doc *exchange.Document
	switch {
	case fetchRef != "":
		doc, err = client.FetchReference(cmd.Context(), fetchRef, fetchContentType)
	case len(args) == 1:
		doc, err = fetchListed(cmd, client, args[0])
	default:
		return fmt.Errorf("an identifier or --ref is required")
	}
	if err != nil {
		return err
	}

	if doc.IsBinary() {
		logger.Info("retrieved binary document", "url", doc.URL, "content_type", doc.Binary.ContentType)
		return writeOutput(cmd, fetchOut, doc.Binary.Data)
	}
	raw, err := doc.Bundle.Raw()
	if err != nil {
		return err
	}
	logger.Info("retrieved bundle", "url", doc.URL, "workflow", fhir.Classify(doc.Bundle).Workflow())
	return writeOutput(cmd, fetchOut, indentJSON(raw))
}

// fetchListed searches identifier and retrieves the document chosen by
// --index or --id.
func fetchListed(cmd *cobra.Command, client *exchange.Client, identifier string) (*exchange.Document, error) {
	if (fetchIndex > 0) == (fetchID != "") {
		return nil, fmt.Errorf("exactly one of --index and --id is required")
	}
	session := exchange.NewSession(client)
	res, err := session.Search(cmd.Context(), identifier)
	if err != nil {
		return nil, err
	}

	var picked *exchange.DocumentSummary
	if fetchIndex > 0 {
		if fetchIndex > len(res.Documents) {
			return nil, fmt.Errorf("--index %d out of range: %d documents found", fetchIndex, len(res.Documents))
		}
		picked = &res.Documents[fetchIndex-1]
	} else {
		for i := range res.Documents {
			if res.Documents[i].ID == fetchID {
				picked = &res.Documents[i]
				break
			}
		}
		if picked == nil {
			return nil, fmt.Errorf("no document with id %q", fetchID)
		}
	}
	return session.Fetch(cmd.Context(), *picked)
}

func runIssue(cmd *cobra.Command, args []string) error {
	b, err := readBundle(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}
	if wf := fhir.Classify(b).Workflow(); wf != fhir.WorkflowSummary {
		logger.Warn("bundle is not a patient summary", "workflow", wf)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	text, err := client.Issue(cmd.Context(), b)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)

	if issueQR != "" {
		if err := qrcode.WriteFile(text, qrLevel, qrSize, issueQR); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}
		logger.Info("wrote QR code", "path", issueQR)
	}
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 1 {
		text = args[0]
	} else {
		data, err := readInput(cmd, "")
		if err != nil {
			return err
		}
		text = string(data)
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	m, err := client.Resolve(cmd.Context(), text)
	if err != nil {
		return err
	}

	if !resolveFetch {
		if jsonOutput {
			return printJSON(cmd, m)
		}
		for _, f := range m.Files {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", f.Location, orDash(f.ContentType))
		}
		return nil
	}

	bundles, err := client.FetchManifest(cmd.Context(), m)
	if err != nil {
		return err
	}
	for i, b := range bundles {
		raw, err := b.Raw()
		if err != nil {
			return err
		}
		path := ""
		if resolveOut != "" {
			path = filepath.Join(resolveOut, bundleFileName(b, i))
		}
		if err := writeOutput(cmd, path, indentJSON(raw)); err != nil {
			return err
		}
	}
	return nil
}

func bundleFileName(b *fhir.Bundle, i int) string {
	if b.ID != "" {
		return safeName(b.ID) + ".json"
	}
	return fmt.Sprintf("bundle-%d.json", i+1)
}

// safeName keeps a server-chosen id from escaping the output directory.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
}

func runCertificates(cmd *cobra.Command, args []string) error {
	b, err := readBundle(cmd, argOrEmpty(args))
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	results, err := client.GenerateCertificates(cmd.Context(), b)
	if err != nil {
		return err
	}

	if certificatesOut != "" {
		if err := os.MkdirAll(certificatesOut, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		for _, r := range results {
			if err := writeCertificate(certificatesOut, r); err != nil {
				return err
			}
		}
	}

	if jsonOutput {
		return printJSON(cmd, results)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "IMMUNIZATION\tOK\tSTATUS\tQR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%t\t%d\t%t\n", r.SubjectRecordID, r.OK, r.StatusCode, len(r.QRImage) > 0)
	}
	return tw.Flush()
}

func writeCertificate(dir string, r exchange.CertificateResult) error {
	if !r.OK {
		return nil
	}
	base := filepath.Join(dir, safeName(r.SubjectRecordID))
	if len(r.QRImage) > 0 {
		if err := os.WriteFile(base+".png", r.QRImage, 0o644); err != nil {
			return fmt.Errorf("failed to write QR image: %w", err)
		}
	}
	if r.CredentialText != "" {
		if err := os.WriteFile(base+".hc1", []byte(r.CredentialText+"\n"), 0o644); err != nil {
			return fmt.Errorf("failed to write credential: %w", err)
		}
	}
	return nil
}
