package main

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/lacpass/healthlink/pkg/claimtree"
	"github.com/lacpass/healthlink/pkg/cose"
	"github.com/lacpass/healthlink/pkg/hcert"
)

// QR rendering defaults.
const (
	qrSize  = 512
	qrLevel = qrcode.Medium
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file|-]",
	Short: "Decode an HC1 credential",
	Long: `Decode an HC1 credential and print its envelope, CWT claims and health
certificate. Signatures are not verified.

The credential is read from the file argument, --text, or stdin.

Examples:
  hlink decode credential.txt
  echo 'HC1:6BF...' | hlink decode
  hlink decode --text 'HC1:6BF...' --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Sign claims into an HC1 credential",
	Long: `Sign a health certificate record into an HC1 credential.

The record (JSON) is placed in claim -260 under --entry: 1 for an EU DCC
payload, -6 for an ICVP record. Without --key an ephemeral P-256 key is used.

Examples:
  hlink encode --record icvp.json --issuer CL --expires 8760h
  hlink encode --record dcc.json --entry 1 --key signer.pem --qr dcc.png`,
	Args: cobra.NoArgs,
	RunE: runEncode,
}

var (
	decodeText string

	encodeRecord  string
	encodeEntry   int64
	encodeIssuer  string
	encodeExpires time.Duration
	encodeKeyFile string
	encodeCTI     string
	encodeQR      string
)

func init() {
	decodeCmd.Flags().StringVar(&decodeText, "text", "", "Credential text (instead of a file)")

	f := encodeCmd.Flags()
	f.StringVar(&encodeRecord, "record", "", "JSON file holding the certificate record (required)")
	f.Int64Var(&encodeEntry, "entry", cose.HCertICVP, "Claim -260 entry: 1 (DCC) or -6 (ICVP)")
	f.StringVar(&encodeIssuer, "issuer", "", "Issuer (iss claim)")
	f.DurationVar(&encodeExpires, "expires", 365*24*time.Hour, "Validity from now")
	f.StringVar(&encodeKeyFile, "key", "", "PEM EC or RSA private key (default: ephemeral P-256)")
	f.StringVar(&encodeCTI, "cti", "", "CWT ID")
	f.StringVar(&encodeQR, "qr", "", "Also write the credential as a PNG QR code")
	_ = encodeCmd.MarkFlagRequired("record")
}

func runDecode(cmd *cobra.Command, args []string) error {
	text := decodeText
	if text == "" {
		var path string
		if len(args) == 1 {
			path = args[0]
		}
		data, err := readInput(cmd, path)
		if err != nil {
			return err
		}
		text = string(data)
	}

	cred, err := hcert.Decode(text)
	if err != nil {
		return err
	}
	info := hcert.GetInfo(cred)
	if jsonOutput {
		return printJSON(cmd, info)
	}
	info.Print(cmd.OutOrStdout())
	return nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	if encodeEntry != cose.HCertDCC && encodeEntry != cose.HCertICVP {
		return fmt.Errorf("--entry must be %d or %d", cose.HCertDCC, cose.HCertICVP)
	}
	data, err := os.ReadFile(encodeRecord)
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}
	record, err := recordFromJSON(data)
	if err != nil {
		return err
	}

	signer, err := loadSigner(encodeKeyFile)
	if err != nil {
		return err
	}

	claims := cose.NewClaims()
	claims.Issuer = encodeIssuer
	claims.SetExpiration(encodeExpires)
	if encodeCTI != "" {
		claims.CWTID = []byte(encodeCTI)
	}
	hc := claimtree.NewMap(claimtree.Entry{Key: claimtree.NewInt(encodeEntry), Value: record})
	if err := claims.SetCustom(cose.ClaimHCert, hc); err != nil {
		return err
	}

	text, err := hcert.Encode(cmd.Context(), claims, &cose.MessageConfig{Signer: signer})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)

	if encodeQR != "" {
		if err := qrcode.WriteFile(text, qrLevel, qrSize, encodeQR); err != nil {
			return fmt.Errorf("failed to write QR code: %w", err)
		}
		logger.Info("wrote QR code", "path", encodeQR)
	}
	return nil
}

// recordFromJSON converts a JSON document into a claim tree. Integral
// numbers become CBOR integers.
func recordFromJSON(data []byte) (*claimtree.Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid record JSON: %w", err)
	}
	return claimtree.FromValue(plainJSON(v))
}

func plainJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = plainJSON(x[i])
		}
	case map[string]any:
		for k := range x {
			x[k] = plainJSON(x[k])
		}
	}
	return v
}

// loadSigner reads a PEM private key, or generates an ephemeral P-256 key
// when path is empty.
func loadSigner(path string) (crypto.Signer, error) {
	if path == "" {
		logger.Warn("signing with an ephemeral key; the credential cannot be verified")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	var key any
	switch {
	case strings.Contains(block.Type, "EC PRIVATE KEY"):
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case strings.Contains(block.Type, "RSA PRIVATE KEY"):
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("key of type %T cannot sign", key)
	}
	return signer, nil
}
