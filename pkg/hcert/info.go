package hcert

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lacpass/healthlink/pkg/claimtree"
	"github.com/lacpass/healthlink/pkg/cose"
)

// Info contains display information about a decoded credential.
type Info struct {
	Algorithm   string        `json:"algorithm,omitempty"`
	KeyID       string        `json:"kid,omitempty"`
	ContentType string        `json:"contentType,omitempty"`
	PayloadSize int           `json:"payloadSize"`
	Claims      ClaimsDisplay `json:"claims"`
	Certificate any           `json:"certificate,omitempty"`
	CertKey     int64         `json:"certificateKey,omitempty"`
	Records     []RecordInfo  `json:"icvpRecords,omitempty"`

	certText string
}

// ClaimsDisplay contains formatted CWT claims.
type ClaimsDisplay struct {
	Issuer     string   `json:"iss,omitempty"`
	Subject    string   `json:"sub,omitempty"`
	Expiration string   `json:"exp,omitempty"`
	NotBefore  string   `json:"nbf,omitempty"`
	IssuedAt   string   `json:"iat,omitempty"`
	CWTID      string   `json:"cti,omitempty"`
	Custom     []string `json:"custom,omitempty"`
	IsExpired  bool     `json:"expired"`
}

// RecordInfo is one ICVP-shaped record.
type RecordInfo struct {
	Path string   `json:"path"`
	Keys []string `json:"keys"`
	Data any      `json:"data"`
}

// GetInfo summarizes c for display.
func GetInfo(c *Credential) *Info {
	info := &Info{PayloadSize: len(c.Envelope.Payload)}

	if alg, ok := c.Envelope.Algorithm(); ok {
		info.Algorithm = cose.AlgorithmName(alg)
	}
	if kid := c.Envelope.KeyID(); len(kid) > 0 {
		info.KeyID = hex.EncodeToString(kid)
	}
	info.ContentType = c.Envelope.ContentType()

	cl := c.Claims
	info.Claims = ClaimsDisplay{
		Issuer:    cl.Issuer,
		Subject:   cl.Subject,
		IsExpired: cl.IsExpired(),
	}
	if !cl.Expiration.IsZero() {
		info.Claims.Expiration = cl.Expiration.Format(time.RFC3339)
	}
	if !cl.NotBefore.IsZero() {
		info.Claims.NotBefore = cl.NotBefore.Format(time.RFC3339)
	}
	if !cl.IssuedAt.IsZero() {
		info.Claims.IssuedAt = cl.IssuedAt.Format(time.RFC3339)
	}
	if len(cl.CWTID) > 0 {
		info.Claims.CWTID = hex.EncodeToString(cl.CWTID)
	}
	for k := range cl.Custom {
		info.Claims.Custom = append(info.Claims.Custom, strconv.FormatInt(k, 10))
	}
	sort.Strings(info.Claims.Custom)

	if cert, key := c.Certificate(); cert != nil {
		info.Certificate = cert.Interface()
		info.CertKey = key
		info.certText = claimtree.Format(cert)
	}
	for _, m := range c.ICVPRecords() {
		info.Records = append(info.Records, RecordInfo{Path: m.Path, Keys: m.Keys, Data: m.Node.Interface()})
	}
	return info
}

// String returns the formatted info.
func (info *Info) String() string {
	var sb strings.Builder
	info.Print(&sb)
	return sb.String()
}

// Print writes the info as text.
//
//nolint:errcheck // fmt.Fprintf errors are ignored for output formatting
func (info *Info) Print(w io.Writer) {
	fmt.Fprintf(w, "HC1 Credential\n")
	fmt.Fprintf(w, "==============\n\n")

	if info.Algorithm != "" {
		fmt.Fprintf(w, "Algorithm:    %s\n", info.Algorithm)
	}
	if info.KeyID != "" {
		fmt.Fprintf(w, "Key ID:       %s\n", info.KeyID)
	}
	if info.ContentType != "" {
		fmt.Fprintf(w, "Content-Type: %s\n", info.ContentType)
	}
	fmt.Fprintf(w, "Payload Size: %d bytes\n", info.PayloadSize)

	fmt.Fprintf(w, "\nCWT Claims:\n")
	if info.Claims.Issuer != "" {
		fmt.Fprintf(w, "  Issuer (iss):     %s\n", info.Claims.Issuer)
	}
	if info.Claims.Subject != "" {
		fmt.Fprintf(w, "  Subject (sub):    %s\n", info.Claims.Subject)
	}
	if info.Claims.Expiration != "" {
		status := ""
		if info.Claims.IsExpired {
			status = " [EXPIRED]"
		}
		fmt.Fprintf(w, "  Expiration (exp): %s%s\n", info.Claims.Expiration, status)
	}
	if info.Claims.NotBefore != "" {
		fmt.Fprintf(w, "  Not Before (nbf): %s\n", info.Claims.NotBefore)
	}
	if info.Claims.IssuedAt != "" {
		fmt.Fprintf(w, "  Issued At (iat):  %s\n", info.Claims.IssuedAt)
	}
	if info.Claims.CWTID != "" {
		fmt.Fprintf(w, "  CWT ID (cti):     %s\n", info.Claims.CWTID)
	}
	if len(info.Claims.Custom) > 0 {
		fmt.Fprintf(w, "  Other claims:     %s\n", strings.Join(info.Claims.Custom, ", "))
	}

	if info.certText != "" {
		fmt.Fprintf(w, "\nClaim -260/%d:\n", info.CertKey)
		fmt.Fprintf(w, "%s\n", indent(info.certText, "  "))
	} else {
		fmt.Fprintf(w, "\nNo claim -260 present\n")
	}

	fmt.Fprintf(w, "\nICVP records (%d):\n", len(info.Records))
	for _, r := range info.Records {
		fmt.Fprintf(w, "  %s  keys: %s\n", r.Path, strings.Join(r.Keys, ", "))
	}
}

func indent(s, pad string) string {
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}
