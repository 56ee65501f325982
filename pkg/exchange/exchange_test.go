package exchange

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser = "mediator"
	testPass = "secret"
)

// newTestClient returns a client whose regional base lives under srv.
func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config), opts ...Option) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RegionalBase = srv.URL + "/regional"
	cfg.BasicUser = testUser
	cfg.BasicPass = testPass
	cfg.IssuanceURL = srv.URL + "/vhl/_generate"
	cfg.ResolveURL = srv.URL + "/vhl/_resolve"
	cfg.CertificateURL = srv.URL + "/icvpcert/_from-bundle"
	cfg.RequestTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

// docEntry builds a searchset entry holding a DocumentReference.
func docEntry(id, date, fullURL string) map[string]any {
	res := map[string]any{
		"resourceType": "DocumentReference",
		"id":           id,
		"status":       "current",
		"type":         map[string]any{"coding": []any{map[string]any{"code": "60591-5", "display": "Patient summary"}}},
		"content": []any{map[string]any{"attachment": map[string]any{
			"contentType": MediaFHIRJSON,
			"url":         "Bundle/" + id,
		}}},
	}
	if date != "" {
		res["date"] = date
	}
	e := map[string]any{"resource": res}
	if fullURL != "" {
		e["fullUrl"] = fullURL
	}
	return e
}

// searchset renders a searchset with n dated entries.
func searchset(t *testing.T, n int, next bool) []byte {
	t.Helper()
	entries := make([]any, 0, n)
	for i := 0; i < n; i++ {
		date := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02")
		entries = append(entries, docEntry(fmt.Sprintf("doc-%d", i), date, ""))
	}
	return bundleJSON(t, entries, next)
}

func bundleJSON(t *testing.T, entries []any, next bool) []byte {
	t.Helper()
	links := []any{map[string]any{"relation": "self", "url": "http://fhir/DocumentReference"}}
	if next {
		links = append(links, map[string]any{"relation": "next", "url": "http://fhir/DocumentReference?page=2"})
	}
	data, err := json.Marshal(map[string]any{
		"resourceType": "Bundle",
		"type":         "searchset",
		"link":         links,
		"entry":        entries,
	})
	require.NoError(t, err)
	return data
}

func writeFHIR(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", MediaFHIRJSON)
	_, _ = w.Write(data)
}

type observation struct {
	op, outcome string
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recordingObserver) ObserveRequest(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{op, outcome})
}

func TestU_Config_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults with base", func(c *Config) {}, true},
		{"missing base", func(c *Config) { c.RegionalBase = "" }, false},
		{"relative base", func(c *Config) { c.RegionalBase = "/regional" }, false},
		{"bad issuance url", func(c *Config) { c.IssuanceURL = "ftp://x/y" }, false},
		{"zero step", func(c *Config) { c.Discovery.Step = 0 }, false},
		{"max below step", func(c *Config) { c.Discovery.MaxCount = 10 }, false},
		{"zero stalls", func(c *Config) { c.Discovery.MaxStalls = 0 }, false},
		{"unknown mode", func(c *Config) { c.Identifier.Mode = "upper" }, false},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RegionalBase = "https://exchange.example/regional"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfig)
			}
		})
	}
}

func TestU_DefaultConfig_DiscoveryBound(t *testing.T) {
	assert.Equal(t, 40, DefaultConfig().Discovery.Requests())
}

func TestU_IdentifierPolicy_Normalize(t *testing.T) {
	ensure := DefaultIdentifierPolicy()
	strip := IdentifierPolicy{Mode: IdentifierStrip, Prefix: "RUN*"}
	none := IdentifierPolicy{Mode: IdentifierNone, Prefix: "RUN*"}

	tests := []struct {
		name   string
		policy IdentifierPolicy
		in     string
		want   string
	}{
		{"ensure adds", ensure, "12345678", "RUN*12345678"},
		{"ensure keeps", ensure, "RUN*12345678", "RUN*12345678"},
		{"ensure keeps lower case", ensure, "run*12345678", "run*12345678"},
		{"ensure trims", ensure, "  12345678 ", "RUN*12345678"},
		{"strip removes", strip, "RUN*12345678", "12345678"},
		{"strip removes any case", strip, "Run*12345678", "12345678"},
		{"strip keeps bare", strip, "12345678", "12345678"},
		{"none", none, "12345678", "12345678"},
		{"none with prefix", none, "RUN*1", "RUN*1"},
		{"empty prefix", IdentifierPolicy{Mode: IdentifierEnsure}, "1", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.policy.Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := tt.policy.Normalize(got)
			require.NoError(t, err)
			assert.Equal(t, got, again, "normalization must be idempotent")
		})
	}
}

func TestU_IdentifierPolicy_Empty(t *testing.T) {
	for _, in := range []string{"", "   "} {
		_, err := DefaultIdentifierPolicy().Normalize(in)
		assert.ErrorIs(t, err, ErrValidation)
	}
	_, err := IdentifierPolicy{Mode: IdentifierStrip, Prefix: "RUN*"}.Normalize("RUN*")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestU_ResolveURL(t *testing.T) {
	const base = "https://exchange.example:5000/regional"
	tests := []struct {
		base, ref, want string
	}{
		{base, "Bundle/18", "https://exchange.example:5000/regional/Bundle/18"},
		{base + "/", "Bundle/18", "https://exchange.example:5000/regional/Bundle/18"},
		{base, "/other/Bundle/18", "https://exchange.example:5000/other/Bundle/18"},
		{base, "//cdn.example/doc.pdf", "https://cdn.example/doc.pdf"},
		{base, "http://elsewhere/Bundle/1", "http://elsewhere/Bundle/1"},
		{base, "Binary/7?format=pdf", "https://exchange.example:5000/regional/Binary/7?format=pdf"},
	}
	for _, tt := range tests {
		got, err := ResolveURL(tt.base, tt.ref)
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}

	_, err := ResolveURL(base, "")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ResolveURL("not-a-base", "Bundle/1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestU_JoinURL(t *testing.T) {
	assert.Equal(t, "http://h/a/b", JoinURL("http://h/a/", "/b"))
	assert.Equal(t, "http://h/a/b", JoinURL("http://h/a", "b"))
	assert.Equal(t, "http://h/a/b", JoinURL("http://h/a//", "//b"))
}

func TestU_BaseFromFullURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://other.example/fhir/DocumentReference/a", "http://other.example/fhir", true},
		{"https://h:8443/DocumentReference/a", "https://h:8443", true},
		{"urn:uuid:8d6b0a8e", "", false},
		{"", "", false},
		{"http://h/only", "", false},
	}
	for _, tt := range tests {
		got, ok := baseFromFullURL(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestU_IsJSONMediaType(t *testing.T) {
	for ct, want := range map[string]bool{
		"":                                true,
		"application/fhir+json":           true,
		"application/json; charset=utf-8": true,
		"APPLICATION/JSON":                true,
		"application/pdf":                 false,
		"image/png":                       false,
		"text/plain":                      false,
	} {
		assert.Equal(t, want, IsJSONMediaType(ct), ct)
	}
}

func TestU_Error_Is(t *testing.T) {
	err := error(&Error{Op: OpRetrieve, URL: "u", StatusCode: 404, StatusText: "Not Found"})
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.NotErrorIs(t, err, ErrDiscovery)
	assert.Equal(t, 404, StatusCode(err))
	assert.Contains(t, err.Error(), "HTTP 404 Not Found")

	wrapped := fmt.Errorf("loading: %w", &Error{Op: OpSearch, Err: fmt.Errorf("%w: dial", ErrUnreachable)})
	assert.ErrorIs(t, wrapped, ErrDiscovery)
	assert.True(t, IsUnreachable(wrapped))
	assert.Equal(t, 0, StatusCode(wrapped))
}
