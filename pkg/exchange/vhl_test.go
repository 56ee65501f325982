package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacpass/healthlink/pkg/fhir"
)

const summaryDocument = `{"resourceType":"Bundle","id":"18","type":"document",
  "meta":{"profile":["http://lacpass.racsel.org/StructureDefinition/lac-bundle"]},"entry":[]}`

func TestF_Issue(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"json field", MediaJSON, `{"hc1":"  HC1:NCFOXN%TS3DH0 "}`, "HC1:NCFOXN%TS3DH0"},
		{"plain text", "text/plain", "HC1:ABC\n", "HC1:ABC"},
		{"json string", MediaJSON, `"HC1:XYZ "`, "HC1:XYZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotBody []byte
			var gotContentType, gotAccept string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/vhl/_generate", r.URL.Path)
				gotBody, _ = io.ReadAll(r.Body)
				gotContentType = r.Header.Get("Content-Type")
				gotAccept = r.Header.Get("Accept")
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()
			c := newTestClient(t, srv, nil)

			b, err := fhir.ParseBundle([]byte(summaryDocument))
			require.NoError(t, err)
			got, err := c.Issue(context.Background(), b)
			require.NoError(t, err)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, summaryDocument, string(gotBody), "bundle must be posted untouched")
			assert.Equal(t, MediaJSON, gotContentType)
			assert.Equal(t, MediaJSON, gotAccept)
		})
	}
}

func TestF_Issue_NoCredential(t *testing.T) {
	for _, body := range []string{`{}`, `{"hc1":"   "}`, ``, `""`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}))
		c := newTestClient(t, srv, nil)

		b, err := fhir.ParseBundle([]byte(summaryDocument))
		require.NoError(t, err)
		_, err = c.Issue(context.Background(), b)
		assert.ErrorIs(t, err, ErrIssuance, "body %q", body)
		srv.Close()
	}
}

func TestF_Issue_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	_, err := c.Issue(context.Background(), &fhir.Bundle{ResourceType: "Bundle", ID: "1"})
	assert.ErrorIs(t, err, ErrIssuance)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
}

func TestF_Resolve(t *testing.T) {
	var got resolveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vhl/_resolve", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", MediaJSON)
		_, _ = io.WriteString(w, `{"files":[
			{"location":"https://exchange.example/regional/Bundle/18","contentType":"application/fhir+json"},
			{"location":"Bundle/19"},
			{"location":""}
		]}`)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	m, err := c.Resolve(context.Background(), "  HC1:NCF%RN%TS3DH0RGPJB/IB-OM7533SR7694RI3XH82Q5$IU$6YQCN%IIDG")
	require.NoError(t, err)

	assert.Equal(t, "HC1:NCF%RN%TS3DH0RGPJB/IB-OM7533SR7694RI3XH82Q5$IU$6YQCN%IIDG", got.QRCodeContent)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "https://exchange.example/regional/Bundle/18", m.Files[0].Location)
	assert.Equal(t, MediaFHIRJSON, m.Files[1].ContentType)
}

func TestF_Resolve_RejectsMissingPrefixWithoutRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()
	c := newTestClient(t, srv, nil)

	for _, in := range []string{"", "ABC", "shlink:/xyz", "HC2:ABC"} {
		_, err := c.Resolve(context.Background(), in)
		assert.ErrorIs(t, err, ErrValidation, in)
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestF_Resolve_EmptyManifest(t *testing.T) {
	for _, body := range []string{`{"files":[]}`, `{}`, `{"files":"nope"}`, `not json`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, body)
		}))
		c := newTestClient(t, srv, nil)

		_, err := c.Resolve(context.Background(), "HC1:ABC")
		assert.ErrorIs(t, err, ErrResolution, body)
		srv.Close()
	}
}
