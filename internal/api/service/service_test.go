package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacpass/healthlink/internal/api/dto"
	"github.com/lacpass/healthlink/pkg/fhir"
	"github.com/lacpass/healthlink/pkg/hcert"
)

func TestU_Registry_Search(t *testing.T) {
	r := NewRegistry()
	raw, err := DemoSummaryBundle()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := r.AddBundle("RUN*1", DocumentMeta{Type: "Patient summary"}, raw)
		require.NoError(t, err)
	}
	r.AddBinary("RUN*2", DocumentMeta{}, Binary{ContentType: "application/pdf", Data: []byte("%PDF")})

	refs, total := r.Search("run*1", 3)
	assert.Len(t, refs, 3)
	assert.Equal(t, 5, total)

	refs, total = r.Search("RUN*2", 50)
	require.Len(t, refs, 1)
	assert.Equal(t, 1, total)
	att := refs[0].FirstAttachment()
	require.NotNil(t, att)
	assert.True(t, strings.HasPrefix(att.URL, "Binary/"))

	bin, err := r.Binary(strings.TrimPrefix(att.URL, "Binary/"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", bin.ContentType)
	assert.Equal(t, 6, r.Len())
}

func TestU_Registry_Errors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Bundle("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Binary("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.StoreBundle([]byte(`{"resourceType":"Patient"}`))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, fhir.ErrNotBundle)
}

func TestU_VHLService_RoundTrip(t *testing.T) {
	issuer, err := NewIssuer("", 0)
	require.NoError(t, err)
	r := NewRegistry()
	s := NewVHLService(r, issuer)
	raw, err := DemoSummaryBundle()
	require.NoError(t, err)

	issued, err := s.Issue(context.Background(), raw, "https://sandbox.example/")
	require.NoError(t, err)

	m, err := s.Resolve(context.Background(), &dto.ResolveRequest{QRCodeContent: issued.HC1}, "https://sandbox.example")
	require.NoError(t, err)
	require.Len(t, m.Files, 1)
	assert.True(t, strings.HasPrefix(m.Files[0].Location, "https://sandbox.example/regional/Bundle/"))

	_, err = s.Resolve(context.Background(), &dto.ResolveRequest{QRCodeContent: "nope"}, "")
	assert.ErrorIs(t, err, hcert.ErrValidation)
}

func TestU_VHLService_UnknownBundle(t *testing.T) {
	issuer, err := NewIssuer("", 0)
	require.NoError(t, err)
	raw, err := DemoSummaryBundle()
	require.NoError(t, err)

	issued, err := NewVHLService(NewRegistry(), issuer).Issue(context.Background(), raw, "http://a")
	require.NoError(t, err)

	_, err = NewVHLService(NewRegistry(), issuer).Resolve(context.Background(),
		&dto.ResolveRequest{QRCodeContent: issued.HC1}, "http://a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestU_ICVPService_RequiresID(t *testing.T) {
	issuer, err := NewIssuer("", 0)
	require.NoError(t, err)
	_, err = NewICVPService(issuer, nil).Generate(context.Background(), []byte(`{"resourceType":"Bundle"}`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestU_ICVPService_Record(t *testing.T) {
	issuer, err := NewIssuer("", 0)
	require.NoError(t, err)
	raw, err := DemoICVPBundle()
	require.NoError(t, err)

	resp, err := NewICVPService(issuer, nil).Generate(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	require.True(t, resp.Results[1].OK)

	b, err := fhir.ParseBundle(resp.Results[1].Data)
	require.NoError(t, err)
	var ref fhir.DocumentReference
	require.True(t, b.FirstResource("DocumentReference", &ref))
	require.Len(t, ref.Content, 2)
	assert.Equal(t, "image", ref.Content[0].Format.Code)
	assert.Equal(t, "hc1", ref.Content[1].Format.Code)
}
