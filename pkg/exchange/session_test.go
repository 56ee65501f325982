package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionServer blocks searches for identifiers ending in "slow" until the
// client goes away, fails those ending in "fail", and answers everything
// else with two documents.
func sessionServer(t *testing.T, started chan<- struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/regional/Bundle/") {
			writeFHIR(w, []byte(documentBundle))
			return
		}
		if strings.HasSuffix(r.URL.Query().Get("patient.identifier"), "slow") {
			started <- struct{}{}
			<-r.Context().Done()
			return
		}
		if strings.HasSuffix(r.URL.Query().Get("patient.identifier"), "fail") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeFHIR(w, bundleJSON(t, []any{
			docEntry("a", "2024-01-01", ""),
			docEntry("b", "2023-01-01", ""),
		}, false))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestF_Session_NewerSearchWins(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := sessionServer(t, started)
	s := NewSession(newTestClient(t, srv, nil))

	done := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "slow")
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first search never reached the server")
	}

	res, err := s.Search(context.Background(), "fast")
	require.NoError(t, err)
	assert.Equal(t, "fast", res.Identifier)
	assert.Len(t, res.Documents, 2)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStale)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded search did not return")
	}

	cur := s.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "fast", cur.Identifier)
}

func TestF_Session_FetchRequiresDiscovery(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := sessionServer(t, started)
	s := NewSession(newTestClient(t, srv, nil))

	doc := DocumentSummary{ID: "a", AttachmentURL: "Bundle/a", SourceBaseURL: srv.URL + "/regional"}
	_, err := s.Fetch(context.Background(), doc)
	assert.ErrorIs(t, err, ErrDiscoveryPending)

	res, err := s.Search(context.Background(), "12345678")
	require.NoError(t, err)

	got, err := s.Fetch(context.Background(), res.Documents[0])
	require.NoError(t, err)
	assert.Equal(t, "18", got.Bundle.ID)

	_, err = s.Fetch(context.Background(), DocumentSummary{ID: "unknown", AttachmentURL: "Bundle/x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestF_Session_FetchPendingWhileNewSearchRuns(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := sessionServer(t, started)
	s := NewSession(newTestClient(t, srv, nil))

	res, err := s.Search(context.Background(), "12345678")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Search(context.Background(), "slow")
		done <- err
	}()
	<-started

	_, err = s.Fetch(context.Background(), res.Documents[0])
	assert.ErrorIs(t, err, ErrDiscoveryPending)

	s.Cancel()
	assert.ErrorIs(t, <-done, ErrStale)

	_, err = s.Fetch(context.Background(), res.Documents[0])
	assert.NoError(t, err)
}

func TestF_Session_FetchAfterFailedSearch(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := sessionServer(t, started)
	s := NewSession(newTestClient(t, srv, nil))

	res, err := s.Search(context.Background(), "12345678")
	require.NoError(t, err)

	_, err = s.Search(context.Background(), "fail")
	require.ErrorIs(t, err, ErrDiscovery)
	assert.Nil(t, s.Current())

	_, err = s.Fetch(context.Background(), res.Documents[0])
	assert.ErrorIs(t, err, ErrDiscovery)
	assert.NotErrorIs(t, err, ErrDiscoveryPending)

	res, err = s.Search(context.Background(), "12345678")
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), res.Documents[0])
	assert.NoError(t, err)
}
