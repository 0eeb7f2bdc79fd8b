package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func noSnapshotServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"archived_snapshots":{}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchReturnsHTML(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><title>ok</title></html>")
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second, WaybackEndpoint: noSnapshotServer(t).URL}, zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "200", res.Status)
	assert.Contains(t, string(res.Body), "<title>ok</title>")
	assert.False(t, res.FromArchive)
}

func TestFetchNotFoundKeepsStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 5 * time.Second, WaybackEndpoint: noSnapshotServer(t).URL}, zap.NewNop())
	res, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "404", res.Status)
	assert.Nil(t, res.Body)
}

func TestFetchUnreachableIsStatusNone(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := dead.URL
	dead.Close()

	f := New(Config{Timeout: 2 * time.Second, WaybackEndpoint: noSnapshotServer(t).URL}, zap.NewNop())
	res, err := f.Fetch(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, StatusNone, res.Status)
	assert.Nil(t, res.Body)
}

func TestFetchFallsBackToArchiveForNonHTML(t *testing.T) {
	t.Parallel()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4")
	}))
	t.Cleanup(origin.Close)

	snapshot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>archived copy</html>")
	}))
	t.Cleanup(snapshot.Close)

	wayback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, origin.URL, r.URL.Query().Get("url"))
		fmt.Fprintf(w, `{"archived_snapshots":{"closest":{"available":true,"url":%q}}}`, snapshot.URL)
	}))
	t.Cleanup(wayback.Close)

	f := New(Config{Timeout: 5 * time.Second, WaybackEndpoint: wayback.URL}, zap.NewNop())
	res, err := f.Fetch(context.Background(), origin.URL)
	require.NoError(t, err)
	assert.Equal(t, "200", res.Status)
	assert.Contains(t, string(res.Body), "archived copy")
	assert.True(t, res.FromArchive)
	assert.Equal(t, origin.URL, res.FinalURL)
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	f := New(Config{Timeout: 30 * time.Second, WaybackEndpoint: noSnapshotServer(t).URL}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := f.Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
