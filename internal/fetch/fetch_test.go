package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<!doctype html>
<html><body>
<h1>Reports</h1>
<ul>
  <li><a href="/files/annual-2023.pdf">Annual 2023</a></li>
  <li><a href="files/Q1.PDF">Q1</a></li>
  <li><a href="/files/annual-2023.pdf#page=2">Annual again</a></li>
  <li><a href="/files/notes.docx">Notes</a></li>
  <li><a href="/other/elsewhere.pdf">Elsewhere</a></li>
  <li><a href="mailto:someone@example.org">Mail</a></li>
  <li><a href="#top">Top</a></li>
</ul>
</body></html>`

func newServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListDocuments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage)
	})
	srv := newServer(t, mux)

	f := New(Options{ListingURL: srv.URL + "/reports/"})
	refs, err := f.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, models.DocumentRef{Name: "annual-2023.pdf", URL: srv.URL + "/files/annual-2023.pdf"}, refs[0])
	assert.Equal(t, models.DocumentRef{Name: "Q1.PDF", URL: srv.URL + "/reports/files/Q1.PDF"}, refs[1])
	assert.Equal(t, "elsewhere.pdf", refs[2].Name)
}

func TestListDocuments_PrefixAndCap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingPage)
	})
	srv := newServer(t, mux)

	f := New(Options{ListingURL: srv.URL + "/", PathPrefix: "/files/"})
	refs, err := f.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2)

	f = New(Options{ListingURL: srv.URL + "/", MaxDocuments: 1})
	refs, err = f.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
}

func TestFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/c", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "%PDF-1.4 body")
	})
	srv := newServer(t, mux)

	body, err := New(Options{}).Fetch(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(body))
}

func TestFetch_RedirectLimit(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := newServer(t, mux)

	_, err := New(Options{MaxRedirects: 3}).Fetch(context.Background(), srv.URL+"/loop")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDownload)
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
}

func TestFetch_NonSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := newServer(t, mux)

	_, err := New(Options{}).Fetch(context.Background(), srv.URL+"/missing.pdf")
	var de *models.DownloadError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusNotFound, de.StatusCode)
	assert.Equal(t, srv.URL+"/missing.pdf", de.URL)
}

func TestDownload_Idempotent(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, "content")
	})
	srv := newServer(t, mux)
	dir := t.TempDir()
	f := New(Options{})
	ref := models.DocumentRef{Name: "doc.pdf", URL: srv.URL + "/doc.pdf"}

	p, downloaded, err := f.Download(context.Background(), ref, dir)
	require.NoError(t, err)
	assert.True(t, downloaded)
	assert.Equal(t, filepath.Join(dir, "doc.pdf"), p)

	_, downloaded, err = f.Download(context.Background(), ref, dir)
	require.NoError(t, err)
	assert.False(t, downloaded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDownload_FailureLeavesNoFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/broken.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := newServer(t, mux)
	dir := t.TempDir()

	_, _, err := New(Options{}).Download(context.Background(), models.DocumentRef{Name: "broken.pdf", URL: srv.URL + "/broken.pdf"}, dir)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownload_RejectsUnsafeName(t *testing.T) {
	_, _, err := New(Options{}).Download(context.Background(), models.DocumentRef{Name: "..", URL: "http://127.0.0.1/x"}, t.TempDir())
	assert.ErrorIs(t, err, models.ErrDownload)
}

func TestCollect_FallsBackToBackups(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>nothing here</body></html>")
	})
	mux.HandleFunc("/backup/one.pdf", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "one")
	})
	mux.HandleFunc("/backup/gone.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := newServer(t, mux)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manual.pdf"), []byte("manual"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("ignored"), 0644))

	f := New(Options{
		ListingURL:   srv.URL + "/empty",
		BackupURLs:   []string{srv.URL + "/backup/gone.pdf", srv.URL + "/backup/one.pdf"},
		IncludeLocal: true,
	})
	docs, err := f.Collect(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "one.pdf", docs[0].Name)
	assert.Equal(t, srv.URL+"/backup/one.pdf", docs[0].URL)
	assert.Equal(t, "manual.pdf", docs[1].Name)
	assert.Empty(t, docs[1].URL)
}

func TestCollect_ListingErrorUsesBackups(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/b.pdf", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "b")
	})
	srv := newServer(t, mux)

	f := New(Options{ListingURL: srv.URL + "/down", BackupURLs: []string{srv.URL + "/b.pdf"}})
	docs, err := f.Collect(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "b.pdf", docs[0].Name)
}

func TestCollect_LocalMode(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", ".hidden.pdf", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	docs, err := New(Options{Mode: ModeLocal}).Collect(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a.PDF", docs[0].Name)
	assert.Equal(t, "b.pdf", docs[1].Name)
}

func TestCollect_UnknownMode(t *testing.T) {
	_, err := New(Options{Mode: "ftp"}).Collect(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, models.ErrConfiguration)
}
