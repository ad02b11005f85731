package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const landingPage = `<!DOCTYPE html>
<html><head>
  <TITLE>  Example Landing  </TITLE>
  <meta content="Welcome to the example host" NAME="Description">
  <meta name="keywords" content="example, test, host">
  <meta name="description" content="second description is ignored">
</head>
<body>
  <h1>Hello</h1>
  <script>var tracking = true;</script>
  <p>first   paragraph
     spans lines</p><p>second</p>
</body></html>`

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestFetcher_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/home", http.StatusFound)
	})
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, landingPage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(DefaultOptions())
	meta := f.Fetch(context.Background(), hostOf(srv), 2*time.Second)

	assert.Equal(t, uint16(200), meta.HTTPStatus)
	assert.Equal(t, srv.URL+"/home", meta.FinalURL)
	require.NotNil(t, meta.ContentType)
	assert.Equal(t, "text/html; charset=utf-8", *meta.ContentType)
	assert.Equal(t, uint64(len(landingPage)), meta.SizeBytes)

	require.NotNil(t, meta.Title)
	assert.Equal(t, "Example Landing", *meta.Title)
	require.NotNil(t, meta.Description)
	assert.Equal(t, "Welcome to the example host", *meta.Description)
	require.NotNil(t, meta.Keywords)
	assert.Equal(t, "example, test, host", *meta.Keywords)
	require.NotNil(t, meta.Snippet)
	assert.Equal(t, "Hello first paragraph spans lines second", *meta.Snippet)
}

func TestFetcher_NonSuccessKeepsTextNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<title>Not Found</title>")
	}))
	defer srv.Close()

	meta := NewFetcher(DefaultOptions()).Fetch(context.Background(), hostOf(srv), 2*time.Second)

	assert.Equal(t, uint16(404), meta.HTTPStatus)
	require.NotNil(t, meta.ContentType)
	assert.Equal(t, uint64(len("<title>Not Found</title>")), meta.SizeBytes)
	assert.Nil(t, meta.Title)
	assert.Nil(t, meta.Description)
	assert.Nil(t, meta.Keywords)
	assert.Nil(t, meta.Snippet)
}

func TestFetcher_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := hostOf(srv)
	srv.Close()

	meta := NewFetcher(DefaultOptions()).Fetch(context.Background(), host, time.Second)

	assert.Zero(t, meta.HTTPStatus)
	assert.Nil(t, meta.ContentType)
	assert.Zero(t, meta.SizeBytes)
	assert.Nil(t, meta.Title)
	assert.Equal(t, "http://"+host, meta.FinalURL)
}

func TestFetcher_RedirectCap(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		http.Redirect(w, r, fmt.Sprintf("/loop/%d", n), http.StatusFound)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.MaxRedirects = 3
	meta := NewFetcher(opts).Fetch(context.Background(), hostOf(srv), 2*time.Second)

	assert.Equal(t, uint16(http.StatusFound), meta.HTTPStatus)
	assert.Equal(t, int32(4), hits.Load())
	assert.Nil(t, meta.Title)
}

func TestFetcher_BodyCap(t *testing.T) {
	page := "<html><head><title>big</title></head><body>" + strings.Repeat("x", 4096) + "</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	opts := DefaultOptions()
	opts.MaxBodySize = 1024
	meta := NewFetcher(opts).Fetch(context.Background(), hostOf(srv), 2*time.Second)

	assert.Equal(t, uint64(1024), meta.SizeBytes)
	require.NotNil(t, meta.Title)
	assert.Equal(t, "big", *meta.Title)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", Snippet("  a\n\tb   c ", 500))
	assert.Equal(t, "", Snippet(" \n ", 500))

	long := strings.Repeat("é", 600)
	got := Snippet(long, SnippetLength)
	assert.Equal(t, SnippetLength, len([]rune(got)))
}
