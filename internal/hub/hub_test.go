package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newHubServer serves a minimal hub API for one model with the given files.
func newHubServer(t *testing.T, id string, files map[string]string, wantToken string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/models/"+id, func(w http.ResponseWriter, r *http.Request) {
		if wantToken != "" && r.Header.Get("Authorization") != "Bearer "+wantToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"siblings":[`)
		first := true
		for name := range files {
			if !first {
				fmt.Fprint(w, ",")
			}
			first = false
			fmt.Fprintf(w, `{"rfilename":%q}`, name)
		}
		fmt.Fprint(w, `]}`)
	})

	mux.HandleFunc("/"+id+"/resolve/main/", func(w http.ResponseWriter, r *http.Request) {
		if wantToken != "" && r.Header.Get("Authorization") != "Bearer "+wantToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		name := r.URL.Path[len("/"+id+"/resolve/main/"):]
		content, ok := files[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, content)
	})

	return httptest.NewServer(mux)
}

func TestFetchSnapshot(t *testing.T) {
	files := map[string]string{
		"config.json":        `{"arch":"demo"}`,
		"weights/model.bin":  "binary-weights",
		"tokenizer/vocab.js": "vocab",
	}
	srv := newHubServer(t, "org/demo-model", files, "")
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL})
	dest := t.TempDir()

	require.NoError(t, f.FetchSnapshot(context.Background(), "org/demo-model", dest))

	for name, want := range files {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestFetchSnapshotForwardsToken(t *testing.T) {
	files := map[string]string{"config.json": "{}"}
	srv := newHubServer(t, "org/private", files, "secret-token")
	defer srv.Close()

	t.Run("with token", func(t *testing.T) {
		f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL, Token: "secret-token"})
		assert.NoError(t, f.FetchSnapshot(context.Background(), "org/private", t.TempDir()))
	})

	t.Run("without token", func(t *testing.T) {
		f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL})
		err := f.FetchSnapshot(context.Background(), "org/private", t.TempDir())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestFetchSnapshotNotFound(t *testing.T) {
	srv := newHubServer(t, "org/exists", map[string]string{"a": "x"}, "")
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL})
	err := f.FetchSnapshot(context.Background(), "org/absent", t.TempDir())
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestFetchSnapshotEmptyManifest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/org/empty", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"siblings":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL})
	err := f.FetchSnapshot(context.Background(), "org/empty", t.TempDir())
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestFetchSnapshotRejectsUnsafePaths(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/org/evil", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"siblings":[{"rfilename":"../../etc/passwd"}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL})
	err := f.FetchSnapshot(context.Background(), "org/evil", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsafe file path")
}

// An unsafe sibling must fail the snapshot before any file download starts.
// Otherwise an in-flight download could recreate the destination after the
// caller has discarded it, leaving stray files behind the failure.
func TestFetchSnapshotUnsafePathStartsNoDownloads(t *testing.T) {
	var fileRequests atomic.Int32
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/org/mixed", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"siblings":[{"rfilename":"blocked.bin"},{"rfilename":"../escape"}]}`)
	})
	mux.HandleFunc("/org/mixed/resolve/main/", func(w http.ResponseWriter, _ *http.Request) {
		fileRequests.Add(1)
		<-release
		fmt.Fprint(w, "late-bytes")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	f := NewHTTPFetcher(HTTPFetcherConfig{BaseURL: srv.URL})
	dest := filepath.Join(t.TempDir(), "staging")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	err := f.FetchSnapshot(context.Background(), "org/mixed", dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsafe file path")

	require.NoError(t, os.RemoveAll(dest))

	assert.Zero(t, fileRequests.Load(), "no download may start for a manifest with unsafe paths")
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "discarded destination must stay gone")
}
