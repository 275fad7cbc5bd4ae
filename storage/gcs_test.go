package storage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/imrenagi/go-drive-upload/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// fakeGCS answers the JSON API object listing of bucket "drive" and counts
// upload requests.
func fakeGCS(t *testing.T, uploads *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/upload/") {
			atomic.AddInt32(uploads, 1)
			http.Error(w, "unexpected upload", http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/b/drive/o") {
			assert.Equal(t, "files/", r.URL.Query().Get("prefix"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"kind": "storage#objects",
				"items": [
					{"name": "files/ai.js", "bucket": "drive", "size": "3802", "updated": "2021-09-06T21:13:52.092Z"},
					{"name": "files/nested/skip.txt", "bucket": "drive", "size": "1", "updated": "2021-09-06T21:13:52.092Z"},
					{"name": "files/jude.txt", "bucket": "drive", "size": "8", "updated": "2021-09-06T21:13:52.092Z", "owner": {"entity": "user-jude"}}
				]
			}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGCS(t *testing.T, srv *httptest.Server) *storage.GCS {
	t.Helper()
	g, err := storage.NewGCS(context.Background(), "drive", "files/", "someone_user",
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func TestGCS(t *testing.T) {
	t.Run("should list the objects directly under the prefix", func(t *testing.T) {
		var uploads int32
		g := newTestGCS(t, fakeGCS(t, &uploads))

		files, err := g.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []storage.FileStatus{
			{Size: "3.8 kB", LastModified: "2021-09-06T21:13:52.092Z", Owner: "someone_user", File: "ai.js"},
			{Size: "8 B", LastModified: "2021-09-06T21:13:52.092Z", Owner: "user-jude", File: "jude.txt"},
		}, files)
	})

	t.Run("a cancelled upload is never sent", func(t *testing.T) {
		var uploads int32
		g := newTestGCS(t, fakeGCS(t, &uploads))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		w, err := g.Create(ctx, "partial.bin")
		require.NoError(t, err)
		w.Write([]byte("partial"))

		assert.Error(t, w.Close())
		assert.Zero(t, atomic.LoadInt32(&uploads))
	})
}
