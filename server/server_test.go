package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	v1 "github.com/imrenagi/go-drive-upload/api/v1"
	"github.com/imrenagi/go-drive-upload/config"
	"github.com/imrenagi/go-drive-upload/notify"
	"github.com/imrenagi/go-drive-upload/storage"
	"github.com/imrenagi/go-drive-upload/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	disk, err := storage.NewDisk(dir, "someone_user")
	require.NoError(t, err)

	hub := notify.NewHub()
	ctrl := v1.NewController(upload.NewCoordinator(disk, notify.NewFanout(hub)), disk)
	srv := httptest.NewServer(newHTTPHandler(config.ServerConfig{AllowedOrigins: []string{"*"}}, ctrl, hub))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, dir
}

func TestHTTPHandler(t *testing.T) {
	t.Run("healthz", func(t *testing.T) {
		srv, _ := newTestServer(t)
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"status":"ok"}`, string(body))
		assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	})

	t.Run("the request id sent by the client is echoed", func(t *testing.T) {
		srv, _ := newTestServer(t)
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
		req.Header.Set(RequestIDHeader, "abc")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, "abc", resp.Header.Get(RequestIDHeader))
	})

	t.Run("cross origin requests are allowed", func(t *testing.T) {
		srv, _ := newTestServer(t)
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("responses are shared even without an Origin header", func(t *testing.T) {
		srv, _ := newTestServer(t)
		resp, err := http.Get(srv.URL + "/")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("restricted origins are not widened", func(t *testing.T) {
		disk, err := storage.NewDisk(t.TempDir(), "someone_user")
		require.NoError(t, err)
		hub := notify.NewHub()
		ctrl := v1.NewController(upload.NewCoordinator(disk, hub), disk)
		h := newHTTPHandler(config.ServerConfig{AllowedOrigins: []string{"http://drive.local"}}, ctrl, hub)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

		w = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://drive.local")
		h.ServeHTTP(w, req)
		assert.Equal(t, "http://drive.local", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight is answered with no content", func(t *testing.T) {
		srv, _ := newTestServer(t)
		req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("the upload page is served", func(t *testing.T) {
		srv, _ := newTestServer(t)
		resp, err := http.Get(srv.URL + "/app")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		srv, _ := newTestServer(t)
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

type socketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func TestUploadWithProgress(t *testing.T) {
	srv, dir := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/socket", nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg socketMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, notify.ConnectedEvent, msg.Event)
	var connected notify.Connected
	require.NoError(t, json.Unmarshal(msg.Data, &connected))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "mockFile.mov")
	require.NoError(t, err)
	fw.Write([]byte("hey jude"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/?"+v1.SubscriberQueryParam+"="+connected.ID, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	assert.JSONEq(t, `{"result":"Files uploaded with success!","files":1,"bytes":8}`, string(b))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, upload.ProgressEventName, msg.Event)
	var progress upload.ProgressEvent
	require.NoError(t, json.Unmarshal(msg.Data, &progress))
	assert.Equal(t, "mockFile.mov", progress.Filename)
	assert.Positive(t, progress.ProcessedAlready)

	got, err := os.ReadFile(filepath.Join(dir, "mockFile.mov"))
	require.NoError(t, err)
	assert.Equal(t, "hey jude", string(got))
}

func TestUploadWithUnknownSocket(t *testing.T) {
	srv, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "a.txt")
	require.NoError(t, err)
	fw.Write([]byte("hey"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
