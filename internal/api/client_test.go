package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthcheck_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthcheck", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	assert.NoError(t, c.Healthcheck())
}

func TestHealthcheck_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	err := c.Healthcheck()
	assert.ErrorContains(t, err, "503")
}

func TestHealthcheck_Unreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "key")
	assert.Error(t, c.Healthcheck())
}

func TestUpload_SendsMultipartForm(t *testing.T) {
	dir := t.TempDir()
	replayPath := filepath.Join(dir, "evening_run.json.gz")
	require.NoError(t, os.WriteFile(replayPath, []byte("replay-bytes"), 0644))

	var gotSecret, gotSession, gotWorld, gotFilename string
	var gotFile []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/replays/add", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		gotSecret = r.FormValue("secret")
		gotSession = r.FormValue("sessionName")
		gotWorld = r.FormValue("worldName")
		gotFilename = r.FormValue("filename")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		buf := make([]byte, 64)
		n, _ := file.Read(buf)
		gotFile = buf[:n]

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "hunter2")
	err := c.Upload(replayPath, UploadMetadata{
		SessionName: "evening run",
		WorldName:   "munich",
		DurationSec: 321.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "hunter2", gotSecret)
	assert.Equal(t, "evening run", gotSession)
	assert.Equal(t, "munich", gotWorld)
	assert.Equal(t, "evening_run.json.gz", gotFilename)
	assert.Equal(t, "replay-bytes", string(gotFile))
}

func TestUpload_BadStatus(t *testing.T) {
	dir := t.TempDir()
	replayPath := filepath.Join(dir, "r.json")
	require.NoError(t, os.WriteFile(replayPath, []byte("{}"), 0644))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong")
	err := c.Upload(replayPath, UploadMetadata{})
	assert.ErrorContains(t, err, "403")
}

func TestUpload_MissingFile(t *testing.T) {
	c := New("http://localhost", "key")
	err := c.Upload("/does/not/exist.json", UploadMetadata{})
	assert.ErrorContains(t, err, "failed to open file")
}
