package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yl5006/sitl-gazebo/pkg/core"
)

func writeRecording(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hil_20260301_120000.json.gz")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNew_Defaults(t *testing.T) {
	c := New("http://localhost:5000/", "secret123")

	assert.Equal(t, "http://localhost:5000", c.baseURL)
	assert.Equal(t, "secret123", c.apiKey)
	assert.Equal(t, 3, c.attempts)
	require.NotNil(t, c.http)

	c = New("http://localhost:5000", "", WithRetry(0, time.Millisecond))
	assert.Equal(t, 1, c.attempts)
}

func TestHealthcheck(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, healthPath, r.URL.Path)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	require.NoError(t, c.Healthcheck(context.Background()))

	status = http.StatusInternalServerError
	err := c.Healthcheck(context.Background())
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "healthcheck", se.Op)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
}

func TestHealthcheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	assert.Error(t, New(url, "").Healthcheck(context.Background()))
}

func TestUpload_SendsSessionForm(t *testing.T) {
	const content = "recorded frames"
	form := map[string]string{}
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, uploadPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if !assert.NoError(t, r.ParseMultipartForm(10<<20)) {
			return
		}
		for k, v := range r.MultipartForm.Value {
			form[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		body, _ = io.ReadAll(f)
	}))
	defer srv.Close()

	path := writeRecording(t, content)
	meta := core.UploadMetadata{
		UUID:     "0b6f3c2a-7f8e-4a51-9d0c-2b7e5c1d9a44",
		Name:     "bench",
		SystemID: 1,
		Duration: 3600.5,
		Tag:      "quad",
	}
	require.NoError(t, New(srv.URL, "mysecret").Upload(context.Background(), path, meta))

	sum := sha256.Sum256([]byte(content))
	assert.Equal(t, map[string]string{
		"secret":      "mysecret",
		"filename":    "hil_20260301_120000.json.gz",
		"uuid":        meta.UUID,
		"sessionName": "bench",
		"systemId":    "1",
		"duration":    "3600.500",
		"tag":         "quad",
		"sha256":      hex.EncodeToString(sum[:]),
	}, form)
	assert.Equal(t, content, string(body))
}

func TestUpload_MissingFile(t *testing.T) {
	err := New("http://localhost:5000", "").Upload(context.Background(),
		filepath.Join(t.TempDir(), "missing.json.gz"), core.UploadMetadata{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "", WithRetry(3, time.Millisecond))
	require.NoError(t, c.Upload(context.Background(), writeRecording(t, "x"), core.UploadMetadata{}))
	assert.EqualValues(t, 3, calls.Load())
}

func TestUpload_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "", WithRetry(2, time.Millisecond))
	err := c.Upload(context.Background(), writeRecording(t, "x"), core.UploadMetadata{})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Temporary())
	assert.ErrorContains(t, err, "after 2 attempts")
	assert.EqualValues(t, 2, calls.Load())
}

func TestUpload_RejectionIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, "wrong-secret", WithRetry(5, time.Millisecond))
	err := c.Upload(context.Background(), writeRecording(t, "x"), core.UploadMetadata{})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.False(t, se.Temporary())
	assert.EqualValues(t, 1, calls.Load())
}

func TestUpload_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c := New(srv.URL, "", WithRetry(3, time.Hour))

	err := c.Upload(ctx, writeRecording(t, "x"), core.UploadMetadata{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
