// Package api uploads exported sessions to a recordings server.
package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yl5006/sitl-gazebo/pkg/core"
)

const (
	healthPath = "/healthcheck"
	uploadPath = "/api/v1/sessions/add"
)

// StatusError is a non-200 reply from the server.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Op, e.Code)
}

// Temporary reports whether retrying can help.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	attempts int
	backoff  time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default client with its 30s timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry makes Upload try up to attempts times, doubling backoff after
// each transient failure.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.attempts = max(attempts, 1)
		c.backoff = backoff
	}
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		attempts: 3,
		backoff:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("healthcheck request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "healthcheck", Code: resp.StatusCode}
	}
	return nil
}

// Upload posts the session file with its metadata. Network errors and 5xx
// replies are retried; any other reply is final.
func (c *Client) Upload(ctx context.Context, path string, meta core.UploadMetadata) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	backoff := c.backoff
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = c.uploadOnce(ctx, path, meta); err == nil || !retryable(err) {
			return err
		}
		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("upload failed after %d attempts: %w", c.attempts, err)
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) uploadOnce(ctx context.Context, path string, meta core.UploadMetadata) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer file.Close()

	// the form is streamed so a long recording is never held in memory
	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(c.writeForm(form, file, filepath.Base(path), meta))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, pr)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "upload", Code: resp.StatusCode}
	}
	return nil
}

// writeForm writes the metadata, then the file, then the file's SHA-256 so
// the server can check what it stored.
func (c *Client) writeForm(form *multipart.Writer, file io.Reader, name string, meta core.UploadMetadata) error {
	for _, f := range [][2]string{
		{"secret", c.apiKey},
		{"filename", name},
		{"uuid", meta.UUID},
		{"sessionName", meta.Name},
		{"systemId", strconv.Itoa(int(meta.SystemID))},
		{"duration", strconv.FormatFloat(meta.Duration, 'f', 3, 64)},
		{"tag", meta.Tag},
	} {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("form field %s: %w", f[0], err)
		}
	}

	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return fmt.Errorf("form file: %w", err)
	}
	sum := sha256.New()
	if _, err := io.Copy(io.MultiWriter(part, sum), file); err != nil {
		return fmt.Errorf("copying %s: %w", name, err)
	}
	if err := form.WriteField("sha256", hex.EncodeToString(sum.Sum(nil))); err != nil {
		return fmt.Errorf("form field sha256: %w", err)
	}
	return form.Close()
}
