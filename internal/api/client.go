// Package api talks to the remote job service:
//
//	POST /api/download        {"url": ...}     -> {"task_id": ...}
//	GET  /api/progress/{id}                    -> {"progress": 0..100}
//	GET  /api/file/{id}                        -> binary artifact, non-2xx = not ready
//	POST /api/cleanup/{id}                     -> ignored
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"jobfetch/internal/logster"
)

// DefaultArtifactName is used when the server does not name the file.
const DefaultArtifactName = "video.mp4"

const maxErrorBody = 64 << 10

// Client is a thin, stateless wrapper over the remote HTTP API.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger logster.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets a per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(l logster.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New validates baseURL and builds a Client.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{},
		logger: logster.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string { return c.base.String() }

type submitRequest struct {
	URL string `json:"url"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type progressResponse struct {
	Progress json.RawMessage `json:"progress"`
}

type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Submit creates a job for rawURL and returns the server-issued task id.
// Every failure is a *SubmissionError.
func (c *Client) Submit(ctx context.Context, rawURL string) (string, error) {
	body, err := json.Marshal(submitRequest{URL: rawURL})
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	resp, err := c.do(ctx, http.MethodPost, "api/download", bytes.NewReader(body))
	if err != nil {
		return "", &SubmissionError{Err: err}
	}
	defer drain(resp)

	if !ok(resp) {
		return "", &SubmissionError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &SubmissionError{Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if out.TaskID == "" {
		return "", &SubmissionError{Status: resp.StatusCode, Detail: "server returned no task_id"}
	}
	return out.TaskID, nil
}

// Progress returns the raw progress value reported for id. Range and
// integrality are not checked here; a value that is not a JSON number is a
// *ProgressValueError.
func (c *Client) Progress(ctx context.Context, id string) (float64, error) {
	resp, err := c.do(ctx, http.MethodGet, "api/progress/"+id, nil)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	if !ok(resp) {
		return 0, &StatusError{Op: "progress", Status: resp.StatusCode}
	}
	var out progressResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(out.Progress) == 0 || string(out.Progress) == "null" {
		return 0, fmt.Errorf("%w: missing progress", ErrMalformedResponse)
	}
	var v float64
	if err := json.Unmarshal(out.Progress, &v); err != nil {
		return 0, &ProgressValueError{Raw: string(out.Progress)}
	}
	return v, nil
}

// Download is an artifact response body. The caller must close Body.
type Download struct {
	Name string
	Size int64 // -1 when unknown
	Body io.ReadCloser
}

// FetchArtifact requests the artifact for id. Any non-2xx status yields an
// error wrapping ErrNotReady.
func (c *Client) FetchArtifact(ctx context.Context, id string) (*Download, error) {
	resp, err := c.do(ctx, http.MethodGet, "api/file/"+id, nil)
	if err != nil {
		return nil, err
	}
	if !ok(resp) {
		drain(resp)
		return nil, &StatusError{Op: "file", Status: resp.StatusCode, Err: ErrNotReady}
	}
	return &Download{
		Name: filenameFrom(resp.Header.Get("Content-Disposition")),
		Size: resp.ContentLength,
		Body: resp.Body,
	}, nil
}

// Cleanup tells the server the task's files may be discarded. The response
// status is returned for logging only.
func (c *Client) Cleanup(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "api/cleanup/"+id, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if !ok(resp) {
		return &StatusError{Op: "cleanup", Status: resp.StatusCode}
	}
	return nil
}

// Ping checks that something answers HTTP at the base URL. Any status counts.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "", nil)
	if err != nil {
		return err
	}
	drain(resp)
	return nil
}

func (c *Client) do(ctx context.Context, method, rel string, body io.Reader) (*http.Response, error) {
	u := *c.base
	u.Path = path.Join("/", c.base.Path, rel)
	if rel == "" && c.base.Path == "" {
		u.Path = "/"
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	log := c.logger.WithField("request_id", reqID).WithField("method", method).WithField("path", u.Path)
	if err != nil {
		log.WithError(err).Debugf("request failed after %s", time.Since(start))
		return nil, err
	}
	log.WithField("status", resp.StatusCode).Debugf("request done in %s", time.Since(start))
	return resp, nil
}

func ok(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// readDetail extracts {"detail": ...}. String details are returned as is;
// structured ones (validation errors) are returned as compact JSON.
func readDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var er errorResponse
	if err := json.Unmarshal(data, &er); err != nil || len(er.Detail) == 0 {
		return strings.TrimSpace(string(data))
	}
	var s string
	if err := json.Unmarshal(er.Detail, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, er.Detail); err != nil {
		return string(er.Detail)
	}
	return buf.String()
}

func filenameFrom(disposition string) string {
	if disposition == "" {
		return DefaultArtifactName
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return DefaultArtifactName
	}
	if name := params["filename"]; name != "" {
		return name
	}
	return DefaultArtifactName
}

// IsNotReady reports whether err means the artifact is not available yet.
func IsNotReady(err error) bool { return errors.Is(err, ErrNotReady) }
