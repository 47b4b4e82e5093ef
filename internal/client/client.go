// Package client talks to a running fleetmon server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fleetmon/fleetmon/internal/api"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// DefaultTimeout bounds each request. Connect waits for a full poll cycle,
// so it gets ConnectTimeout instead.
const (
	DefaultTimeout = 10 * time.Second
	ConnectTimeout = 2 * time.Minute
)

// Client is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// New returns a client for the server at baseURL, e.g. http://localhost:8080.
// A bare host:port is accepted.
func New(baseURL string) (*Client, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, errors.Newf(errors.ErrConfig, "Invalid server address %q", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return &Client{base: u, http: &http.Client{}}, nil
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrInternal, "Couldn't encode request", "")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrInternal, "Couldn't build request", "")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTransient,
			fmt.Sprintf("Can't reach fleetmon at %s", c.base.Host),
			"Start the server with 'fleetmon serve' or pass --server")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTransient, "Couldn't read response", "")
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.WrapWithCode(err, errors.ErrInternal,
			fmt.Sprintf("Unexpected response from %s %s", method, path),
			"Client and server versions may differ")
	}
	return nil
}

// decodeError turns an API error body back into a coded error.
func decodeError(status int, raw []byte) error {
	var body api.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return errors.Newf(errors.ErrInternal, "Server returned %d: %s", status, strings.TrimSpace(string(raw)))
	}
	return errors.New(body.Error, body.Message, body.Suggestion)
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
	return out, err
}

// Servers lists every server with its status.
func (c *Client) Servers(ctx context.Context) ([]monitor.ServerView, error) {
	var out []monitor.ServerView
	err := c.do(ctx, http.MethodGet, "/api/servers", nil, nil, &out)
	return out, err
}

// Server fetches one server.
func (c *Client) Server(ctx context.Context, id string) (monitor.ServerView, error) {
	var out monitor.ServerView
	err := c.do(ctx, http.MethodGet, "/api/servers/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Status fetches the retry and credential signals for one server.
func (c *Client) Status(ctx context.Context, id string) (api.StatusResponse, error) {
	var out api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/servers/"+url.PathEscape(id)+"/status", nil, nil, &out)
	return out, err
}

// Details fetches the latest value of one metric. Value is left as raw JSON
// so callers can decode it into the matching metrics type.
func (c *Client) Details(ctx context.Context, id string, metric metrics.Category) (Details, error) {
	var out Details
	err := c.do(ctx, http.MethodGet, "/api/servers/"+url.PathEscape(id)+"/details/"+string(metric), nil, nil, &out)
	return out, err
}

// Details mirrors api.DetailsResponse with an undecoded value.
type Details struct {
	ID        string           `json:"id"`
	Metric    metrics.Category `json:"metric"`
	Available bool             `json:"available"`
	Value     json.RawMessage  `json:"value,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

// History fetches up to limit recent snapshots, oldest first.
func (c *Client) History(ctx context.Context, id string, limit int) ([]*metrics.Snapshot, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []*metrics.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/servers/"+url.PathEscape(id)+"/history", q, nil, &out)
	return out, err
}

// Connect supplies an optional password and runs a poll now.
func (c *Client) Connect(ctx context.Context, id, password string) (monitor.ServerView, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ConnectTimeout)
		defer cancel()
	}
	var out monitor.ServerView
	err := c.do(ctx, http.MethodPost, "/api/servers/"+url.PathEscape(id)+"/connect", nil,
		api.ConnectRequest{Password: password}, &out)
	return out, err
}

// CancelSecret withdraws a pending password request.
func (c *Client) CancelSecret(ctx context.Context, id string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/servers/"+url.PathEscape(id)+"/secret-request", nil, nil, &out)
	return out.Cancelled, err
}

// StartMonitoring resumes scheduled polling of a server.
func (c *Client) StartMonitoring(ctx context.Context, id string) (monitor.ServerView, error) {
	var out monitor.ServerView
	err := c.do(ctx, http.MethodPost, "/api/servers/"+url.PathEscape(id)+"/start-monitoring", nil, nil, &out)
	return out, err
}

// StopMonitoring pauses scheduled polling of a server.
func (c *Client) StopMonitoring(ctx context.Context, id string) (monitor.ServerView, error) {
	var out monitor.ServerView
	err := c.do(ctx, http.MethodPost, "/api/servers/"+url.PathEscape(id)+"/stop-monitoring", nil, nil, &out)
	return out, err
}

// Jobs lists poll jobs, newest first, with aggregate stats.
func (c *Client) Jobs(ctx context.Context, filter monitor.JobFilter) (api.JobsResponse, error) {
	q := url.Values{}
	if filter.ServerID != "" {
		q.Set("server", filter.ServerID)
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	var out api.JobsResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", q, nil, &out)
	return out, err
}

// ConnectionPool lists the per-server connection summaries.
func (c *Client) ConnectionPool(ctx context.Context) (api.PoolResponse, error) {
	var out api.PoolResponse
	err := c.do(ctx, http.MethodGet, "/api/connection-pool", nil, nil, &out)
	return out, err
}

// ConnectionStats returns aggregate pool numbers.
func (c *Client) ConnectionStats(ctx context.Context) (monitor.PoolStats, error) {
	var out monitor.PoolStats
	err := c.do(ctx, http.MethodGet, "/api/connection-stats", nil, nil, &out)
	return out, err
}

// ConfigInfo returns the server's effective configuration without secrets.
func (c *Client) ConfigInfo(ctx context.Context) (api.ConfigInfo, error) {
	var out api.ConfigInfo
	err := c.do(ctx, http.MethodGet, "/api/config-info", nil, nil, &out)
	return out, err
}

// ClearJobs empties the job log and returns how many jobs were removed.
func (c *Client) ClearJobs(ctx context.Context) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/jobs", nil, nil, &out)
	return out.Removed, err
}
