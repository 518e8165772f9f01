package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"releasetest/internal/cluster"
	"releasetest/pkg/logging"
	strutil "releasetest/pkg/strings"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultHTTPTimeout bounds a single attempt of a request.
	DefaultHTTPTimeout = 60 * time.Second

	apiPrefix = "/api/v2"

	// maxBodyExcerpt bounds the response body quoted in errors.
	maxBodyExcerpt = 512
)

// ErrUnexpectedResponse is returned when the backend answers with a payload
// that cannot be decoded or lacks required fields.
var ErrUnexpectedResponse = errors.New("unexpected response")

// APIError is a non-2xx answer from the control plane.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is maps 404 answers to cluster.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == cluster.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the provisioning backend over its JSON REST API. It
// implements cluster.Provisioner.
type Client struct {
	baseURL    string
	token      string
	httpClient *retryablehttp.Client
}

var _ cluster.Provisioner = (*Client)(nil)

// ClientOption configures the control-plane client.
type ClientOption func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(retryMax int, waitMin, waitMax time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.RetryMax = retryMax
		if waitMin > 0 {
			c.httpClient.RetryWaitMin = waitMin
		}
		if waitMax > 0 {
			c.httpClient.RetryWaitMax = waitMax
		}
	}
}

// WithHTTPTimeout sets the per-attempt timeout.
func WithHTTPTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.HTTPClient.Timeout = timeout
		}
	}
}

// NewClient creates a control-plane client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = leveledLogger{}
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.HTTPClient.Timeout = DefaultHTTPTimeout

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type idResult struct {
	ID string `json:"id"`
}

type namedResource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type envelope[T any] struct {
	Result *T `json:"result"`
}

type listEnvelope[T any] struct {
	Results []T `json:"results"`
}

func (c *Client) FindComputeTemplate(ctx context.Context, projectID, name string) (string, error) {
	return c.findByName(ctx, "/compute_templates/", projectID, name)
}

func (c *Client) CreateComputeTemplate(ctx context.Context, projectID, name string, spec map[string]interface{}) (string, error) {
	body := map[string]interface{}{
		"project_id": projectID,
		"name":       name,
		"config":     spec,
	}
	return c.createResource(ctx, "/compute_templates/", body)
}

func (c *Client) FindClusterEnv(ctx context.Context, projectID, name string) (string, error) {
	return c.findByName(ctx, "/application_templates/", projectID, name)
}

func (c *Client) CreateClusterEnv(ctx context.Context, projectID, name string, spec map[string]interface{}) (string, error) {
	body := map[string]interface{}{
		"project_id":  projectID,
		"name":        name,
		"config_json": spec,
	}
	return c.createResource(ctx, "/application_templates/", body)
}

func (c *Client) LatestSuccessfulBuild(ctx context.Context, clusterEnvID string) (string, error) {
	query := url.Values{}
	query.Set("application_template_id", clusterEnvID)
	query.Set("status", string(cluster.BuildSucceeded))

	var out listEnvelope[cluster.Build]
	if err := c.do(ctx, http.MethodGet, "/builds/?"+query.Encode(), nil, &out); err != nil {
		return "", err
	}

	var latest *cluster.Build
	for i := range out.Results {
		build := &out.Results[i]
		if build.Status != cluster.BuildSucceeded {
			continue
		}
		if latest == nil || build.Revision > latest.Revision {
			latest = build
		}
	}
	if latest == nil {
		return "", cluster.ErrNotFound
	}
	return latest.ID, nil
}

func (c *Client) CreateBuild(ctx context.Context, clusterEnvID string) (string, error) {
	return c.createResource(ctx, "/builds/", map[string]interface{}{"application_template_id": clusterEnvID})
}

func (c *Client) GetBuild(ctx context.Context, buildID string) (cluster.Build, error) {
	var out envelope[cluster.Build]
	if err := c.do(ctx, http.MethodGet, "/builds/"+url.PathEscape(buildID), nil, &out); err != nil {
		return cluster.Build{}, err
	}
	if out.Result == nil || out.Result.Status == "" {
		return cluster.Build{}, fmt.Errorf("%w: build %s has no status", ErrUnexpectedResponse, buildID)
	}
	return *out.Result, nil
}

// CreateCluster creates a session and requests it to start.
func (c *Client) CreateCluster(ctx context.Context, req cluster.CreateClusterRequest) (string, error) {
	id, err := c.createResource(ctx, "/sessions/", req)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", nil
	}
	if err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(id)+"/start", map[string]interface{}{}, nil); err != nil {
		return "", fmt.Errorf("failed to start session %s: %w", id, err)
	}
	return id, nil
}

func (c *Client) GetCluster(ctx context.Context, clusterID string) (cluster.Info, error) {
	var out envelope[cluster.Info]
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(clusterID), nil, &out); err != nil {
		return cluster.Info{}, err
	}
	if out.Result == nil || out.Result.State == "" {
		return cluster.Info{}, fmt.Errorf("%w: session %s has no state", ErrUnexpectedResponse, clusterID)
	}
	return *out.Result, nil
}

func (c *Client) TerminateCluster(ctx context.Context, clusterID string) error {
	return c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(clusterID)+"/terminate", map[string]interface{}{}, nil)
}

func (c *Client) findByName(ctx context.Context, path, projectID, name string) (string, error) {
	query := url.Values{}
	query.Set("project_id", projectID)
	query.Set("name", name)

	var out listEnvelope[namedResource]
	if err := c.do(ctx, http.MethodGet, path+"?"+query.Encode(), nil, &out); err != nil {
		return "", err
	}
	for _, res := range out.Results {
		if res.Name == name && res.ID != "" {
			return res.ID, nil
		}
	}
	return "", cluster.ErrNotFound
}

// createResource POSTs body and returns the id of the created resource. An
// answer without an id yields an empty id and no error, so the caller can
// report it under its own failure kind.
func (c *Client) createResource(ctx context.Context, path string, body interface{}) (string, error) {
	var out envelope[idResult]
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	if out.Result == nil {
		return "", nil
	}
	return out.Result.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request for %s %s: %w", method, path, err)
		}
	}

	var rawBody interface{}
	if payload != nil {
		rawBody = bytes.NewReader(payload)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, rawBody)
	if err != nil {
		return fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logging.Debug("ControlPlane", "%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response of %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strutil.TruncateCell(string(data), maxBodyExcerpt)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if out != nil {
			return fmt.Errorf("%w: empty body from %s %s", ErrUnexpectedResponse, method, path)
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: could not decode %s %s: %v (body: %s)", ErrUnexpectedResponse, method, path, err, strutil.TruncateCell(string(data), maxBodyExcerpt))
	}
	return nil
}

// leveledLogger routes retryablehttp logs to pkg/logging.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	logging.Error("ControlPlane", nil, "%s %v", msg, keysAndValues)
}

func (leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	logging.Debug("ControlPlane", "%s %v", msg, keysAndValues)
}

func (leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	logging.Debug("ControlPlane", "%s %v", msg, keysAndValues)
}

func (leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	logging.Warn("ControlPlane", "%s %v", msg, keysAndValues)
}
