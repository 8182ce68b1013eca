// Package client talks to the frontend JSON API. It is used by the command
// line tools and by backend glue scripts.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/copr-farm/copr/pkg/api"
	"github.com/copr-farm/copr/pkg/models"
	"github.com/copr-farm/copr/pkg/retry"
	"github.com/copr-farm/copr/pkg/tracing"
)

// APIError is a non-2xx answer of the frontend
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	ActionID   *int64
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the frontend
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client manages communication with the frontend
type Client struct {
	baseURL         string
	httpClient      *http.Client
	login           string
	token           string
	backendPassword string
	retry           retry.Config
}

// Option configures a Client
type Option func(*Client)

// WithCredentials authenticates requests with an API login and token
func WithCredentials(login, token string) Option {
	return func(c *Client) {
		c.login = login
		c.token = token
	}
}

// WithBackendPassword authenticates requests as the build backend
func WithBackendPassword(password string) Option {
	return func(c *Client) { c.backendPassword = password }
}

// WithRetry overrides the backoff used for transient failures
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithTLSConfig sets the TLS configuration of the underlying transport
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.httpClient.Transport = &http.Transport{TLSClientConfig: cfg}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a new frontend client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends one request, retrying on transport errors and 5xx answers.
// out may be nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = data
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	return retry.Do(ctx, c.retry, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		c.authenticate(req)
		tracing.InjectHTTPHeaders(ctx, req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil || !retry.IsRetryable(err) {
				return retry.Permanent(fmt.Errorf("failed to send request: %w", err))
			}
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			apiErr := decodeError(resp)
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return retry.Permanent(apiErr)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	})
}

func (c *Client) authenticate(req *http.Request) {
	switch {
	case c.backendPassword != "" && strings.Contains(req.URL.Path, "/backend/"):
		req.SetBasicAuth("backend", c.backendPassword)
	case c.login != "":
		req.SetBasicAuth(c.login, c.token)
	}
}

func decodeError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
		apiErr.ActionID = body.ActionID
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

func projectPath(owner, name string) string {
	return "/api/coprs/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}

// Health checks that the frontend answers
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// ListCoprs lists projects. An empty owner lists all of them.
func (c *Client) ListCoprs(ctx context.Context, owner string, page int) (*api.PageResponse, error) {
	path := "/api/coprs"
	if owner != "" {
		path = "/api/coprs/owned/" + url.PathEscape(owner)
	}
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	var resp api.PageResponse
	if err := c.do(ctx, http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchCoprs runs a project search
func (c *Client) SearchCoprs(ctx context.Context, q string) ([]api.CoprResponse, error) {
	var resp struct {
		Coprs []api.CoprResponse `json:"coprs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/coprs/search", url.Values{"q": {q}}, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Coprs, nil
}

// GetCopr returns one project
func (c *Client) GetCopr(ctx context.Context, owner, name string) (*api.CoprResponse, error) {
	var resp api.CoprResponse
	if err := c.do(ctx, http.MethodGet, projectPath(owner, name), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProject returns the settings of one project without the API decorations
func (c *Client) GetProject(ctx context.Context, owner, name string) (*models.Copr, error) {
	resp, err := c.GetCopr(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	if resp.Copr == nil {
		return nil, fmt.Errorf("empty project %s/%s returned by frontend", owner, name)
	}
	return resp.Copr, nil
}

// CreateCopr creates a project owned by the authenticated user or req.Group
func (c *Client) CreateCopr(ctx context.Context, req api.CreateCoprRequest) (*api.CoprResponse, error) {
	var resp api.CoprResponse
	if err := c.do(ctx, http.MethodPost, "/api/coprs", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateCopr changes project settings
func (c *Client) UpdateCopr(ctx context.Context, owner, name string, req api.UpdateCoprRequest) (*api.CoprResponse, error) {
	var resp api.CoprResponse
	if err := c.do(ctx, http.MethodPut, projectPath(owner, name), nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteCopr deletes a project and returns the server message
func (c *Client) DeleteCopr(ctx context.Context, owner, name string) (string, error) {
	return c.message(ctx, http.MethodDelete, projectPath(owner, name), nil)
}

// ForkCopr forks a project into the authenticated user's namespace
func (c *Client) ForkCopr(ctx context.Context, owner, name string, req api.ForkRequest) (*api.CoprResponse, error) {
	var resp api.CoprResponse
	if err := c.do(ctx, http.MethodPost, projectPath(owner, name)+"/fork", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListCoprChroots lists the chroots enabled in a project
func (c *Client) ListCoprChroots(ctx context.Context, owner, name string) ([]api.CoprChrootResponse, error) {
	var resp struct {
		Chroots []api.CoprChrootResponse `json:"chroots"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(owner, name)+"/chroots", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chroots, nil
}

// GetPermissions lists the permissions granted in a project
func (c *Client) GetPermissions(ctx context.Context, owner, name string) ([]*models.CoprPermission, error) {
	var resp struct {
		Permissions []*models.CoprPermission `json:"permissions"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(owner, name)+"/permissions", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Permissions, nil
}

// UpdatePermissions changes permissions of other users in a project
func (c *Client) UpdatePermissions(ctx context.Context, owner, name string, changes []api.PermissionChange) error {
	req := api.UpdatePermissionsRequest{Permissions: changes}
	return c.do(ctx, http.MethodPut, projectPath(owner, name)+"/permissions", nil, req, nil)
}

// RequestPermissions asks the project owner for permissions
func (c *Client) RequestPermissions(ctx context.Context, owner, name string, req api.RequestPermissionsRequest) error {
	return c.do(ctx, http.MethodPost, projectPath(owner, name)+"/permissions/request", nil, req, nil)
}

// CreateBuild submits a build into a project
func (c *Client) CreateBuild(ctx context.Context, owner, name string, req api.CreateBuildRequest) (*api.BuildResponse, error) {
	var resp api.BuildResponse
	if err := c.do(ctx, http.MethodPost, projectPath(owner, name)+"/builds", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListBuilds lists builds of a project, newest first
func (c *Client) ListBuilds(ctx context.Context, owner, name string, limit, offset int) ([]api.BuildResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}
	var resp struct {
		Builds []api.BuildResponse `json:"builds"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(owner, name)+"/builds", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Builds, nil
}

// GetBuild returns one build
func (c *Client) GetBuild(ctx context.Context, id int64) (*api.BuildResponse, error) {
	var resp api.BuildResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/builds/%d", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelBuild cancels an unfinished build
func (c *Client) CancelBuild(ctx context.Context, id int64) (*api.BuildResponse, error) {
	var resp api.BuildResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/builds/%d/cancel", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteBuild deletes a finished build
func (c *Client) DeleteBuild(ctx context.Context, id int64) (string, error) {
	return c.message(ctx, http.MethodDelete, fmt.Sprintf("/api/builds/%d", id), nil)
}

// ListActions lists backend actions, optionally filtered by type and result name
func (c *Client) ListActions(ctx context.Context, actionType, result string) ([]*models.Action, error) {
	query := url.Values{}
	if actionType != "" {
		query.Set("type", actionType)
	}
	if result != "" {
		query.Set("result", result)
	}
	var resp struct {
		Actions []*models.Action `json:"actions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/actions", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Actions, nil
}

// ListMockChroots lists the chroots known to the farm
func (c *Client) ListMockChroots(ctx context.Context, activeOnly bool) ([]api.MockChrootResponse, error) {
	query := url.Values{}
	if activeOnly {
		query.Set("active_only", "true")
	}
	var resp struct {
		Chroots []api.MockChrootResponse `json:"chroots"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/mock_chroots", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chroots, nil
}

// Waiting returns the actions and build tasks the backend should process
func (c *Client) Waiting(ctx context.Context) ([]*models.Action, []*api.BackendTask, error) {
	var resp struct {
		Actions []*models.Action   `json:"actions"`
		Builds  []*api.BackendTask `json:"builds"`
	}
	if err := c.do(ctx, http.MethodGet, "/backend/waiting", nil, nil, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Actions, resp.Builds, nil
}

// Update reports action results and build chroot states
func (c *Client) Update(ctx context.Context, req api.BackendUpdateRequest) (*api.BackendUpdateResponse, error) {
	var resp api.BackendUpdateResponse
	if err := c.do(ctx, http.MethodPost, "/backend/update", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StartingBuild tells the frontend a build chroot is about to start. It
// returns false when the build was canceled meanwhile.
func (c *Client) StartingBuild(ctx context.Context, buildID int64, chroot string) (bool, error) {
	var resp struct {
		CanStart bool `json:"can_start"`
	}
	req := api.StartingBuildRequest{BuildID: buildID, Chroot: chroot}
	if err := c.do(ctx, http.MethodPost, "/backend/starting_build", nil, req, &resp); err != nil {
		return false, err
	}
	return resp.CanStart, nil
}

func (c *Client) message(ctx context.Context, method, path string, body interface{}) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, method, path, nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}
