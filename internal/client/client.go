// Package client is the typed control-protocol client used by the CLI and
// by integration tests. It speaks HTTP over the daemon's unix socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"projd/internal/api"
)

const defaultUnaryTimeout = 10 * time.Second

type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
}

func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewWithClient("http://unix", &http.Client{Transport: transport})
}

func NewWithClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       httpClient,
		unaryTimeout: defaultUnaryTimeout,
	}
}

func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

// RequestError is a structured control-protocol failure: the HTTP status
// plus the daemon's error code and message when it sent one.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	switch {
	case code != "" && message != "":
		return fmt.Sprintf("%s: %s", code, message)
	case code != "":
		return code
	case message != "":
		return message
	default:
		return fmt.Sprintf("http %d", e.StatusCode)
	}
}

func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	return get[api.HealthResponse](ctx, c, "/v1/health", nil)
}

func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	return get[api.StatusResponse](ctx, c, "/v1/status", nil)
}

func (c *Client) ActiveProject(ctx context.Context) (api.ActiveProjectResponse, error) {
	return get[api.ActiveProjectResponse](ctx, c, "/v1/project", nil)
}

// SwitchProject activates the named project; an empty name means global
// mode.
func (c *Client) SwitchProject(ctx context.Context, projectName string) (api.SwitchProjectResponse, error) {
	req := api.SwitchProjectRequest{ProjectName: projectName}
	return post[api.SwitchProjectResponse](ctx, c, "/v1/project/switch", req)
}

func (c *Client) ListProjects(ctx context.Context) (api.ProjectsEnvelope, error) {
	return get[api.ProjectsEnvelope](ctx, c, "/v1/projects", nil)
}

func (c *Client) CreateProject(ctx context.Context, req api.CreateProjectRequest) (api.ProjectResponse, error) {
	return post[api.ProjectResponse](ctx, c, "/v1/projects", req)
}

func (c *Client) GetProject(ctx context.Context, name string) (api.ProjectResponse, error) {
	return get[api.ProjectResponse](ctx, c, "/v1/projects/"+url.PathEscape(name), nil)
}

func (c *Client) DeleteProject(ctx context.Context, name string) error {
	_, err := c.request(ctx, http.MethodDelete, "/v1/projects/"+url.PathEscape(name), nil, nil)
	return err
}

// WindowFilter narrows ListWindows. Zero value lists everything.
type WindowFilter struct {
	Project string
	Scope   string
}

func (c *Client) ListWindows(ctx context.Context, filter WindowFilter) (api.WindowsEnvelope, error) {
	query := url.Values{}
	if filter.Project != "" {
		query.Set("project", filter.Project)
	}
	if filter.Scope != "" {
		query.Set("scope", filter.Scope)
	}
	return get[api.WindowsEnvelope](ctx, c, "/v1/windows", query)
}

func (c *Client) RecentEvents(ctx context.Context, limit int, eventType string) (api.EventsEnvelope, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if eventType != "" {
		query.Set("type", eventType)
	}
	return get[api.EventsEnvelope](ctx, c, "/v1/events", query)
}

func (c *Client) ReloadConfig(ctx context.Context) (api.ReloadResponse, error) {
	return post[api.ReloadResponse](ctx, c, "/v1/config/reload", struct{}{})
}

func (c *Client) SaveLayout(ctx context.Context, req api.LayoutSaveRequest) (api.LayoutSaveResponse, error) {
	return post[api.LayoutSaveResponse](ctx, c, "/v1/layouts/save", req)
}

func (c *Client) RestoreLayout(ctx context.Context, req api.LayoutRestoreRequest) (api.LayoutRestoreResponse, error) {
	return post[api.LayoutRestoreResponse](ctx, c, "/v1/layouts/restore", req)
}

func get[T any](ctx context.Context, c *Client, path string, query url.Values) (T, error) {
	var out T
	body, err := c.request(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", path, err)
	}
	return out, nil
}

func post[T any](ctx context.Context, c *Client, path string, reqBody any) (T, error) {
	var out T
	body, err := c.request(ctx, http.MethodPost, path, nil, reqBody)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", path, err)
	}
	return out, nil
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if err := json.Unmarshal(payload, &er); err == nil && er.Error.Code != "" {
			return nil, &RequestError{
				StatusCode: resp.StatusCode,
				Code:       er.Error.Code,
				Message:    er.Error.Message,
			}
		}
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    strings.TrimSpace(string(payload)),
		}
	}
	return payload, nil
}
