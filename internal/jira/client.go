package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestTimeout is the fixed per-call deadline for remote requests.
const RequestTimeout = 120 * time.Second

// ErrTimeout indicates the remote call exceeded its deadline. Synchronous
// actions surface it to the user; the background sync logs and continues.
var ErrTimeout = errors.New("jira: request timed out")

// RequestFailedError indicates a transport-level failure other than a
// timeout. Non-2xx statuses are NOT errors; callers branch on the status.
type RequestFailedError struct {
	URL string
	Err error
}

func (e *RequestFailedError) Error() string {
	return fmt.Sprintf("jira: request to %s failed: %v", e.URL, e.Err)
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

// Client provides authenticated HTTP access to a Jira instance.
type Client struct {
	BaseURL    string
	Email      string
	APIToken   string
	HTTPClient *http.Client
}

// NewClient creates a client for the given instance URL and credentials.
func NewClient(baseURL, email, apiToken string) *Client {
	return &Client{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		Email:    email,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: RequestTimeout,
		},
	}
}

// resolve turns an endpoint into a full URL. Absolute URLs are used
// verbatim; attachment content URLs point outside the API namespace.
func (c *Client) resolve(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return c.BaseURL + "/rest/api/3/" + endpoint
}

// Request executes an authenticated call and returns the status code and
// response body. Only transport-level problems are errors: timeouts map to
// ErrTimeout, everything else to *RequestFailedError. A non-2xx status is
// returned as-is for the caller to branch on.
func (c *Client) Request(ctx context.Context, method, endpoint string, body interface{}) (int, []byte, error) {
	apiURL := c.resolve(endpoint)

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, body != nil)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, c.classify(apiURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, c.classify(apiURL, err)
	}

	return resp.StatusCode, respBody, nil
}

// Download fetches a URL in streaming mode, for attachment content. The
// caller owns the returned body and must close it when status permits.
func (c *Client) Download(ctx context.Context, rawURL string) (int, io.ReadCloser, string, error) {
	apiURL := c.resolve(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return 0, nil, "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, false)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, "", c.classify(apiURL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return resp.StatusCode, resp.Body, contentType, nil
}

// setHeaders applies Basic auth and content negotiation headers.
func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	auth := base64.StdEncoding.EncodeToString([]byte(c.Email + ":" + c.APIToken))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
}

// classify maps a transport error to the client's failure taxonomy.
func (c *Client) classify(apiURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", apiURL, ErrTimeout)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", apiURL, ErrTimeout)
	}
	return &RequestFailedError{URL: apiURL, Err: err}
}

// Myself probes connectivity via the current-user endpoint.
func (c *Client) Myself(ctx context.Context) (int, error) {
	status, _, err := c.Request(ctx, http.MethodGet, "myself", nil)
	return status, err
}

// Projects fetches all projects visible to the configured account.
func (c *Client) Projects(ctx context.Context) (int, []Project, error) {
	status, body, err := c.Request(ctx, http.MethodGet, "project", nil)
	if err != nil || status != http.StatusOK {
		return status, nil, err
	}
	var projects []Project
	if err := json.Unmarshal(body, &projects); err != nil {
		return status, nil, fmt.Errorf("parse project response: %w", err)
	}
	return status, projects, nil
}

// SearchIssues fetches one page of the JQL search.
func (c *Client) SearchIssues(ctx context.Context, jql string, startAt, maxResults int) (int, *SearchResponse, error) {
	endpoint := fmt.Sprintf("search?jql=%s&startAt=%d&maxResults=%d",
		url.QueryEscape(jql), startAt, maxResults)
	status, body, err := c.Request(ctx, http.MethodGet, endpoint, nil)
	if err != nil || status != http.StatusOK {
		return status, nil, err
	}
	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return status, nil, fmt.Errorf("parse search response: %w", err)
	}
	return status, &result, nil
}

// Issue fetches a single issue by key, including its attachment list.
func (c *Client) Issue(ctx context.Context, key string) (int, *Issue, error) {
	status, body, err := c.Request(ctx, http.MethodGet, "issue/"+url.PathEscape(key), nil)
	if err != nil || status != http.StatusOK {
		return status, nil, err
	}
	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return status, nil, fmt.Errorf("parse issue response: %w", err)
	}
	return status, &issue, nil
}

// IssueComments fetches all comments on an issue.
func (c *Client) IssueComments(ctx context.Context, key string) (int, []Comment, error) {
	status, body, err := c.Request(ctx, http.MethodGet, "issue/"+url.PathEscape(key)+"/comment", nil)
	if err != nil || status != http.StatusOK {
		return status, nil, err
	}
	var result CommentsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return status, nil, fmt.Errorf("parse comment response: %w", err)
	}
	return status, result.Comments, nil
}

// PostComment posts a composed ADF comment to an issue. Success is 201.
func (c *Client) PostComment(ctx context.Context, key string, doc *Document) (int, error) {
	payload := map[string]interface{}{"body": doc}
	status, _, err := c.Request(ctx, http.MethodPost, "issue/"+url.PathEscape(key)+"/comment", payload)
	return status, err
}

// UpdateIssueFields sends a partial field update for an issue.
func (c *Client) UpdateIssueFields(ctx context.Context, key string, fields map[string]interface{}) (int, error) {
	payload := map[string]interface{}{"fields": fields}
	status, _, err := c.Request(ctx, http.MethodPut, "issue/"+url.PathEscape(key), payload)
	return status, err
}

// Transitions fetches the workflow transitions available for an issue.
func (c *Client) Transitions(ctx context.Context, key string) (int, []Transition, error) {
	status, body, err := c.Request(ctx, http.MethodGet, "issue/"+url.PathEscape(key)+"/transitions", nil)
	if err != nil || status != http.StatusOK {
		return status, nil, err
	}
	var result TransitionsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return status, nil, fmt.Errorf("parse transitions response: %w", err)
	}
	return status, result.Transitions, nil
}

// ApplyTransition executes a workflow transition by ID.
func (c *Client) ApplyTransition(ctx context.Context, key, transitionID string) (int, error) {
	payload := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	status, _, err := c.Request(ctx, http.MethodPost, "issue/"+url.PathEscape(key)+"/transitions", payload)
	return status, err
}

// UpdateProject updates a remote project's name and description.
func (c *Client) UpdateProject(ctx context.Context, key, name, description string) (int, error) {
	payload := map[string]string{
		"name":        name,
		"description": description,
	}
	status, _, err := c.Request(ctx, http.MethodPut, "project/"+url.PathEscape(key), payload)
	return status, err
}

// ParseTime parses Jira's ISO-8601-with-offset timestamps, returning the
// instant in UTC. Jira emits 2024-01-15T10:30:00.000+0000 and variants.
func ParseTime(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		time.RFC3339,
		time.RFC3339Nano,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
