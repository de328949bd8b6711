package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/models"
)

const (
	// DefaultTimeout bounds every backend call
	DefaultTimeout = 10 * time.Second

	// maxErrorBody caps how much of an error response body is read
	maxErrorBody = 4096
)

// HTTPClient implements Retriever and Mutator against the backend's
// internal REST API. User identity travels in headers; the backend owns
// authorization and returns 403/404 which map to the sentinel errors.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates a backend client. baseURL must not have a trailing
// slash.
func NewHTTPClient(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// GetEntity fetches one item by id, or resolves a name-only entity through
// the backend's name lookup
func (c *HTTPClient) GetEntity(ctx context.Context, user *models.User, entity models.ExtractedEntity) (*models.WorkItem, error) {
	var endpoint string
	if entity.Resolved() {
		endpoint = fmt.Sprintf("%s/api/v1/items/%s/%s",
			c.baseURL, url.PathEscape(string(entity.Type)), url.PathEscape(entity.ID))
	} else {
		endpoint = fmt.Sprintf("%s/api/v1/items/%s/by-name?name=%s",
			c.baseURL, url.PathEscape(string(entity.Type)), url.QueryEscape(entity.Name))
	}

	var item models.WorkItem
	if err := c.do(ctx, http.MethodGet, endpoint, user, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Search lists items matching the filters
func (c *HTTPClient) Search(ctx context.Context, user *models.User, types []models.EntityType, f Filters) ([]models.WorkItem, error) {
	q := url.Values{}
	for _, t := range types {
		q.Add("type", string(t))
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Priority != "" {
		q.Set("priority", f.Priority)
	}
	if f.Assignee != "" {
		q.Set("assignee", f.Assignee)
	}
	if f.Project != "" {
		q.Set("project", f.Project)
	}
	addTemporal(q, f.Temporal)

	endpoint := c.baseURL + "/api/v1/items?" + q.Encode()

	var payload struct {
		Items []models.WorkItem `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, user, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// Report runs an aggregation on the backend
func (c *HTTPClient) Report(ctx context.Context, user *models.User, spec ReportSpec) (*ReportResult, error) {
	body := map[string]any{
		"group_by": spec.GroupBy,
	}
	if len(spec.Types) > 0 {
		body["types"] = spec.Types
	}
	if spec.Filters.Status != "" {
		body["status"] = spec.Filters.Status
	}
	if spec.Filters.Priority != "" {
		body["priority"] = spec.Filters.Priority
	}
	if spec.Filters.Project != "" {
		body["project"] = spec.Filters.Project
	}
	if t := spec.Filters.Temporal; t != nil {
		body["temporal"] = t
	}

	var result ReportResult
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/reports", user, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Apply performs one whitelisted mutation
func (c *HTTPClient) Apply(ctx context.Context, req *models.ActionRequest) (string, error) {
	body := map[string]any{
		"type":   req.Type,
		"target": req.Target,
		"params": req.Params,
	}

	user := &models.User{ID: req.UserID, Role: req.Role}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/actions", user, body, &payload); err != nil {
		return "", err
	}
	return payload.Detail, nil
}

// Ping verifies the backend is reachable
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.baseURL+"/healthz", nil, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, user *models.User, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("X-User-ID", user.ID)
		req.Header.Set("X-User-Role", string(user.Role))
		if user.ClientID != "" {
			req.Header.Set("X-Client-ID", user.ClientID)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.logger != nil {
		c.logger.Debug("retrieval_request",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrAccessDenied
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode backend response: %w", err)
	}
	return nil
}

func addTemporal(q url.Values, t *models.TemporalFilter) {
	if t == nil {
		return
	}
	if t.Period != "" {
		q.Set("period", t.Period)
		return
	}
	if t.Start != nil {
		q.Set("start", t.Start.Format(time.RFC3339))
	}
	if t.End != nil {
		q.Set("end", t.End.Format(time.RFC3339))
	}
}

var (
	_ Retriever = (*HTTPClient)(nil)
	_ Mutator   = (*HTTPClient)(nil)
)
