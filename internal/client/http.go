package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/dealboard/internal/model"
)

// DefaultTimeout bounds a single request when the caller's context has no
// deadline of its own.
const DefaultTimeout = 30 * time.Second

// HTTPClient implements DealsClient using the dealboard HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Deals ---

// ListDeals returns every deal of the company, unpaginated. It is the
// reload used to reconcile the board after a failed move.
func (c *HTTPClient) ListDeals(ctx context.Context, companyID int64) ([]*model.Deal, error) {
	resp, err := c.ListDealsFiltered(ctx, &ListDealsRequest{CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	return resp.Deals, nil
}

func (c *HTTPClient) ListDealsFiltered(ctx context.Context, req *ListDealsRequest) (*ListDealsResponse, error) {
	q := url.Values{}
	if req.Search != "" {
		q.Set("search", req.Search)
	}
	if len(req.Stage) > 0 {
		q.Set("stage", strings.Join(req.Stage, ","))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}

	path := companyPath(req.CompanyID) + "/deals"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp ListDealsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Deals == nil {
		resp.Deals = []*model.Deal{}
	}
	return &resp, nil
}

func (c *HTTPClient) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	var deal model.Deal
	if err := c.doJSON(ctx, http.MethodGet, dealPath(id), nil, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

// --- Stages ---

// ListStages returns the company's active stages.
func (c *HTTPClient) ListStages(ctx context.Context, companyID int64) ([]*model.Stage, error) {
	return c.listStages(ctx, companyPath(companyID)+"/stages")
}

// ListAllStages returns active and inactive stages.
func (c *HTTPClient) ListAllStages(ctx context.Context, companyID int64) ([]*model.Stage, error) {
	return c.listStages(ctx, companyPath(companyID)+"/stages?all=true")
}

func (c *HTTPClient) listStages(ctx context.Context, path string) ([]*model.Stage, error) {
	var resp struct {
		Stages []*model.Stage `json:"stages"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stages, nil
}

// --- Stage moves ---

// UpdateStage asks the server to move a deal. Any 2xx response is success.
func (c *HTTPClient) UpdateStage(ctx context.Context, dealID, stageID, actingUserID, companyID int64) error {
	_, err := c.MoveDeal(ctx, dealID, &UpdateStageRequest{
		StageID:      stageID,
		ActingUserID: actingUserID,
		CompanyID:    companyID,
	})
	return err
}

// MoveDeal is UpdateStage returning the server's copy of the deal.
func (c *HTTPClient) MoveDeal(ctx context.Context, dealID int64, req *UpdateStageRequest) (*model.Deal, error) {
	var deal model.Deal
	if err := c.doJSON(ctx, http.MethodPatch, dealPath(dealID)+"/stage", req, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

func (c *HTTPClient) GetStageHistory(ctx context.Context, dealID int64) ([]*model.StageChange, error) {
	var resp struct {
		Changes []*model.StageChange `json:"changes"`
	}
	if err := c.doJSON(ctx, http.MethodGet, dealPath(dealID)+"/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Changes, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

func companyPath(id int64) string { return "/v1/companies/" + strconv.FormatInt(id, 10) }

func dealPath(id int64) string { return "/v1/deals/" + strconv.FormatInt(id, 10) }

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsConflict reports whether err is an APIError with status 409.
func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }

func hasStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
