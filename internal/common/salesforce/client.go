// Package salesforce is a minimal Salesforce REST client: SOQL queries with
// paging, single-record deletes and the authentication schemes used to obtain
// an Authorization header.
package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"salesforce-workers/internal/common/metrics"
)

const (
	DefaultAPIVersion = "v59.0"
	maxErrorBody      = 64 << 10
)

// Client issues requests against one org with one pre-resolved Authorization header.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiVersion    string
	authorization string
}

// ErrorDetail is one element of the JSON error array Salesforce returns.
type ErrorDetail struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields,omitempty"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string // reason phrase, e.g. "Not Found"
	Body       string
	RetryAfter time.Duration
	Errors     []ErrorDetail
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("salesforce %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Status)
	if len(e.Errors) > 0 {
		msg += fmt.Sprintf(" [%s] %s", e.Errors[0].ErrorCode, e.Errors[0].Message)
	}
	return msg
}

// QueryResponse is one page of a SOQL query result.
type QueryResponse[T any] struct {
	TotalSize      int    `json:"totalSize"`
	Done           bool   `json:"done"`
	NextRecordsURL string `json:"nextRecordsUrl,omitempty"`
	Records        []T    `json:"records"`
}

// NewClient builds a client. A nil httpClient uses a client with a 30s timeout.
func NewClient(httpClient *http.Client, baseURL, apiVersion, authorization string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiVersion:    NormalizeAPIVersion(apiVersion),
		authorization: authorization,
	}
}

func (c *Client) BaseURL() string    { return c.baseURL }
func (c *Client) APIVersion() string { return c.apiVersion }

// NormalizeAPIVersion accepts "59", "59.0", "v59" or "v59.0" and returns "v59.0".
// An empty value yields DefaultAPIVersion.
func NormalizeAPIVersion(v string) string {
	v = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "v")
	if v == "" {
		return DefaultAPIVersion
	}
	if !strings.Contains(v, ".") {
		v += ".0"
	}
	return "v" + v
}

func (c *Client) dataPath() string {
	return "/services/data/" + c.apiVersion
}

// Query runs one SOQL statement and returns the first page.
func Query[T any](ctx context.Context, c *Client, soql string) (*QueryResponse[T], error) {
	return getPage[T](ctx, c, c.dataPath()+"/query?"+encodeQuery(soql))
}

// QueryMore fetches the page at nextRecordsURL, a path relative to the instance.
func QueryMore[T any](ctx context.Context, c *Client, nextRecordsURL string) (*QueryResponse[T], error) {
	return getPage[T](ctx, c, nextRecordsURL)
}

// QueryAll runs soql and follows nextRecordsUrl until the result is done.
func QueryAll[T any](ctx context.Context, c *Client, soql string) ([]T, error) {
	page, err := Query[T](ctx, c, soql)
	if err != nil {
		return nil, err
	}

	records := page.Records
	for !page.Done && page.NextRecordsURL != "" {
		page, err = QueryMore[T](ctx, c, page.NextRecordsURL)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
	}
	return records, nil
}

func getPage[T any](ctx context.Context, c *Client, path string) (*QueryResponse[T], error) {
	body, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var page QueryResponse[T]
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal query response: %w", err)
	}
	return &page, nil
}

// DeleteRecord deletes one sObject record. Any 2xx is success; a 404 comes back
// as an *APIError like every other failure status.
func (c *Client) DeleteRecord(ctx context.Context, sobject, id string) error {
	path := fmt.Sprintf("%s/sobjects/%s/%s", c.dataPath(), sobject, url.PathEscape(id))
	_, err := c.do(ctx, http.MethodDelete, path)
	return err
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.SalesforceAPIDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SalesforceAPIRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("salesforce %s %s: %w", method, trimQuery(path), err)
	}
	defer resp.Body.Close()

	metrics.SalesforceAPIRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(method, trimQuery(path), resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

func newAPIError(method, path string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Body:       string(body),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
	_ = json.Unmarshal(body, &apiErr.Errors)
	return apiErr
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func trimQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
