package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/holopos/internal/catalog"
	"github.com/angelmondragon/holopos/internal/sales"
	"github.com/angelmondragon/holopos/pkg/config"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
)

const (
	errorBodyReadLimit   int64 = 4096
	productBodyReadLimit int64 = 32 << 20

	headerIdempotencyKey = "Idempotency-Key"
)

var errBaseURLRequired = errors.New("backend base url is required")

type tokenKey struct{}

// WithBearerToken attaches the cashier's access token to ctx so calls made on
// their behalf are attributed to them.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// BearerToken returns the token attached with WithBearerToken, if any.
func BearerToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Client talks to the REST backend that owns products, customers and sales.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	serviceToken string
	fetchTimeout time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a backend client. Sale submissions are bounded by the
// caller's context; reads use the configured fetch timeout.
func NewClient(cfg config.BackendConfig, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errBaseURLRequired
	}
	client := &Client{
		httpClient:   &http.Client{},
		baseURL:      base,
		serviceToken: strings.TrimSpace(cfg.ServiceToken),
		fetchTimeout: cfg.FetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SubmitSale posts a sale. The outcome is classified so callers can tell an
// unreachable backend (NETWORK_ERROR, safe to queue) from a rejected sale
// (BUSINESS_REJECTION, never queue).
func (c *Client) SubmitSale(ctx context.Context, payload sales.Payload, idempotencyKey string) (*sales.Confirmation, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "marshal sale payload")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "sales/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}

	resp, err := c.do(req, "submit sale")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var confirmation sales.Confirmation
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	if len(bytes.TrimSpace(raw)) > 0 {
		// the sale is recorded either way; a body we cannot read only costs the id
		_ = json.Unmarshal(raw, &confirmation)
	}
	return &confirmation, nil
}

// FetchProducts returns the raw product listing.
func (c *Client) FetchProducts(ctx context.Context) ([]byte, error) {
	ctx, cancel := c.withFetchTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "products/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "list products")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, productBodyReadLimit))
	if err != nil {
		return nil, classifyTransport(err, "read product listing")
	}
	return raw, nil
}

// ListProducts fetches and normalizes the catalog.
func (c *Client) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	raw, err := c.FetchProducts(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.ParseProducts(raw)
}

// GetCustomer loads a loyalty member by id.
func (c *Client) GetCustomer(ctx context.Context, id int64) (*catalog.Customer, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id must be positive")
	}
	ctx, cancel := c.withFetchTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "customers/"+strconv.FormatInt(id, 10)+"/", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "get customer")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	if err != nil {
		return nil, classifyTransport(err, "read customer")
	}
	customer, err := catalog.ParseCustomer(raw)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// Ping reports whether the backend answers at all. Any HTTP response below
// 500 counts as reachable, including auth failures on the API root.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err, "ping backend")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyReadLimit))
	if resp.StatusCode >= http.StatusInternalServerError {
		return pkgerrors.New(pkgerrors.CodeNetwork, fmt.Sprintf("backend returned %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build backend request")
	}
	req.Header.Set("Accept", "application/json")
	token := BearerToken(ctx)
	if token == "" {
		token = c.serviceToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do executes req and turns every non-2xx outcome into a typed error.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err, op)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	return nil, classifyStatus(resp.StatusCode, raw, op)
}

func (c *Client) withFetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.fetchTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.fetchTimeout)
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

// classifyStatus maps an HTTP status to the error taxonomy. 408 and 429 are
// transient and grouped with 5xx as network failures.
func classifyStatus(status int, body []byte, op string) error {
	message, parsed := serverMessage(body)
	details := map[string]any{"status": status}
	if message != "" {
		details["message"] = message
	}
	if parsed != nil {
		details["body"] = parsed
	}
	cause := fmt.Errorf("status %d: %s", status, strings.TrimSpace(string(body)))

	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, cause, op+" failed")
	case status == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, cause, op+" unauthorized")
	case status == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, cause, op+" forbidden")
	case status == http.StatusNotFound && op != "submit sale":
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, op+" not found").WithDetails(details)
	case status >= 400:
		text := op + " rejected"
		if message != "" {
			text = message
		}
		return pkgerrors.Wrap(pkgerrors.CodeBusinessRejection, cause, text).WithDetails(details)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, cause, op+" returned an unexpected status")
	}
}

func classifyTransport(err error, op string) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, op+" canceled")
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, op+" timed out")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, op+" unreachable")
	}
}

// serverMessage pulls a human readable message out of a DRF style error body.
func serverMessage(body []byte) (string, any) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", nil
	}
	var parsed any
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return strings.TrimSpace(string(trimmed)), nil
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return "", parsed
	}
	for _, key := range []string{"detail", "error", "message"} {
		if text, ok := obj[key].(string); ok && text != "" {
			return text, parsed
		}
	}
	fields := make([]string, 0, len(obj))
	for field := range obj {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if list, ok := obj[field].([]any); ok && len(list) > 0 {
			if text, ok := list[0].(string); ok {
				return field + ": " + text, parsed
			}
		}
	}
	return "", parsed
}
