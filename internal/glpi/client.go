// Package glpi adapts the session-token REST API of the remote ticketing
// system: session management, requester reconciliation, ticket and
// followup operations with embedded ownership markers.
package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/domain"
)

const (
	defaultTimeout = 30 * time.Second

	headerAppToken     = "App-Token"
	headerSessionToken = "Session-Token"
)

// Remote error codes with special handling.
const (
	codeRangeExceedTotal    = "ERROR_RANGE_EXCEED_TOTAL"
	codeItemNotFound        = "ERROR_ITEM_NOT_FOUND"
	codeSessionTokenInvalid = "ERROR_SESSION_TOKEN_INVALID"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a thin HTTP client for the remote REST API. It does not manage
// session tokens itself; see SessionCache.
type Client struct {
	baseURL    string
	appToken   string
	userToken  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new REST client. userToken is the service account
// credential sent to initSession.
func NewClient(baseURL, appToken, userToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		appToken:  appToken,
		userToken: userToken,
		timeout:   defaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return c
}

type initSessionResponse struct {
	SessionToken string `json:"session_token"`
}

// InitSession authenticates with the application and service account
// credentials and returns a fresh session token.
func (c *Client) InitSession(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/initSession", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "user_token "+c.userToken)
	if c.appToken != "" {
		httpReq.Header.Set(headerAppToken, c.appToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.NewError(domain.KindAuth, "ticketing system unreachable").WithOp("init_session").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewError(domain.KindAuth, "failed to read session response").WithOp("init_session").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := parseError(resp.StatusCode, body)
		apiErr.Kind = domain.KindAuth
		return "", apiErr.WithOp("init_session")
	}

	var out initSessionResponse
	if err := json.Unmarshal(body, &out); err != nil || out.SessionToken == "" {
		return "", domain.NewError(domain.KindAuth, "session response carried no usable token").WithOp("init_session")
	}
	return out.SessionToken, nil
}

// KillSession terminates a session token. Errors are returned but callers
// usually ignore them.
func (c *Client) KillSession(ctx context.Context, token string) error {
	_, err := c.do(ctx, token, request{method: http.MethodGet, path: "/killSession"}, nil)
	return err
}

// request describes one authenticated call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   interface{}
}

func (r request) idempotent() bool {
	return r.method == http.MethodGet
}

// do executes req with the given session token and decodes a 2xx body into out.
// Failures are returned as *domain.Error.
func (c *Client) do(ctx context.Context, token string, req request, out interface{}) (http.Header, error) {
	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var reader io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(headerSessionToken, token)
	if c.appToken != "" {
		httpReq.Header.Set(headerAppToken, c.appToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewError(domain.KindGateway, "request failed").WithOp(req.op).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewError(domain.KindGateway, "failed to read response").WithOp(req.op).WithCause(err)
	}

	c.logger.Debug("remote call",
		slog.String("op", req.op),
		slog.String("method", req.method),
		slog.String("path", req.path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, parseError(resp.StatusCode, body).WithOp(req.op)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.Header, domain.NewError(domain.KindGateway, "unexpected response shape").WithOp(req.op).WithCause(err)
		}
	}
	return resp.Header, nil
}

// parseError converts a non-2xx reply into a tagged error. The remote system
// reports errors as a ["ERROR_CODE", "message"] array.
func parseError(status int, body []byte) *domain.Error {
	kind := domain.KindGateway
	switch status {
	case http.StatusUnauthorized:
		kind = domain.KindAuth
	case http.StatusNotFound:
		kind = domain.KindNotFound
	}

	apiErr := &domain.Error{Kind: kind, StatusCode: status}

	var parts []interface{}
	if err := json.Unmarshal(body, &parts); err == nil && len(parts) > 0 {
		if code, ok := parts[0].(string); ok {
			apiErr.Code = code
		}
		if len(parts) > 1 {
			if msg, ok := parts[1].(string); ok {
				apiErr.Message = msg
			}
		}
	}
	if apiErr.Code == codeItemNotFound {
		apiErr.Kind = domain.KindNotFound
	}
	if apiErr.Message == "" {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		apiErr.Message = fmt.Sprintf("remote status %d: %s", status, msg)
	}
	return apiErr
}

// remoteCode returns the remote error code carried by err, if any.
func remoteCode(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

func remoteStatus(err error) int {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}
