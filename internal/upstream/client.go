// Package upstream is the HTTP client for the DCIM REST API. Every call sends
// JSON headers and the session's bearer token, and every failure is returned
// as an *Error rather than surfaced to the MCP transport.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/dcim-mcp/internal/common"
	"github.com/bobmcallan/dcim-mcp/internal/config"
	"github.com/bobmcallan/dcim-mcp/internal/session"
	"github.com/bobmcallan/dcim-mcp/internal/telemetry"
)

// LoginPath is the credential exchange endpoint.
const LoginPath = "/users/auth/login"

// Client connects MCP tool calls to the DCIM REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	logger     *common.Logger
	limiter    *rate.Limiter
	telemetry  *telemetry.Instruments
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithInstruments replaces the global otel instruments.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(c *Client) { c.telemetry = inst }
}

// NewClient creates a client for the API described by cfg. Requests carry
// the token held by sess.
func NewClient(cfg config.APIConfig, sess *session.Session, logger *common.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
		session: sess,
		logger:  logger,
	}
	if cfg.RateLimit > 0 {
		burst := int(math.Ceil(cfg.RateLimit))
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.telemetry == nil {
		c.telemetry = telemetry.Default()
	}
	return c
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get performs a GET against endpoint and returns the JSON response body.
func (c *Client) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, endpoint, nil)
}

// Do performs an authenticated request and returns the response body
// unmodified. A 401 clears the token that was sent.
func (c *Client) Do(ctx context.Context, method, endpoint string, data interface{}) (json.RawMessage, error) {
	token, _ := c.session.Token()
	logger := c.logger.ForContext(ctx)

	status, body, err := c.send(ctx, method, endpoint, data, token)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Method: method, Endpoint: endpoint, Err: err}
	}

	if status < 200 || status > 299 {
		if status == http.StatusUnauthorized && c.session.Invalidate(ctx, token) {
			logger.Warn().
				Str("endpoint", endpoint).
				Msg("Access token rejected, cleared; login required")
		}
		return nil, &Error{Kind: KindStatus, Method: method, Endpoint: endpoint, StatusCode: status, Body: string(body)}
	}

	if !json.Valid(body) {
		logger.Error().
			Str("endpoint", endpoint).
			Int("status_code", status).
			Msg("DCIM API returned invalid JSON")
		return nil, &Error{Kind: KindDecode, Method: method, Endpoint: endpoint, StatusCode: status, Body: string(body),
			Err: fmt.Errorf("invalid JSON response body")}
	}

	return json.RawMessage(body), nil
}

// loginResponse is the success shape of the login endpoint.
type loginResponse struct {
	Data struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// Login exchanges credentials for an access token. It never sends the held
// token and never clears it, so a rejected login leaves the session as it was.
// A non-2xx response is returned as a KindStatus *Error.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	creds := map[string]string{"email": email, "password": password}

	status, body, err := c.send(ctx, http.MethodPost, LoginPath, creds, "")
	if err != nil {
		return "", &Error{Kind: KindNetwork, Method: http.MethodPost, Endpoint: LoginPath, Err: err}
	}
	if status < 200 || status > 299 {
		return "", &Error{Kind: KindStatus, Method: http.MethodPost, Endpoint: LoginPath, StatusCode: status, Body: string(body)}
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &Error{Kind: KindDecode, Method: http.MethodPost, Endpoint: LoginPath, StatusCode: status, Body: string(body), Err: err}
	}
	if resp.Data.AccessToken == "" {
		return "", &Error{Kind: KindDecode, Method: http.MethodPost, Endpoint: LoginPath, StatusCode: status, Body: string(body),
			Err: fmt.Errorf("response has no data.access_token")}
	}
	return resp.Data.AccessToken, nil
}

// send performs one HTTP round trip. It returns an error only when no
// response was received.
func (c *Client) send(ctx context.Context, method, endpoint string, data interface{}, token string) (int, []byte, error) {
	logger := c.logger.ForContext(ctx)

	ctx, span := c.telemetry.Tracer.Start(ctx, "upstream.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("dcim.endpoint", endpoint),
		),
	)
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return 0, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var payload []byte
	var bodyReader io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = jsonData
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Str("headers", formatHeaders(req.Header)).
		Str("body", redactBody(payload)).
		Msg("DCIM API Request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.telemetry.RecordRequest(ctx, method, 0, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("method", method).Str("endpoint", endpoint).Dur("duration", duration).Msg("DCIM API Request Failed")
		return 0, nil, fmt.Errorf("server request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.telemetry.RecordRequest(ctx, method, resp.StatusCode, duration)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Str("endpoint", endpoint).Msg("DCIM API Response Read Failed")
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	logger.Debug().
		Str("status", resp.Status).
		Int("status_code", resp.StatusCode).
		Dur("duration", duration).
		Str("response", string(body)).
		Msg("DCIM API Response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		span.SetStatus(codes.Error, resp.Status)
		logger.Warn().
			Str("method", method).
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Str("response", string(body)).
			Msg("DCIM API returned error status")
	}

	return resp.StatusCode, body, nil
}

// formatHeaders renders headers in a stable order with credentials masked.
func formatHeaders(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.Join(h.Values(k), ",")
		if strings.EqualFold(k, "Authorization") {
			v = "Bearer ***"
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

// redactBody masks password fields in a JSON object body for logging.
func redactBody(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return string(payload)
	}
	if _, ok := obj["password"]; !ok {
		return string(payload)
	}
	obj["password"] = "***"
	masked, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(masked)
}
