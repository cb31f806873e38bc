// Package transport is the HTTP layer between the client and the fizzgrid API.
// Reads and mutations return decoded JSON or an *APIError carrying the
// server's detail message.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/illmade-knight/go-fizzgrid/pkg/transport"

// Config holds the configuration for the API client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	CSRFCookieName string
	CSRFHeaderName string
	UserAgent      string
}

// DefaultConfig returns a config for a local development API.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:8000",
		Timeout:        30 * time.Second,
		CSRFCookieName: "csrftoken",
		CSRFHeaderName: "X-CSRFToken",
		UserAgent:      "fizzgrid-go/1.0",
	}
}

// Client sends requests to the API. Credentialed requests carry the session
// cookies held in the client's jar; public reads carry none.
type Client struct {
	cfg    *Config
	base   *url.URL
	jar    http.CookieJar
	public *http.Client
	authed *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewClient creates a new API client with an empty cookie jar.
func NewClient(cfg *Config, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CSRFCookieName == "" {
		cfg.CSRFCookieName = "csrftoken"
	}
	if cfg.CSRFHeaderName == "" {
		cfg.CSRFHeaderName = "X-CSRFToken"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		cfg:    cfg,
		base:   base,
		jar:    jar,
		public: &http.Client{Timeout: cfg.Timeout},
		authed: &http.Client{Timeout: cfg.Timeout, Jar: jar},
		tracer: otel.Tracer(tracerName),
		logger: logger.With().Str("component", "APIClient").Logger(),
	}, nil
}

// SetCookie stores a cookie for the API host, e.g. a session restored from disk.
func (c *Client) SetCookie(name, value string) {
	c.jar.SetCookies(c.base, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// Cookies returns the cookies currently held for the API host.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.base)
}

// CSRFToken returns the anti-forgery token from the session cookies.
func (c *Client) CSRFToken() (string, bool) {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == c.cfg.CSRFCookieName && ck.Value != "" {
			return ck.Value, true
		}
	}
	return "", false
}

// Get performs an anonymous read. A 500 reports DefaultErrorDetail; other
// failures report the server's detail.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	return c.do(c.public, req, out, true)
}

// GetWithCredentials performs a read that carries the session cookies.
func (c *Client) GetWithCredentials(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	return c.do(c.authed, req, out, false)
}

// Send performs a credentialed request with the anti-forgery header and an
// optional multipart body. An invalid method or a missing token fails before
// anything is sent.
func (c *Client) Send(ctx context.Context, method, path string, form *Form, out any) error {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return fmt.Errorf("%q: %w", method, ErrInvalidMethod)
	}

	token, ok := c.CSRFToken()
	if !ok {
		return ErrMissingCSRFToken
	}

	var (
		body        io.Reader
		contentType string
	)
	if form != nil {
		var err error
		body, contentType, err = form.encode()
		if err != nil {
			return err
		}
	}

	req, err := c.newRequest(ctx, method, path, nil, body, contentType)
	if err != nil {
		return err
	}
	req.Header.Set(c.cfg.CSRFHeaderName, token)
	return c.do(c.authed, req, out, false)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Request, error) {
	u, err := c.base.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func (c *Client) do(hc *http.Client, req *http.Request, out any, maskServerErrors bool) error {
	ctx, span := c.tracer.Start(req.Context(), "fizzgrid.api "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.path", req.URL.Path),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body failed")
		return fmt.Errorf("failed to read %s %s response: %w", req.Method, req.URL.Path, err)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("API request completed.")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp.StatusCode, body, maskServerErrors)
		span.SetStatus(codes.Error, apiErr.Detail)
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		span.RecordError(err)
		return decodeError(req.Method, req.URL.Path, err)
	}
	return nil
}
