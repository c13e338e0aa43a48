// Package api is the REST client for the CRM backend: login, activities and
// bulk upload endpoints with typed payloads.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/devicelab-dev/crm-e2e/pkg/core"
	"github.com/devicelab-dev/crm-e2e/pkg/jsengine"
	"github.com/devicelab-dev/crm-e2e/pkg/logger"
)

// Config represents client configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
	Debug      bool
}

// Client talks to one CRM backend. A client holds the token of one login,
// so each scenario uses its own.
type Client struct {
	httpClient *resty.Client
	baseURL    string

	mu    sync.RWMutex
	token string
	last  *Response

	// Service clients
	Auth       *AuthService
	Activities *ActivitiesService
	BulkUpload *BulkUploadService
}

// NewClient creates a new CRM API client
func NewClient(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "crm-e2e"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetLogger(restyLogger{}).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")

	// Only idempotent requests are retried, on transport or gateway errors.
	httpClient.AddRetryCondition(func(r *resty.Response, err error) bool {
		if r == nil || r.Request == nil || !idempotent(r.Request.Method) {
			return false
		}
		return err != nil || r.StatusCode() >= http.StatusBadGateway
	})
	if cfg.Debug {
		httpClient.SetDebug(true)
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
	}
	c.Auth = &AuthService{client: c}
	c.Activities = &ActivitiesService{client: c}
	c.BulkUpload = &BulkUploadService{client: c}

	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if token := c.Token(); token != "" && req.Header.Get("Authorization") == "" {
			req.SetHeader("Authorization", "Bearer "+token)
		}
		if req.Header.Get("X-Request-ID") == "" {
			req.SetHeader("X-Request-ID", uuid.NewString())
		}
		return nil
	})
	httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		logger.Debug("api %s %s -> %d (%s)", resp.Request.Method, resp.Request.URL, resp.StatusCode(), resp.Time().Round(time.Millisecond))
		return nil
	})

	return c
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// BaseURL returns the configured backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// LastResponse returns the most recent response, or nil before any call.
func (c *Client) LastResponse() *Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   interface{}
}

// Do sends req and decodes a successful JSON body into result (when not
// nil). The returned Response is non-nil whenever the server answered, also
// for non-2xx statuses, which come back as *Error.
func (c *Client) Do(ctx context.Context, req Request, result interface{}) (*Response, error) {
	r := c.httpClient.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return nil, core.ErrAPIUnreachable.
			WithMessage(fmt.Sprintf("%s %s: %v", req.Method, req.Path, err)).
			WithCause(err)
	}

	out := &Response{
		Method:     req.Method,
		Endpoint:   req.Path,
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
		Duration:   resp.Time(),
		RequestID:  resp.Request.Header.Get("X-Request-ID"),
	}
	c.mu.Lock()
	c.last = out
	c.mu.Unlock()

	if !resp.IsSuccess() {
		return out, newError(out)
	}
	if result != nil && len(out.Body) > 0 {
		if err := json.Unmarshal(out.Body, result); err != nil {
			return out, fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
		}
	}
	return out, nil
}

// Response is what the server answered; steps assert on it.
type Response struct {
	Method     string
	Endpoint   string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
	RequestID  string
}

// Field evaluates path ("data.token", "data.items[0].name") against the
// JSON body.
func (r *Response) Field(path string) (interface{}, error) {
	e := jsengine.New()
	defer e.Close()
	return e.Extract(r.Body, path)
}

// FieldString is Field formatted as a string. Whole numbers print without
// a decimal point.
func (r *Response) FieldString(path string) (string, error) {
	v, err := r.Field(path)
	if err != nil {
		return "", err
	}
	switch n := v.(type) {
	case nil:
		return "", nil
	case string:
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n)), nil
		}
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(n)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return fmt.Sprint(v), nil
}

// Envelope decodes the status/message wrapper every endpoint returns.
func (r *Response) Envelope() Envelope {
	var env Envelope
	_ = json.Unmarshal(r.Body, &env)
	return env
}

// restyLogger sends resty's own warnings (retries, debug dumps) to the run log.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) { logger.Error("resty: "+format, v...) }
func (restyLogger) Warnf(format string, v ...interface{})  { logger.Warn("resty: "+format, v...) }
func (restyLogger) Debugf(format string, v ...interface{}) { logger.Debug("resty: "+format, v...) }
