package authbroker

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Response is the resource API's answer to an executed request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Executor performs authenticated calls against an organization's resource
// API: it attaches the broker's bearer token, forces exactly one refresh and
// one retry on a 401, and surfaces everything else as typed failures.
type Executor struct {
	broker *Broker
	client *http.Client
	log    *zap.SugaredLogger
}

type ExecutorOption func(*Executor)

// WithResourceClient sets the client used for resource API calls.
func WithResourceClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

func NewExecutor(broker *Broker, log *zap.SugaredLogger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		broker: broker,
		client: &http.Client{
			Timeout:   defaultSTSTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute issues method+path against the organization's resource API. path is
// relative to the configured base URL. A second 401 after the forced refresh
// returns *AuthenticationFailedError; non-401 error statuses return
// *UpstreamError.
func (e *Executor) Execute(ctx context.Context, orgID, apiType, method, path string, body []byte, header http.Header) (*Response, error) {
	g, err := e.broker.grant(ctx, orgID, apiType, false)
	if err != nil {
		return nil, err
	}
	resp, err := e.do(ctx, g, method, path, body, header)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusUnauthorized {
		e.log.Infow("token rejected upstream, forcing refresh", "org", orgID, "api", apiType)
		g, err = e.broker.grant(ctx, orgID, apiType, true)
		if err != nil {
			return nil, err
		}
		resp, err = e.do(ctx, g, method, path, body, header)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusUnauthorized {
			return nil, &AuthenticationFailedError{Status: resp.Status, Body: string(resp.Body)}
		}
	}
	if resp.Status >= 400 {
		return nil, &UpstreamError{Status: resp.Status, Body: string(resp.Body)}
	}
	return resp, nil
}

func (e *Executor) do(ctx context.Context, g cachedToken, method, path string, body []byte, header http.Header) (*Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.ResourceURL+path, rd)
	if err != nil {
		return nil, &TransportError{Op: "build resource request", Err: err}
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+g.AccessToken)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "resource call", Err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &TransportError{Op: "read resource response", Err: err}
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: b}, nil
}
