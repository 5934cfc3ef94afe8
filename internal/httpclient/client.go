package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Doer is the request surface the polling engine and the interceptor depend on.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// SessionProvider returns the bearer token of the current session, or "" when
// no session exists. An empty token means the Authorization header is omitted
// and the server decides whether to reject the call.
type SessionProvider func(ctx context.Context) (string, error)

// StaticSession always yields the same token.
func StaticSession(token string) SessionProvider {
	return func(context.Context) (string, error) { return token, nil }
}

type Request struct {
	Method  string
	Path    string
	Params  url.Values
	Headers map[string]string
	Body    any // JSON-encoded when non-nil
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// Options configures a Client.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables the limiter
	HTTPClient        *http.Client
}

// Client issues JSON requests against one backend base URL.
type Client struct {
	baseURL *url.URL
	session SessionProvider
	http    *http.Client
	limiter *rate.Limiter
}

var _ Doer = (*Client)(nil)

func New(baseURL string, session SessionProvider, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if session == nil {
		session = StaticSession("")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{baseURL: u, session: session, http: hc}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// BaseURL returns the backend root the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do sends the request. Transport failures return a nil Response. Non-2xx
// answers return both the Response and a *StatusError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", req.Method, req.Path, err)
	}
	log.Debugf("%s %s -> %d (%s)", req.Method, req.Path, httpResp.StatusCode, time.Since(started).Round(time.Millisecond))

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, newStatusError(req, resp)
	}
	return resp, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Params) > 0 {
		u.RawQuery = req.Params.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, req.Path, err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, req.Path, err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	token, err := c.session(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}
