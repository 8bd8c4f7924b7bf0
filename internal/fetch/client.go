package fetch

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/http2"
)

// DefaultMaxBodySize bounds how much of a response body is read.
const DefaultMaxBodySize = 4 << 20 // 4MB

// connection pooling limits to prevent resource exhaustion when a page holds many includes
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// ErrBodyTooLarge is returned when a response body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Response holds a fully read HTTP response made by [Client.Do].
type Response struct {
	// URL is the final request URL after redirects.
	URL string

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body contains the response body, limited to the client's max body size.
	Body []byte

	// Latency is the total time taken for the request.
	Latency time.Duration
}

// Options configures a [Client].
type Options struct {
	// HTTPClient is used for credentialed requests. If nil, a pooled client
	// with HTTP/2 support and an in-memory cookie jar is created.
	HTTPClient *http.Client

	// MaxBodySize limits response bodies read by Do. Zero means DefaultMaxBodySize.
	MaxBodySize int64
}

// Client issues the GET requests behind element loads.
//
// Client keeps two views over one transport: a credentialed client that sends
// and stores cookies through a jar, and an anonymous client with no jar. The
// caller picks one per request, which is how credentials modes are honored.
// Cancellation is per request via the request context; there is no global
// timeout.
type Client struct {
	credentialed *http.Client
	anonymous    *http.Client
	maxBodySize  int64
}

// NewClient creates a [Client].
//
// Without a caller-supplied HTTP client the transport is configured with
// connection pooling limits and HTTP/2:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient(opts Options) (*Client, error) {
	credentialed := opts.HTTPClient
	if credentialed == nil {
		transport := &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		}
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("failed to configure http2 transport: %w", err)
		}
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		credentialed = &http.Client{Transport: transport, Jar: jar}
	}

	anonymous := *credentialed
	anonymous.Jar = nil

	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}

	return &Client{
		credentialed: credentialed,
		anonymous:    &anonymous,
		maxBodySize:  maxBody,
	}, nil
}

// Do sends req and reads the whole response body.
//
// When withCredentials is false the request is sent without the cookie jar.
// Transport failures are returned wrapped; non-2xx statuses are not errors at
// this layer. Bodies larger than the limit fail with [ErrBodyTooLarge].
func (c *Client) Do(req *http.Request, withCredentials bool) (*Response, error) {
	start := time.Now()

	resp, err := c.Open(req, withCredentials)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	// read one byte past the limit to detect oversized bodies
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, c.maxBodySize)
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Latency:    time.Since(start),
	}, nil
}

// Open sends req and returns the response with its body unread, for
// long-lived streams. The caller must close the body.
func (c *Client) Open(req *http.Request, withCredentials bool) (*http.Response, error) {
	client := c.anonymous
	if withCredentials {
		client = c.credentialed
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but new
// connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.credentialed == nil {
		return
	}
	c.credentialed.CloseIdleConnections()
}
