// Package upstream talks HTTPS+protobuf to the Warp multi-agent service: one
// POST carrying a dynamically-encoded request, framed as SSE on the way
// back. Grounded on original_source/warp2protobuf/warp/api_client.py.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/nextlevelbuilder/warpbridge/internal/creds"
)

const endpointPath = "/ai/multi-agent"

// Timeouts per SPEC_FULL.md §4.11.
const (
	connectTimeout  = 5 * time.Second
	bufferedTimeout = 180 * time.Second
	streamIdleLimit = 60 * time.Second
)

// Client POSTs dynamically-encoded protobuf requests to the upstream and
// frames its SSE response.
type Client struct {
	URL           string
	ClientVersion string
	OSCategory    string
	OSName        string
	OSVersion     string

	Creds      *creds.Manager
	HTTPClient *http.Client
}

// New returns a Client configured for baseURL with HTTP/2 negotiated over
// TLS (falling back to HTTP/1.1), per SPEC_FULL.md §4.8. insecureTLS skips
// certificate verification; it is only ever set from WARP_INSECURE_TLS.
func New(baseURL, clientVersion, osCategory, osName, osVersion string, credsMgr *creds.Manager, insecureTLS bool) *Client {
	transport := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureTLS},
	}
	_ = http2.ConfigureTransport(transport)

	return &Client{
		URL:           baseURL,
		ClientVersion: clientVersion,
		OSCategory:    osCategory,
		OSName:        osName,
		OSVersion:     osVersion,
		Creds:         credsMgr,
		HTTPClient:    &http.Client{Transport: transport},
	}
}

// SendBuffered POSTs protoBytes and returns the full response under a
// 180s read deadline, retrying once on a recovered quota-exhaustion 429.
// The caller must close the returned response's body.
func (c *Client) SendBuffered(ctx context.Context, protoBytes []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, bufferedTimeout)
	defer cancel()
	resp, err := c.send(ctx, protoBytes)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("upstream: reading buffered response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// SendStream POSTs protoBytes and returns the response with its body
// wrapped in an idle-timeout reader: each individual Read refreshes a 60s
// deadline rather than bounding the stream's total duration, per
// SPEC_FULL.md §4.11 ("refreshed per-read"). Retries once on a recovered
// quota-exhaustion 429 before streaming begins.
func (c *Client) SendStream(ctx context.Context, protoBytes []byte) (*http.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.send(ctx, protoBytes)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = newIdleTimeoutReader(resp.Body, cancel, streamIdleLimit)
	return resp, nil
}

// send performs the POST, applying the quota-exhaustion retry policy:
// attempt 1 returns 429 with a quota-exhaustion body -> acquire a fresh
// anonymous identity -> attempt 2. Any other non-200 is returned verbatim
// for the caller to map (SPEC_FULL.md §7).
func (c *Client) send(ctx context.Context, protoBytes []byte) (*http.Response, error) {
	resp, err := c.attempt(ctx, protoBytes)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !creds.IsQuotaExhausted(resp.StatusCode, string(body)) {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return resp, nil
	}

	if _, err := c.Creds.AcquireAnonymousAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("upstream: quota recovery failed: %w", err)
	}
	return c.attempt(ctx, protoBytes)
}

func (c *Client) attempt(ctx context.Context, protoBytes []byte) (*http.Response, error) {
	jwt, err := c.Creds.GetValidJWT(ctx)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+endpointPath, bytes.NewReader(protoBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "text/event-stream")
	req.Header.Set("content-type", "application/x-protobuf")
	req.Header.Set("authorization", "Bearer "+jwt)
	req.Header.Set("x-warp-client-version", c.ClientVersion)
	req.Header.Set("x-warp-os-category", c.OSCategory)
	req.Header.Set("x-warp-os-name", c.OSName)
	req.Header.Set("x-warp-os-version", c.OSVersion)
	req.ContentLength = int64(len(protoBytes))

	return c.HTTPClient.Do(req)
}

// idleTimeoutReader cancels its owning context if no data arrives within
// timeout of the last successful Read, rather than bounding the stream's
// total lifetime.
type idleTimeoutReader struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	timer  *time.Timer
}

func newIdleTimeoutReader(body io.ReadCloser, cancel context.CancelFunc, timeout time.Duration) io.ReadCloser {
	r := &idleTimeoutReader{body: body, cancel: cancel}
	r.timer = time.AfterFunc(timeout, cancel)
	return r
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		r.timer.Reset(streamIdleLimit)
	}
	return n, err
}

func (r *idleTimeoutReader) Close() error {
	r.timer.Stop()
	r.cancel()
	return r.body.Close()
}
