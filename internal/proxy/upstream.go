package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// UpstreamClient sends requests to the OpenAI-compatible backend.
type UpstreamClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewUpstreamClient creates an UpstreamClient with a transport configured for
// connection pooling and keep-alive.
func NewUpstreamClient(baseURL, apiKey string) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // unlimited
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // avoid unnecessary decompress/recompress
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   0, // no global timeout; streaming can be long-lived
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Do sends a request to the upstream with Bearer auth and returns the
// response. The caller is responsible for closing the response body.
func (c *UpstreamClient) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.client.Do(req)
}
