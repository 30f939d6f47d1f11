package httputils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Response is the raw outcome of an HTTP round trip.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do sends payload (may be nil) and reads the whole response body.
// A non-nil error always means the exchange itself failed (dial, TLS,
// timeout, body read); HTTP error statuses are returned in Response.
func Do(ctx context.Context, client *http.Client, method, url string, headers map[string]string, payload []byte) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if client == nil {
		client = http.DefaultClient
	}
	r, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: r.StatusCode, Header: r.Header, Body: b}, nil
}

// PostJSON marshals body, posts it and decodes a 2xx response into resp.
func PostJSON(ctx context.Context, client *http.Client, url string, body interface{}, resp interface{}) (*Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	r, err := Do(ctx, client, http.MethodPost, url, map[string]string{"Content-Type": "application/json"}, jsonBody)
	if err != nil {
		return nil, err
	}
	if r.OK() && resp != nil && len(r.Body) > 0 {
		if err := json.Unmarshal(r.Body, resp); err != nil {
			return r, fmt.Errorf("decode response: %w", err)
		}
	}
	return r, nil
}

// GetJSON issues a GET and decodes a 2xx response into resp.
func GetJSON(ctx context.Context, client *http.Client, url string, resp interface{}) (*Response, error) {
	r, err := Do(ctx, client, http.MethodGet, url, map[string]string{"Accept": "application/json"}, nil)
	if err != nil {
		return nil, err
	}
	if r.OK() && resp != nil && len(r.Body) > 0 {
		if err := json.Unmarshal(r.Body, resp); err != nil {
			return r, fmt.Errorf("decode response: %w", err)
		}
	}
	return r, nil
}
