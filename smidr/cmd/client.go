package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"smidr/smidr/services/orchestrator"
	"smidr/smidr/services/provider"
	"smidr/smidr/types"
	httputils "smidr/smidr/utils/http"
)

// apiError is a non-2xx answer from the smidr server.
type apiError struct {
	Status int
	Code   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Code)
}

// apiClient talks to a smidr server, keeping the session cookie in a jar.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(server string, timeout time.Duration) (*apiClient, error) {
	u, err := url.Parse(server)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", server)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &apiClient{
		base: strings.TrimSuffix(server, "/"),
		http: &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

func (c *apiClient) check(r *httputils.Response) error {
	if r.OK() {
		return nil
	}
	var body httputils.ErrorBody
	if err := json.Unmarshal(r.Body, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(r.Body))
	}
	return &apiError{Status: r.StatusCode, Code: body.Error}
}

func (c *apiClient) post(ctx context.Context, path string, body, out interface{}) error {
	r, err := httputils.PostJSON(ctx, c.http, c.base+path, body, out)
	if err != nil && r == nil {
		return err
	}
	if cerr := c.check(r); cerr != nil {
		return cerr
	}
	return err
}

func (c *apiClient) get(ctx context.Context, path string, out interface{}) error {
	r, err := httputils.GetJSON(ctx, c.http, c.base+path, out)
	if err != nil && r == nil {
		return err
	}
	if cerr := c.check(r); cerr != nil {
		return cerr
	}
	return err
}

func (c *apiClient) Login(ctx context.Context, user, password string) (*types.LoginResponse, error) {
	var resp types.LoginResponse
	if err := c.post(ctx, "/api/login", types.LoginRequest{Username: user, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Session(ctx context.Context) (*types.SessionResponse, error) {
	var resp types.SessionResponse
	if err := c.get(ctx, "/api/session", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Submit(ctx context.Context, message string) (*orchestrator.SubmitResult, error) {
	var resp orchestrator.SubmitResult
	if err := c.post(ctx, "/api/threads/messages", types.SubmitRequest{Message: message}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Poll(ctx context.Context, runID string) (*orchestrator.PollResult, error) {
	var resp orchestrator.PollResult
	if err := c.get(ctx, "/api/runs/"+url.PathEscape(runID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitReply polls runID every interval until it is terminal or attempts run out.
func (c *apiClient) WaitReply(ctx context.Context, runID string, interval time.Duration, attempts int) (*orchestrator.PollResult, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for i := 0; i < attempts; i++ {
		res, err := c.Poll(ctx, runID)
		if err != nil {
			return nil, err
		}
		if res.Terminal() {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, fmt.Errorf("run %s did not finish after %d polls", runID, attempts)
}

func (c *apiClient) Chat(ctx context.Context, history []provider.InputMessage, message string) (*orchestrator.ChatResult, error) {
	var resp orchestrator.ChatResult
	req := types.ChatRequest{Message: message, Conversation: history}
	if err := c.post(ctx, "/api/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) Logout(ctx context.Context) error {
	var resp types.OKResponse
	return c.post(ctx, "/api/logout", struct{}{}, &resp)
}
