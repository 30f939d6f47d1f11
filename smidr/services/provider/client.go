package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	httputils "smidr/smidr/utils/http"
	"smidr/smidr/utils/logging"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"

	assistantsBeta = "assistants=v2"
	chatKitBeta    = "chatkit_beta=v1"
)

// Client issues signed calls against an OpenAI-compatible API. It holds no
// conversation state and never retries.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// CreateThread opens a new provider-side conversation.
func (c *Client) CreateThread(ctx context.Context) (*Thread, error) {
	defer logging.LogDuration(ctx, "provider_create_thread")()
	var t Thread
	if err := c.call(ctx, "create thread", http.MethodPost, "/threads", assistantsBeta, struct{}{}, &t); err != nil {
		return nil, err
	}
	if t.ID == "" {
		return nil, &ProtocolError{Op: "create thread", Reason: "missing id"}
	}
	return &t, nil
}

// PostMessage appends a user message to a thread.
func (c *Client) PostMessage(ctx context.Context, threadID, content string) (*Message, error) {
	defer logging.LogDuration(ctx, "provider_post_message")()
	req := map[string]string{"role": "user", "content": content}
	var m Message
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.call(ctx, "post message", http.MethodPost, path, assistantsBeta, req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateRun starts an assistant run on a thread.
func (c *Client) CreateRun(ctx context.Context, threadID, assistantID string) (*Run, error) {
	defer logging.LogDuration(ctx, "provider_create_run")()
	req := map[string]string{"assistant_id": assistantID}
	var r Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs"
	if err := c.call(ctx, "create run", http.MethodPost, path, assistantsBeta, req, &r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		return nil, &ProtocolError{Op: "create run", Reason: "missing id"}
	}
	return &r, nil
}

// GetRun reads a run's current status.
func (c *Client) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	defer logging.LogDuration(ctx, "provider_get_run")()
	var r Run
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID)
	if err := c.call(ctx, "get run", http.MethodGet, path, assistantsBeta, nil, &r); err != nil {
		return nil, err
	}
	if r.Status == "" {
		return nil, &ProtocolError{Op: "get run", Reason: "missing status"}
	}
	return &r, nil
}

// ListMessages returns a thread's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, threadID string) (*MessageList, error) {
	defer logging.LogDuration(ctx, "provider_list_messages")()
	var l MessageList
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=desc"
	if err := c.call(ctx, "list messages", http.MethodGet, path, assistantsBeta, nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateResponse performs one blocking completion against /responses.
func (c *Client) CreateResponse(ctx context.Context, req ResponseRequest) (*Response, error) {
	defer logging.LogDuration(ctx, "provider_create_response")()
	var r Response
	if err := c.call(ctx, "create response", http.MethodPost, "/responses", "", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateChatKitSession mints a short-lived client secret for a ChatKit workflow.
func (c *Client) CreateChatKitSession(ctx context.Context, workflowID string) (*ChatKitSession, error) {
	defer logging.LogDuration(ctx, "provider_create_chatkit_session")()
	req := map[string]string{"workflow_id": workflowID}
	var s ChatKitSession
	if err := c.call(ctx, "create chatkit session", http.MethodPost, "/chatkit/sessions", chatKitBeta, req, &s); err != nil {
		return nil, err
	}
	if s.ClientSecret == "" {
		return nil, &ProtocolError{Op: "create chatkit session", Reason: "missing client_secret"}
	}
	return &s, nil
}

func (c *Client) call(ctx context.Context, op, method, path, beta string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		payload = b
	}

	resp, err := httputils.Do(ctx, c.httpClient, method, c.baseURL+path, c.headers(beta), payload)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if !resp.OK() {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: rawBody(resp.Body)}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return &ProtocolError{Op: op, Reason: "undecodable body: " + err.Error(), Body: rawBody(resp.Body)}
		}
	}
	return nil
}

func (c *Client) headers(beta string) map[string]string {
	h := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + c.apiKey,
	}
	if beta != "" {
		h["OpenAI-Beta"] = beta
	}
	return h
}
