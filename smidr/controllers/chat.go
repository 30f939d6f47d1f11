package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"smidr/smidr/services/orchestrator"
	"smidr/smidr/services/provider"
	"smidr/smidr/sources/session"
	"smidr/smidr/types"
	"smidr/smidr/utils/logging"
)

const (
	CodeConfigurationMissing = orchestrator.CodeConfigurationMissing
	CodeChatKitFailed        = "chatkit_session_failed"
	CodeWatchTimeout         = "watch_timeout"
)

// ChatKitProvider opens ChatKit sessions. *provider.Client implements it.
type ChatKitProvider interface {
	Configured() bool
	CreateChatKitSession(ctx context.Context, workflowID string) (*provider.ChatKitSession, error)
}

type ChatController struct {
	orch         *orchestrator.Orchestrator
	chatkit      ChatKitProvider
	workflowID   string
	pollInterval time.Duration
	maxAttempts  int
}

func NewChatController(orch *orchestrator.Orchestrator, chatkit ChatKitProvider, workflowID string, pollInterval time.Duration, maxAttempts int) *ChatController {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	return &ChatController{
		orch:         orch,
		chatkit:      chatkit,
		workflowID:   workflowID,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

func (c *ChatController) Mode() orchestrator.Mode {
	return c.orch.Mode()
}

func (c *ChatController) Submit(ctx context.Context, sess *session.Session, req types.SubmitRequest) (*orchestrator.SubmitResult, error) {
	return c.orch.Submit(ctx, sess, req.Message)
}

func (c *ChatController) Poll(ctx context.Context, sess *session.Session, runID string) (*orchestrator.PollResult, error) {
	return c.orch.Poll(ctx, sess, runID)
}

func (c *ChatController) Chat(ctx context.Context, sess *session.Session, req types.ChatRequest) (*orchestrator.ChatResult, error) {
	return c.orch.ChatOnce(ctx, sess, req.Conversation, req.Message)
}

// Watch polls runID every poll interval and hands each observation to emit,
// stopping at the first terminal one, after maxAttempts, or when ctx ends.
func (c *ChatController) Watch(ctx context.Context, sess *session.Session, runID string, emit func(*orchestrator.PollResult) error) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		res, err := c.orch.Poll(ctx, sess, runID)
		if err != nil {
			return err
		}
		if err := emit(res); err != nil {
			return err
		}
		if res.Terminal() {
			return nil
		}
		if attempt >= c.maxAttempts {
			logging.AppLogger.Info("watch gave up", zap.String("run_id", runID), zap.Int("attempts", attempt))
			return &orchestrator.Error{Code: CodeWatchTimeout, Status: http.StatusGatewayTimeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ChatKitSession mints a client secret for the configured workflow.
func (c *ChatController) ChatKitSession(ctx context.Context, sess *session.Session) (*types.ChatKitSessionResponse, error) {
	if sess == nil {
		return nil, &orchestrator.Error{Code: orchestrator.CodeUnauthorized, Status: http.StatusUnauthorized}
	}
	if c.workflowID == "" || c.chatkit == nil || !c.chatkit.Configured() {
		return nil, &orchestrator.Error{Code: CodeConfigurationMissing, Status: http.StatusInternalServerError}
	}
	ck, err := c.chatkit.CreateChatKitSession(ctx, c.workflowID)
	if err != nil {
		logging.ErrorLogger.Error("chatkit session failed", zap.String("user", sess.Identity.Username), zap.Error(err))
		return nil, chatKitError(err)
	}
	return &types.ChatKitSessionResponse{ClientSecret: ck.ClientSecret}, nil
}

// chatKitError passes the provider's status through, as the browser widget expects.
func chatKitError(err error) *orchestrator.Error {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return &orchestrator.Error{Code: CodeChatKitFailed, Status: apiErr.StatusCode, Details: apiErr.Body, Err: err}
	}
	var transportErr *provider.TransportError
	if errors.As(err, &transportErr) {
		return &orchestrator.Error{Code: orchestrator.CodeUpstreamUnavailable, Status: http.StatusBadGateway, Err: err}
	}
	return &orchestrator.Error{Code: orchestrator.CodeUpstreamInvalidResponse, Status: http.StatusBadGateway, Err: err}
}
