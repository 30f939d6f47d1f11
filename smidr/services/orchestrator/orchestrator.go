// Package orchestrator drives the provider's thread, message, run and poll protocol
// on behalf of an authenticated session, and the single-shot stateless chat.
//
// The orchestrator owns no goroutines or timers. Polling is caller-driven: each Poll
// performs at most one run lookup (plus one message listing when the run completed).
package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"smidr/smidr/services/provider"
	"smidr/smidr/sources/session"
	"smidr/smidr/utils/logging"
)

type Mode string

const (
	ModeThread    Mode = "thread"
	ModeStateless Mode = "stateless"
)

const (
	NoTextualContent = "(no textual content)"
	NoResponse       = "No response"

	metadataSource = "smidr-web"
)

// Provider is the subset of provider.Client the orchestrator calls.
type Provider interface {
	// Configured reports whether requests can be signed at all.
	Configured() bool
	CreateThread(ctx context.Context) (*provider.Thread, error)
	PostMessage(ctx context.Context, threadID, content string) (*provider.Message, error)
	CreateRun(ctx context.Context, threadID, assistantID string) (*provider.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*provider.Run, error)
	ListMessages(ctx context.Context, threadID string) (*provider.MessageList, error)
	CreateResponse(ctx context.Context, req provider.ResponseRequest) (*provider.Response, error)
}

type Config struct {
	Mode        Mode
	AssistantID string
	AgentID     string
	Model       string
}

type Orchestrator struct {
	provider      Provider
	conversations *session.Conversations
	cfg           Config
}

func New(p Provider, conversations *session.Conversations, cfg Config) *Orchestrator {
	if cfg.Mode == "" {
		cfg.Mode = ModeThread
	}
	return &Orchestrator{provider: p, conversations: conversations, cfg: cfg}
}

func (o *Orchestrator) Mode() Mode {
	return o.cfg.Mode
}

type SubmitResult struct {
	Status   provider.RunStatus `json:"status"`
	RunID    string             `json:"run_id"`
	ThreadID string             `json:"thread_id"`
}

type PollResult struct {
	Status    provider.RunStatus `json:"status"`
	Reply     *string            `json:"reply,omitempty"`
	LastError string             `json:"last_error,omitempty"`
}

// Terminal reports whether polling this run again is pointless.
func (r *PollResult) Terminal() bool {
	return r.Status.Terminal()
}

type ChatResult struct {
	Reply        string                  `json:"reply"`
	Conversation []provider.InputMessage `json:"conversation"`
}

// Submit posts message to the session's thread, creating the thread on first use,
// then starts a run. The message post is acknowledged before the run is requested.
func (o *Orchestrator) Submit(ctx context.Context, sess *session.Session, message string) (*SubmitResult, error) {
	defer logging.LogDuration(ctx, "orchestrator_submit")()
	if sess == nil {
		return nil, newError(CodeUnauthorized, http.StatusUnauthorized, nil)
	}
	if o.cfg.Mode != ModeThread {
		return nil, newError(CodeModeDisabled, http.StatusConflict, nil)
	}
	if strings.TrimSpace(message) == "" {
		return nil, newError(CodeMissingMessage, http.StatusBadRequest, nil)
	}
	if !o.provider.Configured() {
		return nil, newError(CodeConfigurationMissing, http.StatusInternalServerError, nil)
	}
	if o.cfg.AssistantID == "" {
		return nil, newError(CodeAssistantNotConfigured, http.StatusInternalServerError, nil)
	}

	threadID, ok := o.conversations.Thread(sess.Token)
	if !ok {
		thread, err := o.provider.CreateThread(ctx)
		if err != nil {
			logging.ErrorLogger.Error("create thread failed", zap.String("user", sess.Identity.Username), zap.Error(err))
			return nil, upstream(CodeThreadCreationFailed, err)
		}
		threadID = o.conversations.BindThread(sess.Token, thread.ID)
		logging.AppLogger.Info("thread created", zap.String("user", sess.Identity.Username), zap.String("thread_id", threadID))
	}

	if _, err := o.provider.PostMessage(ctx, threadID, message); err != nil {
		logging.ErrorLogger.Error("post message failed", zap.String("thread_id", threadID), zap.Error(err))
		return nil, upstream(CodeMessageFailed, err)
	}

	// From here on the message is recorded provider-side. A failed run start is
	// reported, not retried, and the message is not removed.
	run, err := o.provider.CreateRun(ctx, threadID, o.cfg.AssistantID)
	if err != nil {
		logging.ErrorLogger.Error("create run failed", zap.String("thread_id", threadID), zap.Error(err))
		return nil, upstream(CodeRunStartFailed, err)
	}
	o.conversations.AddRun(sess.Token, run.ID)

	status := run.Status
	if status == "" {
		status = provider.RunStatusQueued
	}
	logging.AppLogger.Info("run submitted",
		zap.String("user", sess.Identity.Username),
		zap.String("thread_id", threadID),
		zap.String("run_id", run.ID),
	)
	return &SubmitResult{Status: status, RunID: run.ID, ThreadID: threadID}, nil
}

// Poll observes runID once. Runs not submitted through this session are not found.
// Terminal outcomes are frozen, so later polls repeat them without provider calls.
func (o *Orchestrator) Poll(ctx context.Context, sess *session.Session, runID string) (*PollResult, error) {
	defer logging.LogDuration(ctx, "orchestrator_poll")()
	if sess == nil {
		return nil, newError(CodeUnauthorized, http.StatusUnauthorized, nil)
	}
	if o.cfg.Mode != ModeThread {
		return nil, newError(CodeModeDisabled, http.StatusConflict, nil)
	}
	threadID, outcome, ok := o.conversations.Run(sess.Token, runID)
	if !ok {
		return nil, newError(CodeNotFound, http.StatusNotFound, errors.New("unknown run "+runID))
	}
	if outcome != nil {
		return fromOutcome(*outcome), nil
	}

	run, err := o.provider.GetRun(ctx, threadID, runID)
	if err != nil {
		logging.ErrorLogger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		return nil, classify(err)
	}
	if !run.Status.Terminal() {
		return &PollResult{Status: run.Status}, nil
	}

	final := session.Outcome{Status: string(run.Status)}
	if run.Status == provider.RunStatusCompleted {
		list, err := o.provider.ListMessages(ctx, threadID)
		if err != nil {
			logging.ErrorLogger.Error("list messages failed", zap.String("thread_id", threadID), zap.Error(err))
			return nil, classify(err)
		}
		final.Reply = LatestAssistantText(list.Data, runID)
		final.HasReply = true
	} else if run.LastError != nil {
		final.LastError = run.LastError.Message
	}
	final = o.conversations.Finish(sess.Token, runID, final)
	logging.AppLogger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", final.Status),
	)
	return fromOutcome(final), nil
}

// ChatOnce sends caller-owned history plus message as one blocking request.
// Nothing is kept server-side; the extended history is returned to the caller.
func (o *Orchestrator) ChatOnce(ctx context.Context, sess *session.Session, history []provider.InputMessage, message string) (*ChatResult, error) {
	defer logging.LogDuration(ctx, "orchestrator_chat_once")()
	if sess == nil {
		return nil, newError(CodeUnauthorized, http.StatusUnauthorized, nil)
	}
	if strings.TrimSpace(message) == "" {
		return nil, newError(CodeMissingMessage, http.StatusBadRequest, nil)
	}
	if o.cfg.Mode != ModeStateless {
		return nil, newError(CodeModeDisabled, http.StatusConflict, nil)
	}
	if !o.provider.Configured() {
		return nil, newError(CodeConfigurationMissing, http.StatusInternalServerError, nil)
	}
	if o.cfg.AgentID == "" && o.cfg.Model == "" {
		return nil, newError(CodeModelNotConfigured, http.StatusInternalServerError, nil)
	}

	input := make([]provider.InputMessage, 0, len(history)+1)
	for _, m := range history {
		if m.Role == "" || m.Content == "" {
			continue
		}
		input = append(input, m)
	}
	input = append(input, provider.InputMessage{Role: "user", Content: message})

	req := provider.ResponseRequest{
		Input: input,
		Metadata: map[string]string{
			"user":   sess.Identity.Username,
			"source": metadataSource,
		},
	}
	if o.cfg.AgentID != "" {
		req.AgentID = o.cfg.AgentID
	} else {
		req.Model = o.cfg.Model
	}

	resp, err := o.provider.CreateResponse(ctx, req)
	if err != nil {
		logging.ErrorLogger.Error("chat failed", zap.String("user", sess.Identity.Username), zap.Error(err))
		return nil, upstream(CodeChatFailed, err)
	}
	reply := ResponseText(resp)
	return &ChatResult{
		Reply:        reply,
		Conversation: append(input, provider.InputMessage{Role: "assistant", Content: reply}),
	}, nil
}

func fromOutcome(out session.Outcome) *PollResult {
	r := &PollResult{Status: provider.RunStatus(out.Status), LastError: out.LastError}
	if out.HasReply {
		reply := out.Reply
		r.Reply = &reply
	}
	return r
}
