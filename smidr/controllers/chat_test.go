package controllers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smidr/smidr/services/orchestrator"
	"smidr/smidr/services/provider"
	"smidr/smidr/sources/session"
)

type fakeChatKit struct {
	configured bool
	session    *provider.ChatKitSession
	err        error
	workflow   string
}

func (f *fakeChatKit) Configured() bool { return f.configured }

func (f *fakeChatKit) CreateChatKitSession(ctx context.Context, workflowID string) (*provider.ChatKitSession, error) {
	f.workflow = workflowID
	return f.session, f.err
}

// steppingProvider reports in_progress until a given number of polls, then completes.
type steppingProvider struct {
	polls       int
	completeAt  int
	neverFinish bool
}

func (p *steppingProvider) Configured() bool { return true }

func (p *steppingProvider) CreateThread(ctx context.Context) (*provider.Thread, error) {
	return &provider.Thread{ID: "thread_1"}, nil
}

func (p *steppingProvider) PostMessage(ctx context.Context, threadID, content string) (*provider.Message, error) {
	return &provider.Message{ID: "msg_1"}, nil
}

func (p *steppingProvider) CreateRun(ctx context.Context, threadID, assistantID string) (*provider.Run, error) {
	return &provider.Run{ID: "run_1", Status: provider.RunStatusQueued}, nil
}

func (p *steppingProvider) GetRun(ctx context.Context, threadID, runID string) (*provider.Run, error) {
	p.polls++
	if !p.neverFinish && p.polls >= p.completeAt {
		return &provider.Run{ID: runID, Status: provider.RunStatusCompleted}, nil
	}
	return &provider.Run{ID: runID, Status: provider.RunStatusInProgress}, nil
}

func (p *steppingProvider) ListMessages(ctx context.Context, threadID string) (*provider.MessageList, error) {
	return &provider.MessageList{Data: []provider.Message{{
		Role:      "assistant",
		CreatedAt: 1,
		Content:   []provider.ContentBlock{{Type: "text", Text: &provider.TextValue{Value: "done"}}},
	}}}, nil
}

func (p *steppingProvider) CreateResponse(ctx context.Context, req provider.ResponseRequest) (*provider.Response, error) {
	return nil, errors.New("not used")
}

func testSession() *session.Session {
	return &session.Session{Token: "tok", Identity: session.Identity{Username: "alice"}, ExpiresAt: time.Now().Add(time.Hour)}
}

func TestWatchStopsAtTerminal(t *testing.T) {
	p := &steppingProvider{completeAt: 3}
	orch := orchestrator.New(p, session.NewConversations(), orchestrator.Config{Mode: orchestrator.ModeThread, AssistantID: "asst"})
	ctrl := NewChatController(orch, nil, "", time.Millisecond, 10)
	sess := testSession()
	ctx := context.Background()

	sub, err := orch.Submit(ctx, sess, "hi")
	require.NoError(t, err)

	var seen []provider.RunStatus
	err = ctrl.Watch(ctx, sess, sub.RunID, func(r *orchestrator.PollResult) error {
		seen = append(seen, r.Status)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []provider.RunStatus{provider.RunStatusInProgress, provider.RunStatusInProgress, provider.RunStatusCompleted}, seen)
}

func TestWatchGivesUp(t *testing.T) {
	p := &steppingProvider{neverFinish: true}
	orch := orchestrator.New(p, session.NewConversations(), orchestrator.Config{Mode: orchestrator.ModeThread, AssistantID: "asst"})
	ctrl := NewChatController(orch, nil, "", time.Millisecond, 4)
	sess := testSession()
	ctx := context.Background()

	sub, err := orch.Submit(ctx, sess, "hi")
	require.NoError(t, err)

	count := 0
	err = ctrl.Watch(ctx, sess, sub.RunID, func(*orchestrator.PollResult) error {
		count++
		return nil
	})
	var oerr *orchestrator.Error
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, orchestrator.Code(CodeWatchTimeout), oerr.Code)
	assert.Equal(t, 4, count)
	assert.Equal(t, 4, p.polls)
}

func TestWatchUnknownRun(t *testing.T) {
	orch := orchestrator.New(&steppingProvider{}, session.NewConversations(), orchestrator.Config{Mode: orchestrator.ModeThread, AssistantID: "asst"})
	ctrl := NewChatController(orch, nil, "", time.Millisecond, 4)

	err := ctrl.Watch(context.Background(), testSession(), "run_x", func(*orchestrator.PollResult) error { return nil })
	var oerr *orchestrator.Error
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, orchestrator.CodeNotFound, oerr.Code)
}

func TestChatKitSession(t *testing.T) {
	orch := orchestrator.New(&steppingProvider{}, session.NewConversations(), orchestrator.Config{})
	ctx := context.Background()

	ck := &fakeChatKit{configured: true, session: &provider.ChatKitSession{ClientSecret: "cs_1"}}
	resp, err := NewChatController(orch, ck, "wf_1", 0, 0).ChatKitSession(ctx, testSession())
	require.NoError(t, err)
	assert.Equal(t, "cs_1", resp.ClientSecret)
	assert.Equal(t, "wf_1", ck.workflow)

	_, err = NewChatController(orch, ck, "", 0, 0).ChatKitSession(ctx, testSession())
	var oerr *orchestrator.Error
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, orchestrator.Code(CodeConfigurationMissing), oerr.Code)

	ck.err = &provider.APIError{Op: "create chatkit session", StatusCode: http.StatusForbidden, Body: []byte(`{"error":"no"}`)}
	_, err = NewChatController(orch, ck, "wf_1", 0, 0).ChatKitSession(ctx, testSession())
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, http.StatusForbidden, oerr.Status)
	assert.JSONEq(t, `{"error":"no"}`, string(oerr.Details))
}
