package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smidr/smidr/services/provider"
	"smidr/smidr/utils/color"
)

// fakeServer mimics the smidr HTTP API closely enough for the CLI.
func fakeServer(t *testing.T, pendingPolls int32) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"invalid_credentials"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session_token", Value: "tok", Path: "/"})
		w.Write([]byte(`{"ok":true,"user":{"username":"alice"}}`))
	})
	requireCookie := func(w http.ResponseWriter, r *http.Request) bool {
		if c, err := r.Cookie("session_token"); err != nil || c.Value != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"not_authenticated"}`))
			return false
		}
		return true
	}
	mux.HandleFunc("/api/threads/messages", func(w http.ResponseWriter, r *http.Request) {
		if requireCookie(w, r) {
			w.Write([]byte(`{"status":"queued","run_id":"run_1","thread_id":"thread_1"}`))
		}
	})
	mux.HandleFunc("/api/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		if !requireCookie(w, r) {
			return
		}
		if atomic.AddInt32(&polls, 1) <= pendingPolls {
			w.Write([]byte(`{"status":"in_progress"}`))
			return
		}
		w.Write([]byte(`{"status":"completed","reply":"hi alice"}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if !requireCookie(w, r) {
			return
		}
		var req struct {
			Message      string                  `json:"message"`
			Conversation []provider.InputMessage `json:"conversation"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		conv := append(req.Conversation, provider.InputMessage{Role: "user", Content: req.Message}, provider.InputMessage{Role: "assistant", Content: "echo " + req.Message})
		json.NewEncoder(w).Encode(map[string]any{"reply": "echo " + req.Message, "conversation": conv})
	})
	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestClientSubmitAndWait(t *testing.T) {
	srv, polls := fakeServer(t, 2)
	client, err := newAPIClient(srv.URL, 5*time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Submit(ctx, "hello")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "not_authenticated", apiErr.Code)

	_, err = client.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	sub, err := client.Submit(ctx, "hello")
	require.NoError(t, err)
	res, err := client.WaitReply(ctx, sub.RunID, time.Millisecond, 10)
	require.NoError(t, err)
	require.NotNil(t, res.Reply)
	assert.Equal(t, "hi alice", *res.Reply)
	assert.Equal(t, int32(3), atomic.LoadInt32(polls))
}

func TestClientWaitGivesUp(t *testing.T) {
	srv, _ := fakeServer(t, 100)
	client, err := newAPIClient(srv.URL, 5*time.Second)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = client.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	_, err = client.WaitReply(ctx, "run_1", time.Millisecond, 3)
	assert.ErrorContains(t, err, "did not finish after 3 polls")
}

func TestClientLoginRejected(t *testing.T) {
	srv, _ := fakeServer(t, 0)
	client, err := newAPIClient(srv.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "alice", "nope")
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_credentials", apiErr.Code)
}

func TestNewAPIClientRejectsBadURL(t *testing.T) {
	_, err := newAPIClient("localhost:8080", time.Second)
	assert.Error(t, err)
}

func TestAskCommandOneShot(t *testing.T) {
	color.Disable()
	srv, _ := fakeServer(t, 0)
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out)
	cmd.SetArgs([]string{"ask", "--server", srv.URL, "--user", "alice", "--password", "pw", "how", "are", "you"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "signed in as alice")
	assert.Contains(t, out.String(), "echo how are you")
}

func TestChatCommandREPL(t *testing.T) {
	color.Disable()
	srv, _ := fakeServer(t, 1)
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader("hello\n\nexit\n"), &out)
	cmd.SetArgs([]string{"chat", "--server", srv.URL, "--user", "alice", "--password", "pw", "--interval", "1ms"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "hi alice")
}
