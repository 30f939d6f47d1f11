package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"smidr/smidr/controllers"
	"smidr/smidr/middlewares"
	"smidr/smidr/services/orchestrator"
	"smidr/smidr/types"
	httputils "smidr/smidr/utils/http"
	"smidr/smidr/utils/logging"
)

func chatRoutes(r chi.Router, ctrl *controllers.ChatController, authn *middlewares.Authenticator) {
	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(authn))

		gr.Post("/threads/messages", handleJSON(func(r *http.Request) (any, int, error) {
			var req types.SubmitRequest
			// an unreadable body is reported as a missing message
			_ = json.NewDecoder(r.Body).Decode(&req)
			sess := middlewares.SessionFromContext(r.Context())
			res, err := ctrl.Submit(r.Context(), sess, req)
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return res, http.StatusOK, nil
		}))

		gr.Get("/runs/{run_id}", handleJSON(func(r *http.Request) (any, int, error) {
			sess := middlewares.SessionFromContext(r.Context())
			res, err := ctrl.Poll(r.Context(), sess, chi.URLParam(r, "run_id"))
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return res, http.StatusOK, nil
		}))

		gr.Post("/chat", handleJSON(func(r *http.Request) (any, int, error) {
			var req types.ChatRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			sess := middlewares.SessionFromContext(r.Context())
			res, err := ctrl.Chat(r.Context(), sess, req)
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return res, http.StatusOK, nil
		}))

		gr.Post("/chatkit/session", handleJSON(func(r *http.Request) (any, int, error) {
			sess := middlewares.SessionFromContext(r.Context())
			res, err := ctrl.ChatKitSession(r.Context(), sess)
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return res, http.StatusOK, nil
		}))
	})
}

// watchHandler streams poll observations for one run over a websocket. Auth
// failures are reported in-band, then the socket closes with a policy violation.
func watchHandler(ctrl *controllers.ChatController, authn *middlewares.Authenticator, origins []string) http.HandlerFunc {
	acceptOpts := acceptOptions(origins)
	return func(w http.ResponseWriter, r *http.Request) {
		sess, code := authn.AuthError(r)
		runID := chi.URLParam(r, "run_id")

		conn, err := websocket.Accept(w, r, acceptOpts)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		if code != "" {
			wsjson.Write(ctx, conn, httputils.ErrorBody{Error: code})
			conn.Close(websocket.StatusPolicyViolation, code)
			return
		}

		err = ctrl.Watch(ctx, sess, runID, func(res *orchestrator.PollResult) error {
			return wsjson.Write(ctx, conn, res)
		})
		if err == nil {
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		if errors.Is(err, context.Canceled) || websocket.CloseStatus(err) != -1 {
			return
		}
		var oerr *orchestrator.Error
		if !errors.As(err, &oerr) {
			logging.ErrorLogger.Error("watch failed", zap.String("run_id", runID), zap.Error(err))
			conn.Close(websocket.StatusInternalError, CodeInternal)
			return
		}
		wsjson.Write(ctx, conn, httputils.ErrorBody{Error: string(oerr.Code), Details: oerr.Details})
		conn.Close(websocket.StatusNormalClosure, string(oerr.Code))
	}
}

// acceptOptions turns the CORS allow-list into websocket origin patterns.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, origin := range origins {
		if origin == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		} else {
			opts.OriginPatterns = append(opts.OriginPatterns, strings.TrimSpace(origin))
		}
	}
	return opts
}
