package routes

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"smidr/smidr/controllers"
	"smidr/smidr/middlewares"
	"smidr/smidr/services/orchestrator"
	httputils "smidr/smidr/utils/http"
	"smidr/smidr/utils/logging"
)

const CodeInternal = "internal_error"

// Options carries the boundary settings that are not owned by a controller.
type Options struct {
	CookieSecure   bool
	CookieSameSite http.SameSite
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// APIRoutes serves everything under /api.
func APIRoutes(auth *controllers.AuthController, chat *controllers.ChatController, authn *middlewares.Authenticator, opts Options) chi.Router {
	r := chi.NewRouter()
	r.Group(func(gr chi.Router) {
		if opts.RequestTimeout > 0 {
			gr.Use(middleware.Timeout(opts.RequestTimeout))
		}
		authRoutes(gr, auth, authn, opts)
		chatRoutes(gr, chat, authn)
	})
	// long-lived, so outside the request timeout
	r.Get("/runs/{run_id}/watch", watchHandler(chat, authn, opts.AllowedOrigins))
	return r
}

// generic wrapper to reduce boilerplate
func handleJSON(handler func(r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			writeError(w, r, status, err)
			return
		}
		httputils.WriteJSON(w, status, res)
	}
}

// writeError renders err as the JSON error envelope. Orchestrator errors carry
// their own status; status is the fallback for everything else.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	var oerr *orchestrator.Error
	if errors.As(err, &oerr) {
		httputils.WriteError(w, oerr.Status, string(oerr.Code), oerr.Details)
		return
	}
	code := err.Error()
	switch {
	case errors.Is(err, controllers.ErrMissingCredentials):
		status = http.StatusBadRequest
	case errors.Is(err, controllers.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, controllers.ErrTooManyAttempts):
		status = http.StatusTooManyRequests
	default:
		if status == 0 || status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			logging.ErrorLogger.Error("request failed",
				zap.String("path", r.URL.Path),
				zap.String("trace_id", logging.TraceID(r.Context())),
				zap.Error(err),
			)
			code = CodeInternal
		}
	}
	httputils.WriteError(w, status, code, nil)
}

// remoteHost strips the port chi's RealIP leaves on RemoteAddr.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
