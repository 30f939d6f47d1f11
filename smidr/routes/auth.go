package routes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"smidr/smidr/controllers"
	"smidr/smidr/middlewares"
	"smidr/smidr/types"
	httputils "smidr/smidr/utils/http"
)

func authRoutes(r chi.Router, ctrl *controllers.AuthController, authn *middlewares.Authenticator, opts Options) {
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, controllers.ErrMissingCredentials)
			return
		}
		sess, resp, err := ctrl.Login(r.Context(), remoteHost(r), req)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     middlewares.SessionCookie,
			Value:    sess.Token,
			Path:     "/",
			Expires:  sess.ExpiresAt,
			MaxAge:   int(sess.ExpiresAt.Sub(sess.IssuedAt).Seconds()),
			HttpOnly: true,
			Secure:   opts.CookieSecure,
			SameSite: opts.CookieSameSite,
		})
		httputils.WriteJSON(w, http.StatusOK, resp)
	})

	r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
		token, _ := authn.Token(r)
		if sess, err := authn.Resolve(r); err == nil {
			token = sess.Token
		}
		ctrl.Logout(r.Context(), token)
		http.SetCookie(w, &http.Cookie{
			Name:     middlewares.SessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   opts.CookieSecure,
			SameSite: opts.CookieSameSite,
		})
		httputils.WriteJSON(w, http.StatusOK, types.OKResponse{OK: true})
	})

	// 200 either way; the body says whether the caller is signed in
	r.Get("/session", handleJSON(func(r *http.Request) (any, int, error) {
		sess, code := authn.AuthError(r)
		return ctrl.Session(sess, code), http.StatusOK, nil
	}))
}
