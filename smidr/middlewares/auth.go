package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"smidr/smidr/sources/session"
	httputils "smidr/smidr/utils/http"
	"smidr/smidr/utils/logging"
)

type contextKey string

const SessionKey contextKey = "session"

const SessionCookie = "session_token"

const (
	CodeNotAuthenticated = "not_authenticated"
	CodeSessionExpired   = "session_expired"
	CodeInvalidSession   = "invalid_session"
)

var (
	errNoCredentials = errors.New("no session credentials")
	errBadBearer     = errors.New("invalid bearer token")
)

// SessionFromContext returns the session AuthMiddleware attached, or nil.
func SessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(SessionKey).(*session.Session)
	return sess
}

// Authenticator resolves request credentials against the session store.
// A JWT is only a carrier for the opaque token in its jti claim.
type Authenticator struct {
	Store     session.Store
	JWTSecret string
}

// SignAccessToken issues an HS256 JWT for sess, expiring with it.
func (a *Authenticator) SignAccessToken(sess *session.Session) (string, error) {
	if a.JWTSecret == "" {
		return "", nil
	}
	claims := jwt.RegisteredClaims{
		ID:        sess.Token,
		Subject:   sess.Identity.Username,
		IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.JWTSecret))
}

// Token extracts the opaque session token from the cookie or the bearer JWT.
func (a *Authenticator) Token(r *http.Request) (string, error) {
	if token := cookieToken(r); token != "" {
		return token, nil
	}
	return a.bearerToken(r)
}

func cookieToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (a *Authenticator) bearerToken(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errNoCredentials
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || a.JWTSecret == "" {
		return "", errBadBearer
	}
	token, err := jwt.ParseWithClaims(parts[1], &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(a.JWTSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", session.ErrExpired
		}
		return "", errBadBearer
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ID == "" {
		return "", errBadBearer
	}
	return claims.ID, nil
}

// Resolve returns the live session for r. The cookie is tried first; when it does
// not resolve, a bearer JWT sent alongside it still can. Failures report the cookie.
func (a *Authenticator) Resolve(r *http.Request) (*session.Session, error) {
	cookie := cookieToken(r)
	if cookie == "" {
		token, err := a.bearerToken(r)
		if err != nil {
			return nil, err
		}
		return a.Store.Resolve(r.Context(), token)
	}
	sess, err := a.Store.Resolve(r.Context(), cookie)
	if err == nil || r.Header.Get("Authorization") == "" {
		return sess, err
	}
	token, berr := a.bearerToken(r)
	if berr != nil {
		return nil, err
	}
	if sess, berr := a.Store.Resolve(r.Context(), token); berr == nil {
		return sess, nil
	}
	return nil, err
}

// errorCode maps a Resolve failure to its 401 code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errNoCredentials):
		return CodeNotAuthenticated
	case errors.Is(err, session.ErrExpired):
		return CodeSessionExpired
	default:
		return CodeInvalidSession
	}
}

// AuthError reports why r is not authenticated, or "" when it is.
func (a *Authenticator) AuthError(r *http.Request) (*session.Session, string) {
	sess, err := a.Resolve(r)
	if err != nil {
		return nil, errorCode(err)
	}
	return sess, ""
}

func AuthMiddleware(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, code := a.AuthError(r)
			if code != "" {
				logging.RequestLogger.Info("request rejected",
					zap.String("path", r.URL.Path),
					zap.String("reason", code),
					zap.String("trace_id", logging.TraceID(r.Context())),
				)
				httputils.WriteError(w, http.StatusUnauthorized, code, nil)
				return
			}
			ctx := context.WithValue(r.Context(), SessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
