package controllers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"smidr/smidr/middlewares"
	"smidr/smidr/sources/psql/dao"
	"smidr/smidr/sources/session"
	"smidr/smidr/types"
	"smidr/smidr/utils/logging"
)

var (
	ErrMissingCredentials = errors.New("missing_credentials")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrTooManyAttempts    = errors.New("too_many_attempts")
)

type AuthController struct {
	users    *dao.UserDAO
	sessions session.Store
	auth     *middlewares.Authenticator
	limiter  *loginLimiter
}

func NewAuthController(users *dao.UserDAO, sessions session.Store, auth *middlewares.Authenticator, perMinute int) *AuthController {
	return &AuthController{
		users:    users,
		sessions: sessions,
		auth:     auth,
		limiter:  newLoginLimiter(perMinute),
	}
}

// Login verifies credentials and opens a session. remote keys the attempt throttle.
func (c *AuthController) Login(ctx context.Context, remote string, req types.LoginRequest) (*session.Session, *types.LoginResponse, error) {
	defer logging.LogDuration(ctx, "auth_login")()
	name := strings.TrimSpace(req.Name())
	if name == "" || req.Password == "" {
		return nil, nil, ErrMissingCredentials
	}
	if !c.limiter.allow(remote) {
		logging.AppLogger.Warn("login throttled", zap.String("remote", remote))
		return nil, nil, ErrTooManyAttempts
	}

	user, err := c.users.Authenticate(ctx, name, req.Password)
	if errors.Is(err, dao.ErrInvalidCredentials) {
		logging.AppLogger.Info("login failed", zap.String("user", name), zap.String("remote", remote))
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	sess, err := c.sessions.Create(ctx, session.Identity{Username: user.Username, Pages: user.Pages})
	if err != nil {
		return nil, nil, err
	}
	accessToken, err := c.auth.SignAccessToken(sess)
	if err != nil {
		c.sessions.Revoke(ctx, sess.Token)
		return nil, nil, err
	}
	logging.AppLogger.Info("login succeeded", zap.String("user", user.Username))
	return sess, &types.LoginResponse{
		OK:          true,
		User:        sess.Identity,
		Token:       accessToken,
		AccessToken: accessToken,
		ExpiresAt:   sess.ExpiresAt.Unix(),
	}, nil
}

// Logout revokes token. Unknown or empty tokens are fine.
func (c *AuthController) Logout(ctx context.Context, token string) {
	if token == "" {
		return
	}
	c.sessions.Revoke(ctx, token)
}

// Session describes the caller's session; sess is nil when unauthenticated.
func (c *AuthController) Session(sess *session.Session, code string) *types.SessionResponse {
	if sess == nil {
		return &types.SessionResponse{Authenticated: false, AllowedPages: []string{}, Error: code}
	}
	identity := sess.Identity
	pages := identity.Pages
	if pages == nil {
		pages = []string{}
	}
	return &types.SessionResponse{
		Authenticated: true,
		Identity:      identity.Username,
		Username:      identity.Username,
		User:          &identity,
		AllowedPages:  pages,
	}
}

// loginLimiter throttles login attempts per remote address.
type loginLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 10 * time.Minute

func newLoginLimiter(perMinute int) *loginLimiter {
	if perMinute <= 0 {
		return &loginLimiter{limit: rate.Inf}
	}
	return &loginLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		limiters: make(map[string]*limiterEntry),
	}
}

func (l *loginLimiter) allow(remote string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(l.limiters, key)
		}
	}
	e, ok := l.limiters[remote]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[remote] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
