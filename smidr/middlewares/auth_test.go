package middlewares

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smidr/smidr/sources/session"
)

const testSecret = "test-secret"

func protected(a *Authenticator) http.Handler {
	return AuthMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		w.Write([]byte(sess.Identity.Username))
	}))
}

func errorCodeOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestAuthMiddlewareCookie(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	a := &Authenticator{Store: store, JWTSecret: testSecret}
	sess, err := store.Create(context.Background(), session.Identity{Username: "alice"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sess.Token})
	rr := httptest.NewRecorder()
	protected(a).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "alice", rr.Body.String())
}

func TestAuthMiddlewareBearer(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	a := &Authenticator{Store: store, JWTSecret: testSecret}
	sess, err := store.Create(context.Background(), session.Identity{Username: "bob"})
	require.NoError(t, err)
	signed, err := a.SignAccessToken(sess)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	protected(a).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "bob", rr.Body.String())

	// the store stays authoritative: a revoked session rejects a still-valid JWT
	store.Revoke(context.Background(), sess.Token)
	rr = httptest.NewRecorder()
	protected(a).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, CodeInvalidSession, errorCodeOf(t, rr))
}

func TestStaleCookieFallsBackToBearer(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	a := &Authenticator{Store: store, JWTSecret: testSecret}
	stale, err := store.Create(context.Background(), session.Identity{Username: "old"})
	require.NoError(t, err)
	store.Revoke(context.Background(), stale.Token)
	live, err := store.Create(context.Background(), session.Identity{Username: "erin"})
	require.NoError(t, err)
	signed, err := a.SignAccessToken(live)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: stale.Token})
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	protected(a).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "erin", rr.Body.String())

	// a live cookie still wins over the header
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: live.Token})
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	protected(a).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	// both bad: the cookie's failure is reported
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: stale.Token})
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	protected(a).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, CodeInvalidSession, errorCodeOf(t, rr))
}

func TestAuthMiddlewareRejections(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	store := session.NewMemoryStore(time.Hour, session.WithClock(func() time.Time { return clock() }))
	a := &Authenticator{Store: store, JWTSecret: testSecret}
	sess, err := store.Create(context.Background(), session.Identity{Username: "carol"})
	require.NoError(t, err)

	wrongKey := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ID: sess.Token})
	forged, err := wrongKey.SignedString([]byte("other"))
	require.NoError(t, err)

	expiredJWT := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sess.Token,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	expiredSigned, err := expiredJWT.SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := []struct {
		name   string
		cookie string
		auth   string
		code   string
	}{
		{"nothing", "", "", CodeNotAuthenticated},
		{"unknown cookie", "deadbeef", "", CodeInvalidSession},
		{"not bearer", "", "Basic abc", CodeInvalidSession},
		{"garbage jwt", "", "Bearer not.a.jwt", CodeInvalidSession},
		{"forged jwt", "", "Bearer " + forged, CodeInvalidSession},
		{"expired jwt", "", "Bearer " + expiredSigned, CodeSessionExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tc.cookie})
			}
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rr := httptest.NewRecorder()
			protected(a).ServeHTTP(rr, req)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, tc.code, errorCodeOf(t, rr))
		})
	}

	t.Run("expired session", func(t *testing.T) {
		clock = func() time.Time { return now.Add(time.Hour) }
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sess.Token})
		rr := httptest.NewRecorder()
		protected(a).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, CodeSessionExpired, errorCodeOf(t, rr))
	})
}

func TestBearerDisabledWithoutSecret(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	a := &Authenticator{Store: store}
	sess, err := store.Create(context.Background(), session.Identity{Username: "dave"})
	require.NoError(t, err)

	signed, err := a.SignAccessToken(sess)
	require.NoError(t, err)
	assert.Empty(t, signed)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rr := httptest.NewRecorder()
	protected(a).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequestLoggingSetsTraceID(t *testing.T) {
	var seen string
	h := RequestLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	seen = rr.Header().Get(TraceHeader)
	assert.Len(t, seen, 36)
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
