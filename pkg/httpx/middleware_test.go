package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/marquee/pkg/httpx"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	tokens map[string]httpx.Principal
}

func (s stubAuth) Authenticate(_ context.Context, token string) (httpx.Principal, error) {
	if p, ok := s.tokens[token]; ok {
		return p, nil
	}
	return httpx.Principal{}, errors.New("nope")
}

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := httpx.PrincipalFrom(r.Context())
		if !ok {
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"account_id": ""})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"account_id": p.AccountID})
	})
}

func TestAuthenticateMiddleware(t *testing.T) {
	auth := stubAuth{tokens: map[string]httpx.Principal{
		"good":  {AccountID: "acc-1", Groups: []string{"user"}},
		"admin": {AccountID: "acc-2", Groups: []string{"user", "admin"}},
	}}
	h := httpx.Authenticate(auth, httpx.CookieSession)(echoPrincipal())

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.AddCookie(&http.Cookie{Name: httpx.CookieSession, Value: "good"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "acc-1")
	})

	t.Run("bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set("Authorization", "bearer good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	// Missing and invalid tokens must be indistinguishable.
	var bodies []string
	for _, token := range []string{"", "bad"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		if token != "" {
			req.AddCookie(&http.Cookie{Name: httpx.CookieSession, Value: token})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	require.Equal(t, bodies[0], bodies[1])
}

func TestOptionalAuthenticate(t *testing.T) {
	auth := stubAuth{tokens: map[string]httpx.Principal{"good": {AccountID: "acc-1"}}}
	h := httpx.OptionalAuthenticate(auth, httpx.CookieSession)(echoPrincipal())

	for token, want := range map[string]string{"good": "acc-1", "bad": `""`, "": `""`} {
		req := httptest.NewRequest(http.MethodGet, "/webauthn/login/options", nil)
		if token != "" {
			req.AddCookie(&http.Cookie{Name: httpx.CookieSession, Value: token})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), want)
	}
}

func TestRequireRole(t *testing.T) {
	auth := stubAuth{tokens: map[string]httpx.Principal{
		"user":  {AccountID: "acc-1", Groups: []string{"user"}},
		"admin": {AccountID: "acc-2", Groups: []string{"admin"}},
	}}
	h := httpx.Chain(echoPrincipal(), httpx.Authenticate(auth, httpx.CookieSession), httpx.RequireRole("admin"))

	tests := map[string]int{"user": http.StatusForbidden, "admin": http.StatusOK, "": http.StatusUnauthorized}
	for token, code := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/admin/settings", nil)
		if token != "" {
			req.AddCookie(&http.Cookie{Name: httpx.CookieSession, Value: token})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, code, rec.Code, token)
	}

	// RequireRole alone, with no principal, is a 401.
	rec := httptest.NewRecorder()
	httpx.RequireRole("admin")(echoPrincipal()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := httpx.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mw("a"), mw("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestCookiesClear(t *testing.T) {
	c := httpx.Cookies{Domain: "example.com", Secure: true}

	rec := httptest.NewRecorder()
	c.Set(rec, httpx.CookieSession, "v", time.Hour)
	set := rec.Result().Cookies()
	require.Len(t, set, 1)
	require.True(t, set[0].HttpOnly)
	require.Equal(t, 3600, set[0].MaxAge)
	require.Equal(t, http.SameSiteLaxMode, set[0].SameSite)

	rec = httptest.NewRecorder()
	c.Clear(rec, httpx.CookieSession)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 2)
	require.Equal(t, "example.com", cleared[0].Domain)
	require.Empty(t, cleared[1].Domain)
	for _, ck := range cleared {
		require.Equal(t, -1, ck.MaxAge)
	}

	rec = httptest.NewRecorder()
	httpx.Cookies{}.Clear(rec, httpx.CookieSession)
	require.Len(t, rec.Result().Cookies(), 1)
}
