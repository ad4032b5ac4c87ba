package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aussiebroadwan/marquee/pkg/httpx"
	"github.com/stretchr/testify/require"
)

const origin = "https://requests.example.com"

func newGuard(t *testing.T) *httpx.CSRFGuard {
	t.Helper()
	g, err := httpx.NewCSRFGuard(origin, httpx.Cookies{Secure: true})
	require.NoError(t, err)
	return g
}

func csrfRequest(method, token, header string, mutate func(*http.Request)) *http.Request {
	req := httptest.NewRequest(method, origin+"/v1/sessions/revoke-others", nil)
	req.Host = "requests.example.com"
	req.Header.Set("Origin", origin)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: httpx.CookieCSRF, Value: token})
	}
	if header != "" {
		req.Header.Set(httpx.HeaderCSRF, header)
	}
	if mutate != nil {
		mutate(req)
	}
	return req
}

func TestCSRFCheck(t *testing.T) {
	g := newGuard(t)

	tests := []struct {
		name   string
		req    *http.Request
		expect error
	}{
		{"safe method passes", csrfRequest(http.MethodGet, "", "", nil), nil},
		{"matching token", csrfRequest(http.MethodPost, "tok-1", "tok-1", nil), nil},
		{"missing header", csrfRequest(http.MethodPost, "tok-1", "", nil), httpx.ErrCSRFMissing},
		{"missing cookie", csrfRequest(http.MethodDelete, "", "tok-1", nil), httpx.ErrCSRFMissing},
		{"mismatch", csrfRequest(http.MethodPut, "tok-1", "tok-2", nil), httpx.ErrCSRFMismatch},
		{"foreign origin", csrfRequest(http.MethodPost, "tok-1", "tok-1", func(r *http.Request) {
			r.Header.Set("Origin", "https://evil.example.com")
		}), httpx.ErrCSRFOrigin},
		{"origin with other port", csrfRequest(http.MethodPost, "tok-1", "tok-1", func(r *http.Request) {
			r.Header.Set("Origin", "https://requests.example.com:8443")
		}), httpx.ErrCSRFOrigin},
		{"referer fallback ok", csrfRequest(http.MethodPost, "tok-1", "tok-1", func(r *http.Request) {
			r.Header.Del("Origin")
			r.Header.Set("Referer", origin+"/settings")
		}), nil},
		{"referer fallback foreign", csrfRequest(http.MethodPost, "tok-1", "tok-1", func(r *http.Request) {
			r.Header.Del("Origin")
			r.Header.Set("Referer", "http://requests.example.com/settings")
		}), httpx.ErrCSRFOrigin},
		{"host fallback ok", csrfRequest(http.MethodPost, "tok-1", "tok-1", func(r *http.Request) {
			r.Header.Del("Origin")
		}), nil},
		{"host fallback foreign", csrfRequest(http.MethodPost, "tok-1", "tok-1", func(r *http.Request) {
			r.Header.Del("Origin")
			r.Host = "evil.example.com"
		}), httpx.ErrCSRFOrigin},
		{"bearer without session cookie", csrfRequest(http.MethodPost, "", "", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer abc")
		}), nil},
		{"bearer with session cookie still checked", csrfRequest(http.MethodPost, "", "", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer abc")
			r.AddCookie(&http.Cookie{Name: httpx.CookieSession, Value: "abc"})
		}), httpx.ErrCSRFMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Check(tt.req)
			if tt.expect == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.expect)
		})
	}
}

func TestCSRFFormField(t *testing.T) {
	g := newGuard(t)

	form := url.Values{"username": {"alice"}, httpx.FormFieldCSRF: {"tok-1"}}
	req := httptest.NewRequest(http.MethodPost, origin+"/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", origin)
	req.AddCookie(&http.Cookie{Name: httpx.CookieCSRF, Value: "tok-1"})

	require.NoError(t, g.Check(req))
}

func TestCSRFMiddleware(t *testing.T) {
	g := newGuard(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := httpx.Chain(ok, g.Issue(), g.Require())

	t.Run("first visit gets a readable cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, csrfRequest(http.MethodGet, "", "", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)

		var found *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == httpx.CookieCSRF {
				found = c
			}
		}
		require.NotNil(t, found)
		require.False(t, found.HttpOnly)
		require.True(t, found.Secure)
		require.Len(t, found.Value, 22)
	})

	t.Run("existing cookie is kept", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, csrfRequest(http.MethodPost, "tok-1", "tok-1", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("rejects with invalid_challenge", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, csrfRequest(http.MethodPost, "tok-1", "tok-2", nil))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), `"invalid_challenge"`)
	})
}

func TestNewCSRFGuardRejectsBadOrigin(t *testing.T) {
	_, err := httpx.NewCSRFGuard("requests.example.com", httpx.Cookies{})
	require.Error(t, err)
}
