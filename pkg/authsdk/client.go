package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/marquee/pkg/httpx"
)

// ErrSecondFactor is returned by Login when the account needs a TOTP code
// or MFA enrolment, which this client does not drive.
var ErrSecondFactor = errors.New("authsdk: second factor required")

// SDKClient talks to the Marquee auth API. Requests are authenticated with
// a session token sent as a bearer credential.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// Origin is sent on form posts. It defaults to BaseURL and must match
	// the server's configured public origin.
	Origin string
}

// NewSDKClient creates a client with a 10 second timeout. Redirects are not
// followed so Login can read the session cookie.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Login signs in with a password the way the login form does and returns a
// session bound to the issued token.
func (c *SDKClient) Login(ctx context.Context, username, password string) (*Session, error) {
	csrf, err := c.csrfToken(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"username":          {username},
		"password":          {password},
		httpx.FormFieldCSRF: {csrf},
	}
	origin := c.Origin
	if origin == "" {
		origin = c.BaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/login"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", origin)
	req.AddCookie(&http.Cookie{Name: httpx.CookieCSRF, Value: csrf})

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		body, _ := io.ReadAll(resp.Body)
		return nil, parseErrorResponse(resp, body)
	}
	for _, ck := range resp.Cookies() {
		if ck.Name == httpx.CookieSession && ck.Value != "" {
			return c.Session(ck.Value), nil
		}
	}

	loc, _ := url.Parse(resp.Header.Get("Location"))
	if loc != nil {
		if code := loc.Query().Get("error"); code != "" {
			return nil, NewAPIError(code)
		}
		if loc.Path == "/mfa" || loc.Path == "/mfa_setup" {
			return nil, ErrSecondFactor
		}
	}
	return nil, fmt.Errorf("authsdk: login redirected to %q without a session", resp.Header.Get("Location"))
}

// csrfToken reads the readable CSRF cookie the server sets on any GET.
func (c *SDKClient) csrfToken(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/livez", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	for _, ck := range resp.Cookies() {
		if ck.Name == httpx.CookieCSRF {
			return ck.Value, nil
		}
	}
	return "", errors.New("authsdk: server did not issue a csrf cookie")
}

// Session returns a view of the client bound to a session token.
func (c *SDKClient) Session(token string) *Session {
	return &Session{client: c, token: token}
}

// GetLiveness checks if the service is alive.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks if the service and its dependencies are ready.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}

// Session performs authenticated calls on behalf of one session token.
type Session struct {
	client *SDKClient
	token  string
}

// Token is the raw session token.
func (s *Session) Token() string { return s.token }

// Me returns the identity behind the session.
func (s *Session) Me(ctx context.Context) (*MeResponse, error) {
	var out MeResponse
	if err := s.getJSON(ctx, "/v1/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions returns every active session of the account.
func (s *Session) ListSessions(ctx context.Context) ([]SessionView, error) {
	var out SessionsResponse
	if err := s.getJSON(ctx, "/v1/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

// RevokeSession revokes one session by id.
func (s *Session) RevokeSession(ctx context.Context, id string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// RevokeOtherSessions revokes every session except the current one.
func (s *Session) RevokeOtherSessions(ctx context.Context) (int64, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/sessions/revoke-others", nil)
	if err != nil {
		return 0, err
	}
	var out RevokedResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// ChangePassword changes the account password and returns how many other
// sessions the server revoked.
func (s *Session) ChangePassword(ctx context.Context, req PasswordChangeRequest) (int64, error) {
	var out RevokedResponse
	if err := s.postJSON(ctx, "/v1/account/password", req, &out); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// Logout revokes the current session.
func (s *Session) Logout(ctx context.Context) error {
	me, err := s.Me(ctx)
	if err != nil {
		return err
	}
	return s.RevokeSession(ctx, me.SessionID)
}

// BanAccount bans an account and revokes its sessions. Admin only.
func (s *Session) BanAccount(ctx context.Context, accountID string) error {
	return s.postNoContent(ctx, "/v1/admin/accounts/"+url.PathEscape(accountID)+"/ban", nil)
}

// UnbanAccount lifts a ban. Admin only.
func (s *Session) UnbanAccount(ctx context.Context, accountID string) error {
	return s.postNoContent(ctx, "/v1/admin/accounts/"+url.PathEscape(accountID)+"/unban", nil)
}

// DeleteAccount removes an account. Admin only.
func (s *Session) DeleteAccount(ctx context.Context, accountID string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodDelete, "/v1/admin/accounts/"+url.PathEscape(accountID), nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// SetGroups replaces an account's groups. Admin only.
func (s *Session) SetGroups(ctx context.Context, accountID string, groups []string) error {
	return s.postNoContent(ctx, "/v1/admin/accounts/"+url.PathEscape(accountID)+"/groups", GroupsRequest{Groups: groups})
}

// Settings reads every runtime setting. Admin only.
func (s *Session) Settings(ctx context.Context) (map[string]string, error) {
	var out SettingsResponse
	if err := s.getJSON(ctx, "/v1/admin/settings", &out); err != nil {
		return nil, err
	}
	return out.Settings, nil
}

// PutSettings writes settings and returns the full map afterwards. Admin only.
func (s *Session) PutSettings(ctx context.Context, settings map[string]string) (map[string]string, error) {
	body, err := json.Marshal(SettingsResponse{Settings: settings})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := s.doAuthRequest(ctx, http.MethodPut, "/v1/admin/settings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out SettingsResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Settings, nil
}

func (s *Session) postJSON(ctx context.Context, path string, in, target any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := s.doAuthRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}

func (s *Session) postNoContent(ctx context.Context, path string, in any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	resp, err := s.doAuthRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

func (s *Session) getJSON(ctx context.Context, path string, target any) error {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, http.StatusOK)
}
