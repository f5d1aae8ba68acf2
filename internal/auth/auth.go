// Package auth implements the Globus Auth native-app login flow, token
// refresh and revocation, and the identity lookups the pipeline needs.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/storage"
)

const (
	// DefaultBaseURL is the production Globus Auth service
	DefaultBaseURL = "https://auth.globus.org"
	// DefaultClientID is the registered native app for this tool
	DefaultClientID = "c1bd6f26-7d46-4ccf-a7af-ddc7dfec2bfe"

	SearchResourceServer = "search.api.globus.org"
	AuthResourceServer   = "auth.globus.org"

	SearchAllScope = "urn:globus:auth:scope:search.api.globus.org:all"
	// LogoutURL ends the browser session, which revoking tokens does not
	LogoutURL = "https://auth.globus.org/v2/web/logout"
)

// Scopes requested at login
var Scopes = []string{"openid", "profile", SearchAllScope}

// TokenStore is the subset of storage the auth client needs
type TokenStore interface {
	StoreTokens(ctx context.Context, tokens []storage.TokenData) error
	ReadToken(ctx context.Context, resourceServer string) (*storage.TokenData, error)
	ReadTokens(ctx context.Context) (map[string]storage.TokenData, error)
	RemoveTokens(ctx context.Context, resourceServer string) (bool, error)
}

// Client drives login, logout and authenticated HTTP clients
type Client struct {
	baseURL string
	config  *oauth2.Config
	store   TokenStore
	http    *http.Client
	logger  *slog.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient sets the client used for calls to the auth service
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates an auth client. Empty clientID and baseURL fall back to
// the defaults.
func New(clientID, baseURL string, store TokenStore, opts ...Option) *Client {
	if clientID == "" {
		clientID = DefaultClientID
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	c := &Client{
		baseURL: baseURL,
		store:   store,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
		config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   baseURL + "/v2/oauth2/authorize",
				TokenURL:  baseURL + "/v2/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: baseURL + "/v2/web/auth-code",
			Scopes:      Scopes,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "auth")
	return c
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// LoginFlow is an in-progress authorization code grant
type LoginFlow struct {
	URL      string
	verifier string
}

// StartLogin begins a PKCE flow. label names the grant on the consent
// page and may be empty.
func (c *Client) StartLogin(label string) *LoginFlow {
	verifier := oauth2.GenerateVerifier()
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	}
	if label != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prefill_named_grant", label))
	}
	return &LoginFlow{
		URL:      c.config.AuthCodeURL("_default", opts...),
		verifier: verifier,
	}
}

// CompleteLogin exchanges the pasted code, revokes whatever was stored
// before, and stores the new tokens
func (c *Client) CompleteLogin(ctx context.Context, flow *LoginFlow, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return fmt.Errorf("%w: authorization code cannot be empty", models.ErrConfig)
	}

	tok, err := c.config.Exchange(c.oauthContext(ctx), code, oauth2.VerifierOption(flow.verifier))
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	tokens, err := tokensFromResponse(tok)
	if err != nil {
		return err
	}

	if err := c.revokeAll(ctx); err != nil {
		return err
	}
	if err := c.store.StoreTokens(ctx, tokens); err != nil {
		return err
	}
	c.logger.Info("stored tokens", "resource_servers", len(tokens))
	return nil
}

// LoggedIn reports whether a search refresh token is stored and still
// active
func (c *Client) LoggedIn(ctx context.Context) (bool, error) {
	td, err := c.store.ReadToken(ctx, SearchResourceServer)
	if err != nil {
		return false, err
	}
	if td == nil || td.RefreshToken == "" {
		return false, nil
	}

	var res struct {
		Active bool `json:"active"`
	}
	if err := c.postForm(ctx, "/v2/oauth2/token/validate", url.Values{"token": {td.RefreshToken}}, &res); err != nil {
		return false, err
	}
	return res.Active, nil
}

// Revoke invalidates a single token
func (c *Client) Revoke(ctx context.Context, token string) error {
	return c.postForm(ctx, "/v2/oauth2/token/revoke", url.Values{"token": {token}}, nil)
}

func (c *Client) revokeAll(ctx context.Context) error {
	existing, err := c.store.ReadTokens(ctx)
	if err != nil {
		return err
	}
	for rs, td := range existing {
		for _, tok := range []string{td.AccessToken, td.RefreshToken} {
			if tok == "" {
				continue
			}
			if err := c.Revoke(ctx, tok); err != nil {
				return fmt.Errorf("failed to revoke previous tokens for %s: %w", rs, err)
			}
		}
	}
	return nil
}

// Logout revokes and then deletes the stored tokens. Nothing is deleted
// if any revocation fails, so a later logout can retry.
func (c *Client) Logout(ctx context.Context) error {
	servers := []string{SearchResourceServer, AuthResourceServer}
	for _, rs := range servers {
		td, err := c.store.ReadToken(ctx, rs)
		if err != nil {
			return err
		}
		if td == nil {
			continue
		}
		for _, tok := range []string{td.AccessToken, td.RefreshToken} {
			if tok == "" {
				continue
			}
			if err := c.Revoke(ctx, tok); err != nil {
				return fmt.Errorf("failed to reach Globus to revoke tokens, cancelling logout: %w", err)
			}
		}
	}
	for _, rs := range servers {
		if _, err := c.store.RemoveTokens(ctx, rs); err != nil {
			return err
		}
	}
	return nil
}

// HTTPClient returns a client that authenticates as the stored user for
// resourceServer, refreshing and re-storing tokens as needed. It returns
// models.ErrNotLoggedIn if no tokens are stored.
func (c *Client) HTTPClient(ctx context.Context, resourceServer string) (*http.Client, error) {
	td, err := c.store.ReadToken(ctx, resourceServer)
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, fmt.Errorf("%w: no tokens for %s, run 'searchable-files login'", models.ErrNotLoggedIn, resourceServer)
	}

	octx := c.oauthContext(context.WithoutCancel(ctx))
	src := &persistingSource{
		base:  c.config.TokenSource(octx, oauthToken(*td)),
		store: c.store,
		data:  *td,
		last:  td.AccessToken,
	}
	return oauth2.NewClient(octx, oauth2.ReuseTokenSource(oauthToken(*td), src)), nil
}

// UserInfo is the OIDC userinfo document
type UserInfo struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
}

// UserInfo fetches the logged-in user's identity
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	hc, err := c.HTTPClient(ctx, AuthResourceServer)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/oauth2/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request failed: %d", resp.StatusCode)
	}
	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.Sub == "" {
		return nil, errors.New("user info did not include a subject")
	}
	return &info, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	form.Set("client_id", c.config.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request to %s failed: %d %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// persistingSource writes refreshed tokens back to the store
type persistingSource struct {
	base  oauth2.TokenSource
	store TokenStore

	mu   sync.Mutex
	data storage.TokenData
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}
	p.last = tok.AccessToken
	p.data.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		p.data.RefreshToken = tok.RefreshToken
	}
	p.data.ExpiresAtSeconds = tok.Expiry.Unix()
	if err := p.store.StoreTokens(context.Background(), []storage.TokenData{p.data}); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	return tok, nil
}
