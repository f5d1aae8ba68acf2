package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/storage"
)

type fakeAuthServer struct {
	t          *testing.T
	mu         sync.Mutex
	revoked    []string
	failRevoke atomic.Bool
	refreshes  atomic.Int32
}

func (f *fakeAuthServer) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *fakeAuthServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		assert.Equal(f.t, "test-client", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			assert.Equal(f.t, "the-code", r.PostForm.Get("code"))
			assert.NotEmpty(f.t, r.PostForm.Get("code_verifier"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":    "auth-at",
				"refresh_token":   "auth-rt",
				"expires_in":      3600,
				"resource_server": AuthResourceServer,
				"scope":           "openid profile",
				"token_type":      "Bearer",
				"other_tokens": []map[string]any{{
					"access_token":    "search-at",
					"refresh_token":   "search-rt",
					"expires_in":      3600,
					"resource_server": SearchResourceServer,
					"scope":           SearchAllScope,
					"token_type":      "Bearer",
				}},
			})
		case "refresh_token":
			f.refreshes.Add(1)
			assert.Equal(f.t, "search-rt", r.PostForm.Get("refresh_token"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":    "search-at-2",
				"expires_in":      3600,
				"resource_server": SearchResourceServer,
				"token_type":      "Bearer",
			})
		default:
			http.Error(w, "unsupported grant", http.StatusBadRequest)
		}
	})
	mux.HandleFunc("POST /v2/oauth2/token/revoke", func(w http.ResponseWriter, r *http.Request) {
		if f.failRevoke.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		require.NoError(f.t, r.ParseForm())
		f.mu.Lock()
		f.revoked = append(f.revoked, r.PostForm.Get("token"))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"active":false}`))
	})
	mux.HandleFunc("POST /v2/oauth2/token/validate", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		active := r.PostForm.Get("token") == "search-rt"
		_ = json.NewEncoder(w).Encode(map[string]bool{"active": active})
	})
	mux.HandleFunc("GET /v2/oauth2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer auth-at" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"sub":"ae341a98-d274-11e5-b888-dbae3a8ba545","preferred_username":"alice@example.org"}`))
	})
	mux.HandleFunc("GET /echo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	})
	return mux
}

func setup(t *testing.T) (*Client, *storage.Store, *fakeAuthServer, *httptest.Server) {
	t.Helper()
	fake := &fakeAuthServer{t: t}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := New("test-client", srv.URL, store, WithHTTPClient(srv.Client()))
	return c, store, fake, srv
}

func TestNewDefaults(t *testing.T) {
	c := New("", "", nil)
	assert.Equal(t, DefaultClientID, c.config.ClientID)
	assert.Equal(t, DefaultBaseURL+"/v2/oauth2/token", c.config.Endpoint.TokenURL)
}

func TestStartLoginUsesPKCE(t *testing.T) {
	c, _, _, _ := setup(t)
	flow := c.StartLogin("my-laptop")

	u, err := url.Parse(flow.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/v2/oauth2/authorize", u.Path)
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "my-laptop", q.Get("prefill_named_grant"))
	assert.Contains(t, q.Get("scope"), SearchAllScope)
	assert.NotEmpty(t, flow.verifier)
}

func TestCompleteLoginStoresAndRevokesPrevious(t *testing.T) {
	ctx := context.Background()
	c, store, fake, _ := setup(t)
	require.NoError(t, store.StoreTokens(ctx, []storage.TokenData{
		{ResourceServer: SearchResourceServer, AccessToken: "old-at", RefreshToken: "old-rt"},
	}))

	flow := c.StartLogin("")
	require.NoError(t, c.CompleteLogin(ctx, flow, "  the-code\n"))

	assert.ElementsMatch(t, []string{"old-at", "old-rt"}, fake.revokedTokens())

	tokens, err := store.ReadTokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "search-rt", tokens[SearchResourceServer].RefreshToken)
	assert.Equal(t, "auth-at", tokens[AuthResourceServer].AccessToken)
	assert.Greater(t, tokens[SearchResourceServer].ExpiresAtSeconds, time.Now().Unix())

	loggedIn, err := c.LoggedIn(ctx)
	require.NoError(t, err)
	assert.True(t, loggedIn)
}

func TestCompleteLoginEmptyCode(t *testing.T) {
	c, _, _, _ := setup(t)
	err := c.CompleteLogin(context.Background(), c.StartLogin(""), " ")
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestLoggedInWithoutTokens(t *testing.T) {
	c, _, _, _ := setup(t)
	loggedIn, err := c.LoggedIn(context.Background())
	require.NoError(t, err)
	assert.False(t, loggedIn)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	c, store, fake, _ := setup(t)
	require.NoError(t, c.CompleteLogin(ctx, c.StartLogin(""), "the-code"))

	require.NoError(t, c.Logout(ctx))
	assert.ElementsMatch(t, []string{"search-at", "search-rt", "auth-at", "auth-rt"}, fake.revokedTokens())

	tokens, err := store.ReadTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestLogoutKeepsTokensWhenRevokeFails(t *testing.T) {
	ctx := context.Background()
	c, store, fake, _ := setup(t)
	require.NoError(t, c.CompleteLogin(ctx, c.StartLogin(""), "the-code"))

	fake.failRevoke.Store(true)
	require.Error(t, c.Logout(ctx))

	tokens, err := store.ReadTokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestHTTPClientNotLoggedIn(t *testing.T) {
	c, _, _, _ := setup(t)
	_, err := c.HTTPClient(context.Background(), SearchResourceServer)
	assert.ErrorIs(t, err, models.ErrNotLoggedIn)
	assert.True(t, models.IsUsageError(err))
}

func TestHTTPClientRefreshesAndPersists(t *testing.T) {
	ctx := context.Background()
	c, store, fake, srv := setup(t)
	require.NoError(t, store.StoreTokens(ctx, []storage.TokenData{{
		ResourceServer:   SearchResourceServer,
		AccessToken:      "search-at",
		RefreshToken:     "search-rt",
		ExpiresAtSeconds: time.Now().Add(-time.Hour).Unix(),
		TokenType:        "Bearer",
	}}))

	hc, err := c.HTTPClient(ctx, SearchResourceServer)
	require.NoError(t, err)

	resp, err := hc.Get(srv.URL + "/echo")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "Bearer search-at-2", string(body))
	assert.Equal(t, int32(1), fake.refreshes.Load())

	td, err := store.ReadToken(ctx, SearchResourceServer)
	require.NoError(t, err)
	assert.Equal(t, "search-at-2", td.AccessToken)
	assert.Equal(t, "search-rt", td.RefreshToken)
}

func TestUserInfo(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := setup(t)
	require.NoError(t, c.CompleteLogin(ctx, c.StartLogin(""), "the-code"))

	id := NewIdentity(c)
	urn, err := id.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "urn:globus:auth:identity:ae341a98-d274-11e5-b888-dbae3a8ba545", urn)

	name, err := id.PreferredUsername(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", name)
}

type countingSource struct {
	calls atomic.Int32
	err   error
}

func (s *countingSource) UserInfo(ctx context.Context) (*UserInfo, error) {
	s.calls.Add(1)
	time.Sleep(10 * time.Millisecond)
	if s.err != nil {
		return nil, s.err
	}
	return &UserInfo{Sub: "abc", PreferredUsername: "bob"}, nil
}

func TestIdentityCachesAcrossCallers(t *testing.T) {
	src := &countingSource{}
	id := NewIdentity(src)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			urn, err := id.CurrentUser(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, IdentityURNPrefix+"abc", urn)
		}()
	}
	wg.Wait()

	_, err := id.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestIdentityDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	id := NewIdentity(src)

	_, err := id.CurrentUser(context.Background())
	require.Error(t, err)
	_, err = id.CurrentUser(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}
