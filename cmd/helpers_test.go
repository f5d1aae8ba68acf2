package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/pders01/searchable-files/internal/auth"
	"github.com/pders01/searchable-files/internal/config"
	"github.com/pders01/searchable-files/internal/storage"
	"github.com/pders01/searchable-files/internal/testutil"
)

const testIndexID = "6b1f3c0e-0d8c-4e1a-9f3e-6a1d2c3b4a5f"

// setupCmdTest isolates viper state and the token store inside a temp
// tree and makes it the working directory
func setupCmdTest(t *testing.T) *testutil.TempTree {
	t.Helper()
	tree := testutil.NewTempTree(t)
	tree.Chdir()

	viper.Reset()
	config.SetDefaults()
	viper.Set("storage.path", tree.Dir("state/storage.db"))
	viper.Set("watch.interval", "1ms")
	t.Cleanup(viper.Reset)

	oldStdin := stdin
	t.Cleanup(func() { stdin = oldStdin })
	return tree
}

func withStore(t *testing.T, fn func(s *storage.Store)) {
	t.Helper()
	path, err := config.GetStoragePath()
	if err != nil {
		t.Fatalf("storage path: %v", err)
	}
	s, err := storage.Open(path)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	defer s.Close()
	fn(s)
}

func storeTestTokens(t *testing.T) {
	t.Helper()
	withStore(t, func(s *storage.Store) {
		err := s.StoreTokens(context.Background(), []storage.TokenData{
			{ResourceServer: auth.SearchResourceServer, AccessToken: "search-at", RefreshToken: "search-rt", ExpiresAtSeconds: time.Now().Add(time.Hour).Unix()},
			{ResourceServer: auth.AuthResourceServer, AccessToken: "auth-at", RefreshToken: "auth-rt", ExpiresAtSeconds: time.Now().Add(time.Hour).Unix()},
		})
		if err != nil {
			t.Fatalf("failed to store tokens: %v", err)
		}
	})
}

// fakeGlobus serves the auth and search endpoints the commands use
type fakeGlobus struct {
	mu       sync.Mutex
	ingested []string
	created  map[string]string
	queries  []string
	revoked  []string
	states   map[string]string
}

func newFakeGlobus(t *testing.T) *fakeGlobus {
	t.Helper()
	f := &fakeGlobus{states: map[string]string{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	viper.Set("search.base_url", srv.URL)
	viper.Set("auth.base_url", srv.URL)
	return f
}

type recorded struct {
	ingested []string
	created  map[string]string
	queries  []string
	revoked  []string
}

// snapshot copies the recorded requests
func (f *fakeGlobus) snapshot() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recorded{
		ingested: append([]string(nil), f.ingested...),
		created:  f.created,
		queries:  append([]string(nil), f.queries...),
		revoked:  append([]string(nil), f.revoked...),
	}
}

func (f *fakeGlobus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/v2/oauth2/userinfo":
		_, _ = io.WriteString(w, `{"sub":"ae341a98-d274-11e5-b888-dbae3a8ba545","preferred_username":"alice@example.org"}`)
	case r.URL.Path == "/v2/oauth2/token/validate":
		_, _ = io.WriteString(w, `{"active":true}`)
	case r.URL.Path == "/v2/oauth2/token/revoke":
		f.revoked = append(f.revoked, string(body))
		_, _ = io.WriteString(w, `{}`)
	case r.URL.Path == "/v1/index" && r.Method == http.MethodPost:
		_ = json.Unmarshal(body, &f.created)
		_, _ = io.WriteString(w, `{"id":"`+testIndexID+`"}`)
	case r.URL.Path == "/v1/index/"+testIndexID && r.Method == http.MethodGet:
		_, _ = io.WriteString(w, `{"id":"`+testIndexID+`","display_name":"Searchable Files Demo Index"}`)
	case r.URL.Path == "/v1/index/"+testIndexID+"/ingest":
		f.ingested = append(f.ingested, string(body))
		id := "task-" + string(rune('a'+len(f.ingested)-1))
		f.states[id] = "SUCCESS"
		_, _ = io.WriteString(w, `{"task_id":"`+id+`","acknowledged":true}`)
	case strings.HasPrefix(r.URL.Path, "/v1/task/"):
		id := strings.TrimPrefix(r.URL.Path, "/v1/task/")
		state, ok := f.states[id]
		if !ok {
			state = "PENDING"
		}
		_, _ = io.WriteString(w, `{"task_id":"`+id+`","state":"`+state+`"}`)
	case r.URL.Path == "/v1/index/"+testIndexID+"/search":
		f.queries = append(f.queries, r.Header.Get("Authorization")+" "+string(body))
		_, _ = io.WriteString(w, `{"total":0,"gmeta":[]}`)
	default:
		http.NotFound(w, r)
	}
}
