package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pders01/searchable-files/internal/auth"
	"github.com/pders01/searchable-files/internal/config"
	"github.com/pders01/searchable-files/internal/search"
	"github.com/pders01/searchable-files/internal/storage"
)

// stdin is read by interactive prompts
var stdin io.Reader = os.Stdin

// session holds the per-invocation store, auth client and identity cache
type session struct {
	store    *storage.Store
	auth     *auth.Client
	identity *auth.Identity
}

func openSession() (*session, error) {
	path, err := config.GetStoragePath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, err
	}

	ac := auth.New(config.GetClientID(), config.GetAuthBaseURL(), store,
		auth.WithHTTPClient(&http.Client{Timeout: config.GetHTTPTimeout()}))
	return &session{
		store:    store,
		auth:     ac,
		identity: auth.NewIdentity(ac),
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// searchClient builds a search client, authenticated as the stored user
// unless anonymous is set
func (s *session) searchClient(ctx context.Context, anonymous bool) (*search.Client, error) {
	opts := []search.Option{
		search.WithRateLimit(config.GetSubmitRateLimit(), config.GetSubmitBurst()),
	}
	if anonymous {
		opts = append(opts, search.WithHTTPClient(&http.Client{Timeout: config.GetHTTPTimeout()}))
	} else {
		hc, err := s.auth.HTTPClient(ctx, auth.SearchResourceServer)
		if err != nil {
			return nil, err
		}
		hc.Timeout = config.GetHTTPTimeout()
		opts = append(opts, search.WithHTTPClient(hc))
	}
	return search.NewClient(config.GetSearchBaseURL(), opts...), nil
}

func prettyJSON(raw []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", fmt.Errorf("failed to format JSON: %w", err)
	}
	return buf.String(), nil
}
