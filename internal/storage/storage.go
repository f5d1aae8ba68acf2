// Package storage persists OAuth2 tokens and small config documents in a
// local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pders01/searchable-files/internal/models"
)

const (
	// DriverName is the database/sql driver registered by modernc.org/sqlite
	DriverName = "sqlite"
	// DefaultNamespace partitions rows so several apps can share a file
	DefaultNamespace = "DEFAULT"
)

// TokenData is the token set for one resource server
type TokenData struct {
	ResourceServer   string `json:"resource_server"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	ExpiresAtSeconds int64  `json:"expires_at_seconds"`
	Scope            string `json:"scope,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
}

// Store is the token and config store
type Store struct {
	db        *sql.DB
	namespace string
}

// Open opens (creating if needed) the database at path
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, namespace: DefaultNamespace}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS token_storage (
		namespace TEXT NOT NULL,
		resource_server TEXT NOT NULL,
		token_data_json TEXT NOT NULL,
		PRIMARY KEY (namespace, resource_server)
	);
	CREATE TABLE IF NOT EXISTS config_storage (
		namespace TEXT NOT NULL,
		config_name TEXT NOT NULL,
		config_data_json TEXT NOT NULL,
		PRIMARY KEY (namespace, config_name)
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate storage: %w", err)
	}
	return nil
}

// StoreTokens upserts every token set in one transaction
func (s *Store) StoreTokens(ctx context.Context, tokens []TokenData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, td := range tokens {
		if td.ResourceServer == "" {
			return fmt.Errorf("token data is missing a resource server")
		}
		data, err := json.Marshal(td)
		if err != nil {
			return fmt.Errorf("failed to encode tokens for %s: %w", td.ResourceServer, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO token_storage (namespace, resource_server, token_data_json)
			VALUES (?, ?, ?)
			ON CONFLICT (namespace, resource_server) DO UPDATE SET
				token_data_json = excluded.token_data_json`,
			s.namespace, td.ResourceServer, string(data))
		if err != nil {
			return fmt.Errorf("failed to store tokens for %s: %w", td.ResourceServer, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tokens: %w", err)
	}
	return nil
}

// ReadTokens returns all stored token sets keyed by resource server
func (s *Store) ReadTokens(ctx context.Context) (map[string]TokenData, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT resource_server, token_data_json FROM token_storage WHERE namespace = ?`,
		s.namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]TokenData)
	for rows.Next() {
		var rs, raw string
		if err := rows.Scan(&rs, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan tokens: %w", err)
		}
		var td TokenData
		if err := json.Unmarshal([]byte(raw), &td); err != nil {
			return nil, fmt.Errorf("corrupt token data for %s: %w", rs, err)
		}
		out[rs] = td
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadToken returns the token set for one resource server, or nil
func (s *Store) ReadToken(ctx context.Context, resourceServer string) (*TokenData, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT token_data_json FROM token_storage WHERE namespace = ? AND resource_server = ?`,
		s.namespace, resourceServer).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens for %s: %w", resourceServer, err)
	}
	var td TokenData
	if err := json.Unmarshal([]byte(raw), &td); err != nil {
		return nil, fmt.Errorf("corrupt token data for %s: %w", resourceServer, err)
	}
	return &td, nil
}

// RemoveTokens deletes the token set for a resource server and reports
// whether anything was removed
func (s *Store) RemoveTokens(ctx context.Context, resourceServer string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM token_storage WHERE namespace = ? AND resource_server = ?`,
		s.namespace, resourceServer)
	if err != nil {
		return false, fmt.Errorf("failed to remove tokens for %s: %w", resourceServer, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// StoreConfig saves v as JSON under name
func (s *Store) StoreConfig(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode config %s: %w", name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_storage (namespace, config_name, config_data_json)
		VALUES (?, ?, ?)
		ON CONFLICT (namespace, config_name) DO UPDATE SET
			config_data_json = excluded.config_data_json`,
		s.namespace, name, string(data))
	if err != nil {
		return fmt.Errorf("failed to store config %s: %w", name, err)
	}
	return nil
}

// ReadConfig decodes the config stored under name into v. It reports
// false when no such config exists.
func (s *Store) ReadConfig(ctx context.Context, name string, v any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT config_data_json FROM config_storage WHERE namespace = ? AND config_name = ?`,
		s.namespace, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read config %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("corrupt config %s: %w", name, err)
	}
	return true, nil
}

// StoreIndexInfo persists the default index id
func (s *Store) StoreIndexInfo(ctx context.Context, indexID string) error {
	return s.StoreConfig(ctx, models.IndexInfoConfigName, models.IndexInfo{IndexID: indexID})
}

// ReadIndexInfo returns the persisted index, or models.ErrNoIndex
func (s *Store) ReadIndexInfo(ctx context.Context) (*models.IndexInfo, error) {
	var info models.IndexInfo
	ok, err := s.ReadConfig(ctx, models.IndexInfoConfigName, &info)
	if err != nil {
		return nil, err
	}
	if !ok || info.IndexID == "" {
		return nil, models.ErrNoIndex
	}
	return &info, nil
}
