// Package apikey manages the keys that unlock administrative endpoints such
// as cache invalidation. Raw keys are shown once at creation; only their
// SHA-256 digest is stored in PostgreSQL.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/postgres"
)

var (
	ErrInvalidKey  = errors.New("invalid api key")
	ErrExpiredKey  = errors.New("api key expired")
	ErrKeyNotFound = errors.New("api key not found")
)

const schema = `CREATE TABLE IF NOT EXISTS admin_keys (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	key_hash     TEXT NOT NULL UNIQUE,
	revoked      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at   TIMESTAMPTZ,
	last_used_at TIMESTAMPTZ
)`

// KeyInfo describes a stored key. The raw key is never part of it.
type KeyInfo struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "apikey-store"),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.EnsureSchema(ctx, schema)
}

// Validate resolves rawKey to its active key and stamps last_used_at.
func (s *Store) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var (
		info      KeyInfo
		expiresAt sql.NullTime
		lastUsed  sql.NullTime
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, created_at, expires_at, last_used_at
		 FROM admin_keys
		 WHERE key_hash = $1 AND NOT revoked`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, &info.CreatedAt, &expiresAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if expiresAt.Valid {
		if !expiresAt.Time.After(time.Now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	if lastUsed.Valid {
		info.LastUsedAt = &lastUsed.Time
	}

	if _, err := s.db.DB.ExecContext(ctx,
		`UPDATE admin_keys SET last_used_at = NOW() WHERE id = $1`, info.ID,
	); err != nil {
		s.logger.Warn("recording key use failed", "name", info.Name, "error", err)
	}
	return &info, nil
}

// Create stores a new key under name and returns the raw key. A zero ttl
// means the key never expires.
func (s *Store) Create(ctx context.Context, name string, ttl time.Duration) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("api key name is required")
	}
	rawKey, err := generateRawKey()
	if err != nil {
		return "", err
	}
	var expiry sql.NullTime
	if ttl > 0 {
		expiry = sql.NullTime{Time: time.Now().Add(ttl).UTC(), Valid: true}
	}
	if _, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO admin_keys (name, key_hash, expires_at) VALUES ($1, $2, $3)`,
		name, HashKey(rawKey), expiry,
	); err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	s.logger.Info("api key created", "name", name, "ttl", ttl)
	return rawKey, nil
}

// Revoke deactivates the key registered under name.
func (s *Store) Revoke(ctx context.Context, name string) error {
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE admin_keys SET revoked = TRUE WHERE name = $1 AND NOT revoked`,
		name,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	s.logger.Info("api key revoked", "name", name)
	return nil
}

// List returns the active keys, newest first.
func (s *Store) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, created_at, expires_at, last_used_at
		 FROM admin_keys WHERE NOT revoked ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var (
			k         KeyInfo
			expiresAt sql.NullTime
			lastUsed  sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &expiresAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		if lastUsed.Valid {
			k.LastUsedAt = &lastUsed.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the SHA-256 hex digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return "ps_" + hex.EncodeToString(b), nil
}
