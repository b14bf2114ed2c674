package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKey is an inbound client credential. KeyHash is an argon2id encoding;
// KeyPrefix is the public first segment used for lookup.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// GetKeysByPrefix returns all keys sharing a prefix. Prefixes are short, so
// collisions are possible; the caller verifies the hash of each candidate.
func (s *Store) GetKeysByPrefix(ctx context.Context, prefix string) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, key_hash, key_prefix, name, is_active, last_used_at, created_at, updated_at
		FROM api_keys WHERE key_prefix = $1 AND is_active
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get keys by prefix: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(
			&k.ID, &k.KeyHash, &k.KeyPrefix, &k.Name, &k.IsActive,
			&k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// GetKey fetches a key by ID, or nil when absent.
func (s *Store) GetKey(ctx context.Context, id uuid.UUID) (*APIKey, error) {
	var k APIKey
	err := s.pool.QueryRow(ctx, `
		SELECT id, key_hash, key_prefix, name, is_active, last_used_at, created_at, updated_at
		FROM api_keys WHERE id = $1
	`, id).Scan(
		&k.ID, &k.KeyHash, &k.KeyPrefix, &k.Name, &k.IsActive,
		&k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &k, nil
}

func (s *Store) CreateKey(ctx context.Context, keyHash, keyPrefix, name string) (*APIKey, error) {
	var k APIKey
	err := s.pool.QueryRow(ctx, `
		INSERT INTO api_keys (key_hash, key_prefix, name)
		VALUES ($1, $2, $3)
		RETURNING id, key_hash, key_prefix, name, is_active, last_used_at, created_at, updated_at
	`, keyHash, keyPrefix, name).Scan(
		&k.ID, &k.KeyHash, &k.KeyPrefix, &k.Name, &k.IsActive,
		&k.LastUsedAt, &k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &k, nil
}

func (s *Store) DeactivateKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE api_keys SET is_active = false, updated_at = now() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	return nil
}

// TouchKeys bumps last_used_at for a batch of keys.
func (s *Store) TouchKeys(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		"UPDATE api_keys SET last_used_at = now() WHERE id = ANY($1)", ids)
	if err != nil {
		return fmt.Errorf("touch api keys: %w", err)
	}
	return nil
}
