package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const apiKeyColumns = `id, name, key_prefix, key_hash, permissions, created_by,
	last_used_at, expires_at, revoked_at, created_at`

func scanAPIKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	var perms []byte
	err := row.Scan(
		&k.ID, &k.Name, &k.Prefix, &k.Hash, &perms, &k.CreatedBy,
		&k.LastUsedAt, &k.ExpiresAt, &k.RevokedAt, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(perms, &k.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	return &k, nil
}

// CreateAPIKey stores a new API key.
func (db *DB) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	perms, err := json.Marshal(k.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = db.q(ctx).Exec(ctx, `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, k.ID, k.Name, k.Prefix, k.Hash, perms, k.CreatedBy,
		k.LastUsedAt, k.ExpiresAt, k.RevokedAt, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash returns the API key with the given hash.
func (db *DB) GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	k, err := scanAPIKey(db.q(ctx).QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE key_hash = $1
	`, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return k, nil
}

// ListAPIKeys returns all API keys, newest first.
func (db *DB) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := db.q(ctx).Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TouchAPIKey records the last use of a key.
func (db *DB) TouchAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	if _, err := db.q(ctx).Exec(ctx, "UPDATE api_keys SET last_used_at = $2 WHERE id = $1", id, at); err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

// RevokeAPIKey marks a key as revoked.
func (db *DB) RevokeAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.q(ctx).Exec(ctx, "UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL", id, at)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return delivery.ErrNotFound
	}
	return nil
}
