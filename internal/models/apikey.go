package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates a scanner station or script. Only the hash of the key
// is stored.
type APIKey struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Prefix      string     `json:"prefix"`
	Hash        string     `json:"-"`
	Permissions []string   `json:"permissions"`
	CreatedBy   string     `json:"created_by,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewAPIKey creates a key record for the given hash.
func NewAPIKey(name, prefix, hash string, permissions []string) *APIKey {
	return &APIKey{
		ID:          uuid.New(),
		Name:        name,
		Prefix:      prefix,
		Hash:        hash,
		Permissions: permissions,
		CreatedAt:   time.Now(),
	}
}

// IsUsable reports whether the key is neither revoked nor expired at now.
func (k *APIKey) IsUsable(now time.Time) bool {
	if k.RevokedAt != nil {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}
