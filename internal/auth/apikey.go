package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/models"
)

const (
	// APIKeyPrefix is the prefix for all delivery API keys.
	APIKeyPrefix = "dlv_"
	// APIKeyLength is the expected length of the hex portion of the API key.
	APIKeyLength = 64 // 32 bytes = 64 hex chars
	// displayPrefixLength is how much of a key is stored in clear for listings.
	displayPrefixLength = len(APIKeyPrefix) + 8
)

// APIKeyStore defines the lookups the validator needs.
type APIKeyStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error
}

// APIKeyValidator validates API keys presented by scanner stations.
type APIKeyValidator struct {
	store  APIKeyStore
	logger zerolog.Logger
}

// NewAPIKeyValidator creates a new API key validator.
func NewAPIKeyValidator(store APIKeyStore, logger zerolog.Logger) *APIKeyValidator {
	return &APIKeyValidator{
		store:  store,
		logger: logger.With().Str("component", "apikey_validator").Logger(),
	}
}

// ValidateAPIKey validates an API key and returns the stored key record.
// Returns nil if the key is malformed, unknown, revoked or expired.
func (v *APIKeyValidator) ValidateAPIKey(ctx context.Context, apiKey string) (*models.APIKey, error) {
	if !IsValidAPIKeyFormat(apiKey) {
		v.logger.Debug().Msg("invalid API key format")
		return nil, nil
	}

	key, err := v.store.GetAPIKeyByHash(ctx, HashAPIKey(apiKey))
	if err != nil {
		v.logger.Debug().Err(err).Msg("no key found for API key hash")
		return nil, nil
	}

	now := time.Now()
	if !key.IsUsable(now) {
		v.logger.Debug().Str("key_id", key.ID.String()).Msg("API key revoked or expired")
		return nil, nil
	}

	if err := v.store.TouchAPIKey(ctx, key.ID, now); err != nil {
		v.logger.Warn().Err(err).Str("key_id", key.ID.String()).Msg("failed to record API key use")
	}

	v.logger.Debug().
		Str("key_id", key.ID.String()).
		Str("name", key.Name).
		Msg("API key validated")

	return key, nil
}

// GenerateAPIKey returns a new random key together with its display prefix
// and storage hash. Only the hash and prefix should be persisted.
func GenerateAPIKey() (key, prefix, hash string, err error) {
	b := make([]byte, APIKeyLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generate api key: %w", err)
	}
	key = APIKeyPrefix + hex.EncodeToString(b)
	return key, key[:displayPrefixLength], HashAPIKey(key), nil
}

// IssueAPIKey generates a key granting permissions and returns the clear key
// with the record to store. The clear key cannot be recovered later.
func IssueAPIKey(name string, permissions []string, createdBy string, expiresAt *time.Time) (string, *models.APIKey, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil, fmt.Errorf("api key name is required")
	}
	if len(permissions) == 0 {
		return "", nil, fmt.Errorf("api key needs at least one permission")
	}
	for _, p := range permissions {
		if !Permission(p).Valid() {
			return "", nil, fmt.Errorf("unknown permission %q", p)
		}
	}

	key, prefix, hash, err := GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}
	record := models.NewAPIKey(strings.TrimSpace(name), prefix, hash, permissions)
	record.CreatedBy = createdBy
	record.ExpiresAt = expiresAt
	return key, record, nil
}

// IsValidAPIKeyFormat checks if the API key has the correct format.
func IsValidAPIKeyFormat(apiKey string) bool {
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		return false
	}
	hexPart := strings.TrimPrefix(apiKey, APIKeyPrefix)
	if len(hexPart) != APIKeyLength {
		return false
	}
	_, err := hex.DecodeString(hexPart)
	return err == nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage/comparison.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// CompareAPIKeyHash compares an API key with a stored hash using constant-time comparison.
func CompareAPIKeyHash(apiKey, storedHash string) bool {
	computedHash := HashAPIKey(apiKey)
	return subtle.ConstantTimeCompare([]byte(computedHash), []byte(storedHash)) == 1
}

// ExtractBearerToken extracts the token from an Authorization header value.
// Returns empty string if the header is not a valid Bearer token.
func ExtractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
