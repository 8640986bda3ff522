package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/api/middleware"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// APIKeyStore defines the interface for API key persistence.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, k *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error
}

// CreateAPIKeyRequest is the body for issuing an API key.
type CreateAPIKeyRequest struct {
	Name          string   `json:"name" binding:"required,min=1,max=100"`
	Permissions   []string `json:"permissions" binding:"required,min=1"`
	ExpiresInDays int      `json:"expires_in_days" binding:"min=0,max=3650"`
}

// CreateAPIKeyResponse carries the clear key, which is shown only once.
type CreateAPIKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

// APIKeysHandler handles API key management endpoints.
type APIKeysHandler struct {
	store  APIKeyStore
	logger zerolog.Logger
}

// NewAPIKeysHandler creates a new APIKeysHandler.
func NewAPIKeysHandler(store APIKeyStore, logger zerolog.Logger) *APIKeysHandler {
	return &APIKeysHandler{
		store:  store,
		logger: logger.With().Str("component", "apikeys_handler").Logger(),
	}
}

// RegisterRoutes registers API key routes on the given router group.
func (h *APIKeysHandler) RegisterRoutes(r *gin.RouterGroup) {
	keys := r.Group("/api-keys", middleware.RequirePermission(auth.PermAPIKeyManage))
	{
		keys.GET("", h.List)
		keys.POST("", h.Create)
		keys.DELETE("/:id", h.Revoke)
	}
}

// List returns all API keys without their secrets.
// GET /api/v1/api-keys
func (h *APIKeysHandler) List(c *gin.Context) {
	keys, err := h.store.ListAPIKeys(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "failed to list api keys")
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": keys})
}

// Create issues a new API key for a scanner station or script.
//
//	@Summary		Issue API key
//	@Tags			API Keys
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateAPIKeyRequest	true	"Key"
//	@Success		201		{object}	CreateAPIKeyResponse
//	@Failure		400		{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/api/v1/api-keys [post]
func (h *APIKeysHandler) Create(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	p := middleware.GetPrincipal(c)
	key, record, err := auth.IssueAPIKey(req.Name, req.Permissions, p.Subject, expiresAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateAPIKey(c.Request.Context(), record); err != nil {
		respondError(c, h.logger, err, "failed to create api key")
		return
	}

	h.logger.Info().
		Str("key_id", record.ID.String()).
		Str("name", record.Name).
		Str("created_by", p.Subject).
		Msg("api key issued")
	c.JSON(http.StatusCreated, CreateAPIKeyResponse{APIKey: record, Key: key})
}

// Revoke disables an API key.
// DELETE /api/v1/api-keys/:id
func (h *APIKeysHandler) Revoke(c *gin.Context) {
	id, ok := parseID(c, "id", "api key")
	if !ok {
		return
	}

	if err := h.store.RevokeAPIKey(c.Request.Context(), id, time.Now()); err != nil {
		respondError(c, h.logger, err, "failed to revoke api key")
		return
	}

	h.logger.Info().Str("key_id", id.String()).Msg("api key revoked")
	c.JSON(http.StatusOK, gin.H{"message": "api key revoked"})
}
