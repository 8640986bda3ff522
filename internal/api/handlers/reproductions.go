package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/api/middleware"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// ReproductionService defines the reproduction operations of the delivery service.
type ReproductionService interface {
	CreateReproduction(ctx context.Context, req models.CreateReproductionRequest, opts delivery.CreateOptions) (*models.Reproduction, error)
	ApplyReproductionStatus(ctx context.Context, id uuid.UUID, status models.ReproductionStatus) (*models.Reproduction, error)
	EditReproduction(ctx context.Context, id uuid.UUID, upd models.UpdateReproductionRequest, opts delivery.CreateOptions) (*models.Reproduction, error)
	DeleteReproduction(ctx context.Context, id uuid.UUID) error
	MarkPrinted(ctx context.Context, ref models.RequestRef, always bool) ([]string, error)
}

// ReproductionStore defines the reproduction reads that bypass the service.
type ReproductionStore interface {
	GetReproduction(ctx context.Context, id uuid.UUID) (*models.Reproduction, error)
	GetReproductionByToken(ctx context.Context, token string) (*models.Reproduction, error)
	ListReproductions(ctx context.Context, f models.ReproductionFilter) ([]*models.Reproduction, int, error)
}

// ReproductionsHandler handles reproduction HTTP endpoints.
type ReproductionsHandler struct {
	service ReproductionService
	store   ReproductionStore
	logger  zerolog.Logger
}

// NewReproductionsHandler creates a new ReproductionsHandler.
func NewReproductionsHandler(service ReproductionService, store ReproductionStore, logger zerolog.Logger) *ReproductionsHandler {
	return &ReproductionsHandler{
		service: service,
		store:   store,
		logger:  logger.With().Str("component", "reproductions_handler").Logger(),
	}
}

// RegisterRoutes registers reproduction routes on the given router group.
func (h *ReproductionsHandler) RegisterRoutes(r *gin.RouterGroup) {
	view := middleware.RequirePermission(auth.PermReproductionView)
	modify := middleware.RequirePermission(auth.PermReproductionModify)

	reproductions := r.Group("/reproductions")
	{
		reproductions.GET("", view, h.List)
		reproductions.POST("", modify, h.Create)
		reproductions.GET("/:id", view, h.Get)
		reproductions.PUT("/:id", modify, h.Update)
		reproductions.DELETE("/:id", middleware.RequirePermission(auth.PermReproductionDelete), h.Delete)
		reproductions.POST("/:id/status", modify, h.ApplyStatus)
		reproductions.POST("/:id/print", modify, h.Print)
	}
}

// RegisterPublicRoutes registers the customer order form and lookup. limit
// guards them against token guessing and flooding and may be nil.
func (h *ReproductionsHandler) RegisterPublicRoutes(r *gin.RouterGroup, limit gin.HandlerFunc) {
	r.POST("/reproductions", limited(limit, h.CreatePublic)...)
	r.GET("/reproductions/:token", limited(limit, h.GetPublic)...)
}

// limited prepends limit to h when it is set.
func limited(limit, h gin.HandlerFunc) []gin.HandlerFunc {
	if limit == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{limit, h}
}

// List returns reproductions matching the query.
// GET /api/v1/reproductions
func (h *ReproductionsHandler) List(c *gin.Context) {
	f := models.ReproductionFilter{
		Status: models.ReproductionStatus(c.Query("status")),
		Search: c.Query("q"),
		Sort:   c.Query("sort"),
		Desc:   c.Query("order") == "desc",
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	var err error
	if f.From, err = optionalDate(c, "from"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if f.To, err = optionalDate(c, "to"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f.Limit, f.Offset = pagination(c)

	reproductions, total, err := h.store.ListReproductions(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err, "failed to list reproductions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"reproductions": reproductions, "total": total})
}

// Get returns one reproduction with its line items.
// GET /api/v1/reproductions/:id
func (h *ReproductionsHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "reproduction")
	if !ok {
		return
	}

	r, err := h.store.GetReproduction(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get reproduction")
		return
	}

	c.JSON(http.StatusOK, r)
}

// Create registers a reproduction waiting for order details.
//
//	@Summary		Create reproduction
//	@Tags			Reproductions
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.CreateReproductionRequest	true	"Reproduction"
//	@Success		201		{object}	models.Reproduction
//	@Failure		400		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/api/v1/reproductions [post]
func (h *ReproductionsHandler) Create(c *gin.Context) {
	var req models.CreateReproductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.service.CreateReproduction(c.Request.Context(), req, createOptions(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to create reproduction")
		return
	}

	c.JSON(http.StatusCreated, r)
}

// CreatePublic registers a reproduction ordered by a customer. Only holdings
// that are available and open can be ordered.
//
//	@Summary		Order reproduction
//	@Description	Customer order form. The order token is sent by mail, not returned.
//	@Tags			Public
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.CreateReproductionRequest	true	"Reproduction"
//	@Success		201		{object}	models.PublicReproduction
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Failure		429		{object}	map[string]string
//	@Router			/api/v1/public/reproductions [post]
func (h *ReproductionsHandler) CreatePublic(c *gin.Context) {
	var req models.CreateReproductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.service.CreateReproduction(c.Request.Context(), req, delivery.CreateOptions{RequireAvailable: true})
	if err != nil {
		respondError(c, h.logger, err, "failed to create reproduction")
		return
	}

	c.JSON(http.StatusCreated, r.Public())
}

// Update edits a reproduction.
// PUT /api/v1/reproductions/:id
func (h *ReproductionsHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "reproduction")
	if !ok {
		return
	}

	var req models.UpdateReproductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	r, err := h.service.EditReproduction(c.Request.Context(), id, req, createOptions(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to update reproduction")
		return
	}

	c.JSON(http.StatusOK, r)
}

// Delete removes a reproduction and releases its holdings.
// DELETE /api/v1/reproductions/:id
func (h *ReproductionsHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "reproduction")
	if !ok {
		return
	}

	if err := h.service.DeleteReproduction(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "failed to delete reproduction")
		return
	}

	h.logger.Info().Str("reproduction_id", id.String()).Msg("reproduction deleted")
	c.JSON(http.StatusOK, gin.H{"message": "reproduction deleted"})
}

// ApplyStatus moves a reproduction to a new status.
//
//	@Summary		Change reproduction status
//	@Tags			Reproductions
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Reproduction ID"
//	@Param			request	body		StatusRequest	true	"Target status"
//	@Success		200		{object}	models.Reproduction
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/api/v1/reproductions/{id}/status [post]
func (h *ReproductionsHandler) ApplyStatus(c *gin.Context) {
	id, ok := parseID(c, "id", "reproduction")
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := models.ReproductionStatus(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	r, err := h.service.ApplyReproductionStatus(c.Request.Context(), id, status)
	if err != nil {
		respondError(c, h.logger, err, "failed to change reproduction status")
		return
	}

	c.JSON(http.StatusOK, r)
}

// Print flags the reproduction's line items printed and returns their labels.
// POST /api/v1/reproductions/:id/print
func (h *ReproductionsHandler) Print(c *gin.Context) {
	id, ok := parseID(c, "id", "reproduction")
	if !ok {
		return
	}

	var req PrintRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	ref := models.RequestRef{Kind: models.RequestKindReproduction, ID: id}
	labels, err := h.service.MarkPrinted(c.Request.Context(), ref, req.Always)
	if err != nil {
		respondError(c, h.logger, err, "failed to print reproduction")
		return
	}
	if labels == nil {
		labels = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"labels": labels})
}

// GetPublic returns the customer view of a reproduction by its token.
//
//	@Summary		Look up reproduction
//	@Description	Customer-facing order page data. The token is the secret from the order mail.
//	@Tags			Public
//	@Produce		json
//	@Param			token	path		string	true	"Order token"
//	@Success		200		{object}	models.PublicReproduction
//	@Failure		404		{object}	map[string]string
//	@Failure		429		{object}	map[string]string
//	@Router			/api/v1/public/reproductions/{token} [get]
func (h *ReproductionsHandler) GetPublic(c *gin.Context) {
	token := c.Param("token")
	if token == "" || len(token) > 128 {
		c.JSON(http.StatusNotFound, gin.H{"error": "reproduction not found"})
		return
	}

	r, err := h.store.GetReproductionByToken(c.Request.Context(), token)
	if err != nil {
		// A wrong token and a missing order look the same.
		if statusFor(err) == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "reproduction not found"})
			return
		}
		respondError(c, h.logger, err, "failed to get reproduction")
		return
	}

	c.JSON(http.StatusOK, r.Public())
}
