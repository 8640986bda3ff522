package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/api/middleware"
	"github.com/socialhistoryservices/delivery/internal/auth"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// HoldingService defines the holding operations of the delivery service.
type HoldingService interface {
	SetHoldingStatus(ctx context.Context, holdingID uuid.UUID, status models.HoldingStatus) (*models.Holding, error)
	DeleteHolding(ctx context.Context, holdingID uuid.UUID) error
	PlaceOnHold(ctx context.Context, holdingID uuid.UUID) (models.RequestRef, error)
	ReleaseHold(ctx context.Context, holdingID uuid.UUID) (models.RequestRef, error)
}

// HoldingStore defines holding persistence used directly by the handler.
type HoldingStore interface {
	CreateHolding(ctx context.Context, h *models.Holding) error
	GetHolding(ctx context.Context, id uuid.UUID) (*models.Holding, error)
	ListHoldings(ctx context.Context, f models.HoldingFilter) ([]*models.Holding, int, error)
}

// HoldingsHandler handles holding HTTP endpoints.
type HoldingsHandler struct {
	service HoldingService
	store   HoldingStore
	logger  zerolog.Logger
}

// NewHoldingsHandler creates a new HoldingsHandler.
func NewHoldingsHandler(service HoldingService, store HoldingStore, logger zerolog.Logger) *HoldingsHandler {
	return &HoldingsHandler{
		service: service,
		store:   store,
		logger:  logger.With().Str("component", "holdings_handler").Logger(),
	}
}

// RegisterRoutes registers holding routes on the given router group.
func (h *HoldingsHandler) RegisterRoutes(r *gin.RouterGroup) {
	modify := middleware.RequirePermission(auth.PermHoldingModify)

	holdings := r.Group("/holdings")
	{
		holdings.GET("", h.List)
		holdings.POST("", modify, h.Create)
		holdings.GET("/:id", h.Get)
		holdings.DELETE("/:id", modify, h.Delete)
		holdings.PUT("/:id/status", modify, h.SetStatus)
		holdings.POST("/:id/hold", modify, h.PlaceOnHold)
		holdings.DELETE("/:id/hold", modify, h.ReleaseHold)
	}
}

// List returns holdings matching the query.
// GET /api/v1/holdings
func (h *HoldingsHandler) List(c *gin.Context) {
	f := models.HoldingFilter{
		Status:    models.HoldingStatus(c.Query("status")),
		RecordPID: c.Query("pid"),
		Search:    c.Query("q"),
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if v := c.Query("floor"); v != "" {
		floor, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid floor"})
			return
		}
		f.Floor = &floor
	}
	f.Limit, f.Offset = pagination(c)

	holdings, total, err := h.store.ListHoldings(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err, "failed to list holdings")
		return
	}

	c.JSON(http.StatusOK, gin.H{"holdings": holdings, "total": total})
}

// Get returns one holding.
// GET /api/v1/holdings/:id
func (h *HoldingsHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "holding")
	if !ok {
		return
	}

	holding, err := h.store.GetHolding(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get holding")
		return
	}

	c.JSON(http.StatusOK, holding)
}

// Create registers a holding. Its usage restriction follows from the signature.
// POST /api/v1/holdings
func (h *HoldingsHandler) Create(c *gin.Context) {
	var req models.CreateHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	holding := models.NewHolding(req.RecordPID, req.Signature)
	holding.Title = req.Title
	holding.Floor = req.Floor
	holding.Direction = req.Direction
	holding.Cabinet = req.Cabinet
	holding.Shelf = req.Shelf

	if err := h.store.CreateHolding(c.Request.Context(), holding); err != nil {
		respondError(c, h.logger, err, "failed to create holding")
		return
	}

	h.logger.Info().
		Str("holding_id", holding.ID.String()).
		Str("signature", holding.Signature).
		Str("usage_restriction", string(holding.UsageRestriction)).
		Msg("holding created")
	c.JSON(http.StatusCreated, holding)
}

// Delete removes a holding that no request references.
// DELETE /api/v1/holdings/:id
func (h *HoldingsHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "holding")
	if !ok {
		return
	}

	if err := h.service.DeleteHolding(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "failed to delete holding")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "holding deleted"})
}

// SetStatus overrides a holding's status.
//
//	@Summary		Override holding status
//	@Tags			Holdings
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string								true	"Holding ID"
//	@Param			request	body		models.UpdateHoldingStatusRequest	true	"Status"
//	@Success		200		{object}	models.Holding
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/api/v1/holdings/{id}/status [put]
func (h *HoldingsHandler) SetStatus(c *gin.Context) {
	id, ok := parseID(c, "id", "holding")
	if !ok {
		return
	}

	var req models.UpdateHoldingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	holding, err := h.service.SetHoldingStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, h.logger, err, "failed to set holding status")
		return
	}

	p := middleware.GetPrincipal(c)
	h.logger.Info().
		Str("holding_id", id.String()).
		Str("status", string(holding.Status)).
		Str("by", p.Subject).
		Msg("holding status overridden")
	c.JSON(http.StatusOK, holding)
}

// PlaceOnHold suspends the claim of the request using the holding.
// POST /api/v1/holdings/:id/hold
func (h *HoldingsHandler) PlaceOnHold(c *gin.Context) {
	id, ok := parseID(c, "id", "holding")
	if !ok {
		return
	}

	ref, err := h.service.PlaceOnHold(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to place holding on hold")
		return
	}

	c.JSON(http.StatusOK, gin.H{"on_hold_for": ref})
}

// ReleaseHold gives the holding back to the request that had it on hold.
// DELETE /api/v1/holdings/:id/hold
func (h *HoldingsHandler) ReleaseHold(c *gin.Context) {
	id, ok := parseID(c, "id", "holding")
	if !ok {
		return
	}

	ref, err := h.service.ReleaseHold(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to release hold")
		return
	}

	c.JSON(http.StatusOK, gin.H{"resumed": ref})
}
