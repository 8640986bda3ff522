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

// ScanService defines the desk operations of the delivery service.
type ScanService interface {
	Scan(ctx context.Context, identifier string) (*delivery.ScanResult, error)
	MarkItem(ctx context.Context, ref models.RequestRef, holdingID uuid.UUID) (*models.Holding, error)
}

// ScanRequest is the body of a barcode scan.
type ScanRequest struct {
	Identifier string `json:"identifier" binding:"required,max=128"`
}

// ScanHandler handles the reading-room desk endpoints.
type ScanHandler struct {
	service ScanService
	logger  zerolog.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(service ScanService, logger zerolog.Logger) *ScanHandler {
	return &ScanHandler{
		service: service,
		logger:  logger.With().Str("component", "scan_handler").Logger(),
	}
}

// RegisterRoutes registers desk routes on the given router group.
func (h *ScanHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/scan", middleware.RequirePermission(auth.PermReservationModify), h.Scan)
	r.POST("/reservations/:id/items/:holding_id/mark",
		middleware.RequirePermission(auth.PermReservationModify), h.mark(models.RequestKindReservation))
	r.POST("/reproductions/:id/items/:holding_id/mark",
		middleware.RequirePermission(auth.PermReproductionModify), h.mark(models.RequestKindReproduction))
}

// Scan advances the holding behind a scanned slip or holding barcode.
//
//	@Summary		Scan barcode
//	@Description	Resolves a line item or holding id and advances the holding one step. Unknown identifiers give outcome not_found.
//	@Tags			Desk
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ScanRequest	true	"Scanned identifier"
//	@Success		200		{object}	delivery.ScanResult
//	@Failure		400		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Security		BearerAuth
//	@Router			/api/v1/scan [post]
func (h *ScanHandler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Scan(c.Request.Context(), req.Identifier)
	if err != nil {
		respondError(c, h.logger, err, "failed to process scan")
		return
	}

	c.JSON(http.StatusOK, result)
}

// mark returns a handler that advances one line item of a request of kind.
// POST /api/v1/{kind}s/:id/items/:holding_id/mark
func (h *ScanHandler) mark(kind models.RequestKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id", string(kind))
		if !ok {
			return
		}
		holdingID, ok := parseID(c, "holding_id", "holding")
		if !ok {
			return
		}

		ref := models.RequestRef{Kind: kind, ID: id}
		holding, err := h.service.MarkItem(c.Request.Context(), ref, holdingID)
		if err != nil {
			respondError(c, h.logger, err, "failed to mark item")
			return
		}

		c.JSON(http.StatusOK, holding)
	}
}
