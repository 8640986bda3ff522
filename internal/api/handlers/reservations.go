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

// ReservationService defines the reservation operations of the delivery service.
type ReservationService interface {
	CreateReservation(ctx context.Context, req models.CreateReservationRequest, opts delivery.CreateOptions) (*models.Reservation, error)
	ApplyReservationStatus(ctx context.Context, id uuid.UUID, status models.ReservationStatus) (*models.Reservation, error)
	EditReservation(ctx context.Context, id uuid.UUID, upd models.UpdateReservationRequest, opts delivery.CreateOptions) (*models.Reservation, error)
	DeleteReservation(ctx context.Context, id uuid.UUID) error
	BulkApplyReservationStatus(ctx context.Context, ids []uuid.UUID, status models.ReservationStatus) []delivery.BulkResult
	MarkPrinted(ctx context.Context, ref models.RequestRef, always bool) ([]string, error)
}

// ReservationStore defines the reservation reads that bypass the service.
type ReservationStore interface {
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	ListReservations(ctx context.Context, f models.ReservationFilter) ([]*models.Reservation, int, error)
}

// StatusRequest is the body of a status change.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// BulkStatusRequest is the body of a bulk reservation status change.
type BulkStatusRequest struct {
	IDs    []uuid.UUID              `json:"ids" binding:"required,min=1,max=500"`
	Status models.ReservationStatus `json:"status" binding:"required"`
}

// PrintRequest is the body of a print queue request.
type PrintRequest struct {
	Always bool `json:"always"`
}

// ReservationsHandler handles reservation HTTP endpoints.
type ReservationsHandler struct {
	service ReservationService
	store   ReservationStore
	logger  zerolog.Logger
}

// NewReservationsHandler creates a new ReservationsHandler.
func NewReservationsHandler(service ReservationService, store ReservationStore, logger zerolog.Logger) *ReservationsHandler {
	return &ReservationsHandler{
		service: service,
		store:   store,
		logger:  logger.With().Str("component", "reservations_handler").Logger(),
	}
}

// RegisterRoutes registers reservation routes on the given router group.
func (h *ReservationsHandler) RegisterRoutes(r *gin.RouterGroup) {
	view := middleware.RequirePermission(auth.PermReservationView)
	modify := middleware.RequirePermission(auth.PermReservationModify)

	reservations := r.Group("/reservations")
	{
		reservations.GET("", view, h.List)
		reservations.POST("", modify, h.Create)
		reservations.POST("/bulk/status", modify, h.BulkStatus)
		reservations.GET("/:id", view, h.Get)
		reservations.PUT("/:id", modify, h.Update)
		reservations.DELETE("/:id", middleware.RequirePermission(auth.PermReservationDelete), h.Delete)
		reservations.POST("/:id/status", modify, h.ApplyStatus)
		reservations.POST("/:id/print", modify, h.Print)
	}
}

// RegisterPublicRoutes registers the visitor request form. limit guards it
// against flooding and may be nil.
func (h *ReservationsHandler) RegisterPublicRoutes(r *gin.RouterGroup, limit gin.HandlerFunc) {
	r.POST("/reservations", limited(limit, h.CreatePublic)...)
}

// createOptions lets staff who manage holdings request closed ones.
func createOptions(c *gin.Context) delivery.CreateOptions {
	return delivery.CreateOptions{AllowRestricted: middleware.GetPrincipal(c).Can(auth.PermHoldingModify)}
}

// List returns reservations matching the query.
//
//	@Summary		List reservations
//	@Tags			Reservations
//	@Produce		json
//	@Param			status	query		string	false	"Reservation status"
//	@Param			from	query		string	false	"First visit date (YYYY-MM-DD)"
//	@Param			to		query		string	false	"Last visit date (YYYY-MM-DD)"
//	@Param			q		query		string	false	"Search visitor name and email"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/api/v1/reservations [get]
func (h *ReservationsHandler) List(c *gin.Context) {
	f := models.ReservationFilter{
		Status:  models.ReservationStatus(c.Query("status")),
		Search:  c.Query("q"),
		Printed: optionalBool(c, "printed"),
		Special: optionalBool(c, "special"),
		Sort:    c.Query("sort"),
		Desc:    c.Query("order") == "desc",
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

	reservations, total, err := h.store.ListReservations(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err, "failed to list reservations")
		return
	}

	c.JSON(http.StatusOK, gin.H{"reservations": reservations, "total": total})
}

// Get returns one reservation with its line items.
// GET /api/v1/reservations/:id
func (h *ReservationsHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id", "reservation")
	if !ok {
		return
	}

	r, err := h.store.GetReservation(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get reservation")
		return
	}

	c.JSON(http.StatusOK, r)
}

// Create registers a reservation and reserves its holdings.
//
//	@Summary		Create reservation
//	@Tags			Reservations
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.CreateReservationRequest	true	"Reservation"
//	@Success		201		{object}	models.Reservation
//	@Failure		400		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/api/v1/reservations [post]
func (h *ReservationsHandler) Create(c *gin.Context) {
	var req models.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.service.CreateReservation(c.Request.Context(), req, createOptions(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to create reservation")
		return
	}

	c.JSON(http.StatusCreated, r)
}

// CreatePublic registers a reservation submitted by a visitor. Only holdings
// that are available and open can be requested.
//
//	@Summary		Request holdings
//	@Description	Visitor request form for a reading room visit.
//	@Tags			Public
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.CreateReservationRequest	true	"Reservation"
//	@Success		201		{object}	models.Reservation
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Failure		429		{object}	map[string]string
//	@Router			/api/v1/public/reservations [post]
func (h *ReservationsHandler) CreatePublic(c *gin.Context) {
	var req models.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.service.CreateReservation(c.Request.Context(), req, delivery.CreateOptions{RequireAvailable: true})
	if err != nil {
		respondError(c, h.logger, err, "failed to create reservation")
		return
	}

	c.JSON(http.StatusCreated, r)
}

// Update edits a reservation. Listed items replace the current ones.
// PUT /api/v1/reservations/:id
func (h *ReservationsHandler) Update(c *gin.Context) {
	id, ok := parseID(c, "id", "reservation")
	if !ok {
		return
	}

	var req models.UpdateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	r, err := h.service.EditReservation(c.Request.Context(), id, req, createOptions(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to update reservation")
		return
	}

	c.JSON(http.StatusOK, r)
}

// Delete removes a reservation and releases its holdings.
// DELETE /api/v1/reservations/:id
func (h *ReservationsHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id", "reservation")
	if !ok {
		return
	}

	if err := h.service.DeleteReservation(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "failed to delete reservation")
		return
	}

	h.logger.Info().Str("reservation_id", id.String()).Msg("reservation deleted")
	c.JSON(http.StatusOK, gin.H{"message": "reservation deleted"})
}

// ApplyStatus moves a reservation to a new status.
//
//	@Summary		Change reservation status
//	@Tags			Reservations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Reservation ID"
//	@Param			request	body		StatusRequest	true	"Target status"
//	@Success		200		{object}	models.Reservation
//	@Failure		400		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Security		SessionAuth
//	@Router			/api/v1/reservations/{id}/status [post]
func (h *ReservationsHandler) ApplyStatus(c *gin.Context) {
	id, ok := parseID(c, "id", "reservation")
	if !ok {
		return
	}

	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := models.ReservationStatus(req.Status)
	if !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	r, err := h.service.ApplyReservationStatus(c.Request.Context(), id, status)
	if err != nil {
		respondError(c, h.logger, err, "failed to change reservation status")
		return
	}

	c.JSON(http.StatusOK, r)
}

// BulkStatus applies one status to many reservations. Each reservation
// succeeds or fails on its own.
// POST /api/v1/reservations/bulk/status
func (h *ReservationsHandler) BulkStatus(c *gin.Context) {
	var req BulkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	results := h.service.BulkApplyReservationStatus(c.Request.Context(), req.IDs, req.Status)

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	h.logger.Info().
		Int("requested", len(req.IDs)).
		Int("failed", failed).
		Str("status", string(req.Status)).
		Msg("bulk reservation status applied")

	c.JSON(http.StatusOK, gin.H{"results": results, "failed": failed})
}

// Print flags the reservation's line items printed and returns their labels.
// POST /api/v1/reservations/:id/print
func (h *ReservationsHandler) Print(c *gin.Context) {
	id, ok := parseID(c, "id", "reservation")
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

	ref := models.RequestRef{Kind: models.RequestKindReservation, ID: id}
	labels, err := h.service.MarkPrinted(c.Request.Context(), ref, req.Always)
	if err != nil {
		respondError(c, h.logger, err, "failed to print reservation")
		return
	}
	if labels == nil {
		labels = []string{}
	}

	c.JSON(http.StatusOK, gin.H{"labels": labels})
}
