// Package handlers provides HTTP handlers for the delivery API.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/delivery"
)

// statusFor maps a service error to its HTTP status code. Unknown errors are
// internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, delivery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, delivery.ErrIllegalStatusTransition),
		errors.Is(err, delivery.ErrHoldingNotInRequest),
		errors.Is(err, delivery.ErrHoldingRestricted),
		errors.Is(err, delivery.ErrNoHoldings),
		errors.Is(err, delivery.ErrDuplicateHolding):
		return http.StatusBadRequest
	case errors.Is(err, delivery.ErrNoActiveHold),
		errors.Is(err, delivery.ErrConflictingHold),
		errors.Is(err, delivery.ErrConcurrentModification),
		errors.Is(err, delivery.ErrHoldingUnavailable),
		errors.Is(err, delivery.ErrHoldingInUse):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error. Internal errors are logged and
// answered with fallback instead of the error text.
func respondError(c *gin.Context, logger zerolog.Logger, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(fallback)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// parseID reads a uuid path parameter, answering 400 when it is malformed.
func parseID(c *gin.Context, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// pagination reads limit and offset query parameters.
func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// optionalBool reads a true/false query parameter. Absent or malformed values
// give nil.
func optionalBool(c *gin.Context, key string) *bool {
	v, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return nil
	}
	return &v
}

// optionalDate reads a YYYY-MM-DD query parameter.
func optionalDate(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date %q", key, v)
	}
	return &t, nil
}
