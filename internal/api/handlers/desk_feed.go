package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/activity"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// FeedServer upgrades requests to the live holding feed.
type FeedServer interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request, filter *activity.ClientFilter)
	ClientCount() int
}

// DeskFeedHandler serves the websocket feed shown on reading-room screens.
type DeskFeedHandler struct {
	feed   FeedServer
	logger zerolog.Logger
}

// NewDeskFeedHandler creates a new DeskFeedHandler.
func NewDeskFeedHandler(feed FeedServer, logger zerolog.Logger) *DeskFeedHandler {
	return &DeskFeedHandler{
		feed:   feed,
		logger: logger.With().Str("component", "desk_feed_handler").Logger(),
	}
}

// RegisterRoutes registers feed routes on the given router group.
func (h *DeskFeedHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/desk/feed", h.Feed)
	r.GET("/desk/feed/clients", h.Clients)
}

// Feed upgrades to a websocket of holding status changes. The floor and
// status query parameters are comma separated lists.
// GET /api/v1/desk/feed?floor=1,2&status=reserved
func (h *DeskFeedHandler) Feed(c *gin.Context) {
	filter, err := parseFeedFilter(c.Query("floor"), c.Query("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.feed.HandleWebSocket(c.Writer, c.Request, filter)
}

// Clients returns the number of connected feed clients.
// GET /api/v1/desk/feed/clients
func (h *DeskFeedHandler) Clients(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clients": h.feed.ClientCount()})
}

func parseFeedFilter(floors, statuses string) (*activity.ClientFilter, error) {
	if floors == "" && statuses == "" {
		return nil, nil
	}
	filter := &activity.ClientFilter{}
	for _, f := range splitList(floors) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid floor %q", f)
		}
		filter.Floors = append(filter.Floors, n)
	}
	for _, s := range splitList(statuses) {
		status := models.HoldingStatus(s)
		if !status.Valid() {
			return nil, fmt.Errorf("invalid status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return filter, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
