package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
)

// VersionInfo contains server version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
}

// VersionHandler serves build information.
type VersionHandler struct {
	info VersionInfo
}

// NewVersionHandler creates a new VersionHandler.
func NewVersionHandler(version, commit, buildDate string) *VersionHandler {
	return &VersionHandler{
		info: VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
			GoVersion: runtime.Version(),
		},
	}
}

// RegisterPublicRoutes registers version routes that don't require authentication.
func (h *VersionHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/version", h.Get)
}

// Get returns the server version information.
// GET /version
func (h *VersionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}
