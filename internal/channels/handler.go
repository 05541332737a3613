package channels

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/echotrace/backend/internal/ingest"
	"github.com/echotrace/backend/pkg/response"
)

// IngestRequest is the body for POST /channels/ingest.
type IngestRequest struct {
	ChannelIDs []string `json:"channel_ids" binding:"required"`
	MaxVideos  int      `json:"max_videos"`
	DryRun     bool     `json:"dry_run"`
}

// Handler handles channel HTTP endpoints.
type Handler struct {
	repo     *Repository
	ingester *ingest.Ingester
	logger   *zap.Logger
}

// NewHandler creates a channel handler.
func NewHandler(repo *Repository, ingester *ingest.Ingester, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, ingester: ingester, logger: logger}
}

// List handles GET /channels.
func (h *Handler) List(c *gin.Context) {
	channels, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list channels", zap.Error(err))
		response.Internal(c, "failed to list channels")
		return
	}
	response.OK(c, channels)
}

// Ingest handles POST /channels/ingest: runs a full ingestion for the given
// channels and returns the batch report.
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.ChannelIDs) == 0 {
		response.BadRequest(c, "channel_ids required")
		return
	}

	report := h.ingester.IngestAll(c.Request.Context(), req.ChannelIDs, req.MaxVideos, req.DryRun)
	response.OK(c, report)
}

// IngestOne handles POST /channels/:external_id/ingest.
func (h *Handler) IngestOne(c *gin.Context) {
	externalID := c.Param("external_id")
	maxVideos, _ := strconv.Atoi(c.DefaultQuery("max_videos", "0"))
	dryRun := c.Query("dry_run") == "true"

	report, err := h.ingester.IngestChannel(c.Request.Context(), externalID, maxVideos, dryRun)
	if err != nil {
		h.logger.Error("ingest channel", zap.String("channel_id", externalID), zap.Error(err))
		response.Internal(c, "channel ingestion failed")
		return
	}
	response.OK(c, report)
}
