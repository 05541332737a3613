package videos

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echotrace/backend/pkg/response"
)

// Handler handles video HTTP endpoints.
type Handler struct {
	repo         *Repository
	fingerprints *FingerprintRepository
	logger       *zap.Logger
}

// NewHandler creates a video handler.
func NewHandler(repo *Repository, fingerprints *FingerprintRepository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, fingerprints: fingerprints, logger: logger}
}

// ListByChannel handles GET /videos?channel_id=.
func (h *Handler) ListByChannel(c *gin.Context) {
	channelID, err := uuid.Parse(c.Query("channel_id"))
	if err != nil {
		response.BadRequest(c, "invalid channel_id")
		return
	}
	list, err := h.repo.ListByChannel(c.Request.Context(), channelID)
	if err != nil {
		h.logger.Error("list videos", zap.Error(err))
		response.Internal(c, "failed to list videos")
		return
	}
	response.OK(c, list)
}

// Get handles GET /videos/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	video, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get video", zap.Error(err))
		response.Internal(c, "failed to load video")
		return
	}
	if video == nil {
		response.NotFound(c, "video not found")
		return
	}
	response.OK(c, video)
}

// ListFingerprints handles GET /videos/:id/fingerprints.
func (h *Handler) ListFingerprints(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid video id")
		return
	}
	list, err := h.fingerprints.ListByVideo(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("list fingerprints", zap.Error(err))
		response.Internal(c, "failed to list fingerprints")
		return
	}
	response.OK(c, list)
}
