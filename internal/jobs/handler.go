package jobs

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echotrace/backend/internal/models"
	"github.com/echotrace/backend/pkg/response"
)

// Handler handles job HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a job handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /jobs?status=&limit=.
func (h *Handler) List(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	switch status {
	case "", models.JobStatusPending, models.JobStatusRunning, models.JobStatusCompleted, models.JobStatusFailed:
	default:
		response.BadRequest(c, "invalid status")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := h.repo.List(c.Request.Context(), status, limit)
	if err != nil {
		h.logger.Error("list jobs", zap.Error(err))
		response.Internal(c, "failed to list jobs")
		return
	}
	response.OK(c, list)
}

// Get handles GET /jobs/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid job id")
		return
	}
	job, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get job", zap.Error(err))
		response.Internal(c, "failed to load job")
		return
	}
	if job == nil {
		response.NotFound(c, "job not found")
		return
	}
	response.OK(c, job)
}
