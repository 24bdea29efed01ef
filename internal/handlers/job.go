package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobHandler handles job-related requests.
type JobHandler struct {
	service *service.JobService
	logger  *zap.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(service *service.JobService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

// CreateJobRequest represents the request to create a dubbing job.
type CreateJobRequest struct {
	SourceURL      string `json:"source_url" binding:"required"`
	TargetLanguage string `json:"target_language" binding:"required"`
}

// clientID identifies the caller for quota accounting. Authenticated
// deployments send X-Client-ID; everyone else is keyed by address.
func clientID(c *gin.Context) string {
	if id := c.GetHeader("X-Client-ID"); id != "" {
		return id
	}
	return c.ClientIP()
}

// CreateJob handles POST /api/v1/jobs.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, 1001, "invalid request", err.Error())
		return
	}

	job, err := h.service.CreateJob(c.Request.Context(), clientID(c), req.SourceURL, req.TargetLanguage)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSourceURL):
			h.respondError(c, http.StatusBadRequest, 1001, "invalid source url", err.Error())
		case errors.Is(err, service.ErrUnsupportedLanguage):
			h.respondError(c, http.StatusBadRequest, 1001, "unsupported target language", "")
		case errors.Is(err, service.ErrQuotaExceeded):
			h.respondError(c, http.StatusTooManyRequests, 1005, "daily job quota exceeded", "")
		default:
			h.logger.Error("Failed to create job", zap.Error(err))
			h.respondError(c, http.StatusInternalServerError, 1004, "internal server error", err.Error())
		}
		return
	}

	h.respondSuccess(c, gin.H{
		"job_id":          job.ID.String(),
		"status":          string(job.Status),
		"target_language": job.TargetLanguage,
		"created_at":      job.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, 1001, "invalid request", "invalid job_id")
		return
	}

	job, steps, err := h.service.GetJobWithSteps(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			h.respondError(c, http.StatusNotFound, 1002, "job not found", "")
			return
		}
		h.logger.Error("Failed to get job", zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, 1004, "internal server error", err.Error())
		return
	}

	// The DB status stays "pending" until the first step runs. For API
	// consumers, treat jobs with recorded steps as running.
	effectiveStatus := job.Status
	if job.Status == models.JobStatusPending && len(steps) > 0 {
		effectiveStatus = models.JobStatusRunning
	}

	stepResponses := make([]map[string]interface{}, len(steps))
	for i, step := range steps {
		stepResp := map[string]interface{}{
			"step":       step.Step,
			"status":     string(step.Status),
			"attempt":    step.Attempt,
			"started_at": nil,
			"ended_at":   nil,
		}
		if step.StartedAt != nil {
			stepResp["started_at"] = step.StartedAt.Format("2006-01-02T15:04:05Z")
		}
		if step.EndedAt != nil {
			stepResp["ended_at"] = step.EndedAt.Format("2006-01-02T15:04:05Z")
		}
		stepResponses[i] = stepResp
	}

	h.respondSuccess(c, map[string]interface{}{
		"job_id":          job.ID.String(),
		"status":          string(effectiveStatus),
		"stage":           string(job.Stage),
		"progress":        job.Progress,
		"source_language": job.SourceLanguage,
		"target_language": job.TargetLanguage,
		"duration_ms":     job.DurationMs,
		"error":           job.Error,
		"created_at":      job.CreatedAt.Format("2006-01-02T15:04:05Z"),
		"updated_at":      job.UpdatedAt.Format("2006-01-02T15:04:05Z"),
		"steps":           stepResponses,
	})
}

// GetJobArtifacts handles GET /api/v1/jobs/:job_id/artifacts.
func (h *JobHandler) GetJobArtifacts(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, 1001, "invalid request", "invalid job_id")
		return
	}

	artifacts, err := h.service.GetArtifacts(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			h.respondError(c, http.StatusNotFound, 1002, "job not found", "")
		case errors.Is(err, service.ErrJobNotCompleted):
			h.respondError(c, http.StatusBadRequest, 1003, "job not completed", "")
		default:
			h.logger.Error("Failed to get job artifacts", zap.Error(err))
			h.respondError(c, http.StatusInternalServerError, 1004, "internal server error", err.Error())
		}
		return
	}

	h.respondSuccess(c, gin.H{"artifacts": artifacts})
}

// ListJobs handles GET /api/v1/jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	status := c.Query("status")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	jobs, total, err := h.service.ListJobs(c.Request.Context(), clientID(c), status, page, pageSize)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, 1004, "internal server error", err.Error())
		return
	}

	jobList := make([]map[string]interface{}, len(jobs))
	for i, job := range jobs {
		jobList[i] = map[string]interface{}{
			"job_id":          job.ID.String(),
			"status":          string(job.Status),
			"stage":           string(job.Stage),
			"progress":        job.Progress,
			"target_language": job.TargetLanguage,
			"created_at":      job.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	h.respondSuccess(c, map[string]interface{}{
		"jobs":      jobList,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel.
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, 1001, "invalid request", "invalid job_id")
		return
	}

	if err := h.service.CancelJob(c.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			h.respondError(c, http.StatusNotFound, 1002, "job not found", "")
		case errors.Is(err, service.ErrJobAlreadyTerminal):
			h.respondError(c, http.StatusConflict, 1006, "job already finished", "")
		default:
			h.logger.Error("Failed to cancel job", zap.Error(err))
			h.respondError(c, http.StatusInternalServerError, 1004, "internal server error", err.Error())
		}
		return
	}

	h.respondSuccess(c, nil)
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id.
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, 1001, "invalid request", "invalid job_id")
		return
	}

	if err := h.service.DeleteJob(c.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, service.ErrJobNotFound):
			h.respondError(c, http.StatusNotFound, 1002, "job not found", "")
		case errors.Is(err, service.ErrJobNotCompleted):
			h.respondError(c, http.StatusConflict, 1006, "job still running", "cancel the job first")
		default:
			h.logger.Error("Failed to delete job", zap.Error(err))
			h.respondError(c, http.StatusInternalServerError, 1004, "internal server error", err.Error())
		}
		return
	}

	h.respondSuccess(c, nil)
}

// respondSuccess sends a success response.
func (h *JobHandler) respondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "success",
		"data":    data,
	})
}

// respondError sends an error response.
func (h *JobHandler) respondError(c *gin.Context, statusCode, code int, message, details string) {
	c.JSON(statusCode, gin.H{
		"code":    code,
		"message": message,
		"data":    details,
	})
}
