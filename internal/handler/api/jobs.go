package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	reqdto "notify-dispatch/internal/handler/dto/request"
	resdto "notify-dispatch/internal/handler/dto/response"
	"notify-dispatch/internal/handler/httperr"
	"notify-dispatch/internal/usecase/commands"
	"notify-dispatch/internal/usecase/queries"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type JobHandler struct {
	cmds             commands.DispatchCommands
	q                queries.JobQueries
	defaultBatchSize int
}

func NewJobHandler(cmds commands.DispatchCommands, q queries.JobQueries, defaultBatchSize int) *JobHandler {
	return &JobHandler{cmds: cmds, q: q, defaultBatchSize: defaultBatchSize}
}

// @Summary Enqueue notification job
// @Description Accept a notification job for asynchronous delivery
// @Tags jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.CreateJobRequest true "Create job request"
// @Success 201 {object} resdto.JobResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /jobs [post]
func (h *JobHandler) Create(c *gin.Context) {
	var req reqdto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}

	j, err := h.cmds.EnqueueJob(c.Request.Context(), req.ToSpec())
	if err != nil {
		if errors.Is(err, commands.ErrValidation) {
			httperr.AbortWithError(c, http.StatusBadRequest, err, "Validation failed", nil)
			return
		}
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Failed to enqueue job", nil)
		return
	}

	view, err := h.q.GetByID(c.Request.Context(), j.ID)
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Failed to load job", nil)
		return
	}
	c.JSON(http.StatusCreated, resdto.FromJobView(view))
}

// @Summary Process due jobs
// @Description Drain the due queue once: claim eligible jobs and run one delivery attempt each
// @Tags jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.ProcessJobsRequest false "Batch options"
// @Success 200 {object} resdto.ProcessResultResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /jobs/process [post]
func (h *JobHandler) Process(c *gin.Context) {
	var req reqdto.ProcessJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid request", nil)
		return
	}
	limit := req.Limit
	if limit < 1 {
		limit = h.defaultBatchSize
	}

	result, err := h.cmds.ProcessDueJobs(c.Request.Context(), limit)
	if err != nil {
		slog.Error("process due jobs failed", "error", err)
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Failed to process jobs", nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromProcessResult(result))
}

// @Summary Retry job
// @Description Re-arm a failed or stuck job for another delivery attempt
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} resdto.JobResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /jobs/{id}/retry [post]
func (h *JobHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return
	}

	if _, err := h.cmds.RetryJob(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, commands.ErrJobNotFound):
			httperr.AbortWithError(c, http.StatusNotFound, err, "Job not found", nil)
		case errors.Is(err, commands.ErrJobNotRetriable):
			httperr.AbortWithError(c, http.StatusConflict, err, "Job is not retriable", nil)
		default:
			httperr.AbortWithError(c, http.StatusInternalServerError, err, "Retry failed", nil)
		}
		return
	}

	view, err := h.q.GetByID(c.Request.Context(), id)
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Failed to load job", nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromJobView(view))
}

// @Summary Get job
// @Description Get one notification job by ID
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} resdto.JobResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /jobs/{id} [get]
func (h *JobHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return
	}

	view, err := h.q.GetByID(c.Request.Context(), id)
	if err != nil {
		httperr.AbortWithError(c, http.StatusNotFound, err, "Job not found", nil)
		return
	}
	c.JSON(http.StatusOK, resdto.FromJobView(view))
}

// @Summary List jobs
// @Description List notification jobs, newest first, with optional filters
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param channel query string false "Filter by channel"
// @Param businessId query string false "Filter by business ID"
// @Success 200 {array} resdto.JobResponse
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /jobs [get]
func (h *JobHandler) List(c *gin.Context) {
	var filter queries.JobFilter
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("channel"); v != "" {
		filter.Channel = &v
	}
	if v := c.Query("businessId"); v != "" {
		filter.BusinessID = &v
	}

	views, err := h.q.List(c.Request.Context(), filter)
	if err != nil {
		slog.Error("list jobs failed", "error", err)
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal error", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": resdto.FromJobList(views)})
}

// @Summary Job audit trail
// @Description List the audit entries of one job, newest first
// @Tags audit
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {array} resdto.AuditEntryResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /jobs/{id}/audit [get]
func (h *JobHandler) Audit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httperr.AbortWithError(c, http.StatusBadRequest, err, "Invalid id", nil)
		return
	}

	// 404 for unknown jobs rather than an empty list
	if _, err := h.q.GetByID(c.Request.Context(), id); err != nil {
		httperr.AbortWithError(c, http.StatusNotFound, err, "Job not found", nil)
		return
	}

	views, err := h.q.ListAuditLogs(c.Request.Context(), &id)
	if err != nil {
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal error", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": resdto.FromAuditList(views)})
}

// @Summary Global audit trail
// @Description List audit entries across all jobs, newest first
// @Tags audit
// @Produce json
// @Security BearerAuth
// @Success 200 {array} resdto.AuditEntryResponse
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /audit [get]
func (h *JobHandler) AuditAll(c *gin.Context) {
	views, err := h.q.ListAuditLogs(c.Request.Context(), nil)
	if err != nil {
		slog.Error("list audit entries failed", "error", err)
		httperr.AbortWithError(c, http.StatusInternalServerError, err, "Internal error", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": resdto.FromAuditList(views)})
}
