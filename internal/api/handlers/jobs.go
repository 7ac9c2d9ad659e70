package handlers

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"

	"github.com/orrn/printpipe/internal/core"
	"github.com/orrn/printpipe/internal/registry"
)

const (
	defaultPayload   = "Default print content"
	errSubmitRefused = "failed to submit job (not found or already submitted)"
)

type CreateJobRequest struct {
	Name    string  `json:"name"`
	Payload *string `json:"payload"`
}

type JobResponse struct {
	ID         string `json:"job_id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	OutputFile string `json:"output_file"`
	FileExists bool   `json:"file_exists"`
}

type Submitter interface {
	Submit(job *core.Job) bool
}

type JobHandler struct {
	registry  *registry.Registry
	scheduler Submitter
	logger    hclog.Logger
}

func NewJobHandler(reg *registry.Registry, scheduler Submitter, logger hclog.Logger) *JobHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &JobHandler{
		registry:  reg,
		scheduler: scheduler,
		logger:    logger,
	}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
	}

	payload := defaultPayload
	if req.Payload != nil {
		payload = *req.Payload
	}

	if req.Name != "" {
		if err := core.ValidateJobName(req.Name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	entry, err := h.registry.Create(req.Name, []byte(payload))
	if err != nil {
		h.logger.Error("failed to create job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	h.logger.Info("job created", "job_id", entry.ID, "name", entry.Name)
	c.JSON(http.StatusCreated, gin.H{
		"job_id":  entry.ID,
		"status":  "created",
		"message": "Job created successfully. Use /api/jobs/" + entry.ID + "/submit to submit it.",
	})
}

func (h *JobHandler) SubmitJob(c *gin.Context) {
	id := c.Param("id")

	entry, err := h.registry.Get(id)
	if err != nil || entry.Job.State() != core.JobStateCreated || !entry.MarkSubmitted() {
		c.JSON(http.StatusBadRequest, gin.H{"error": errSubmitRefused})
		return
	}
	if !h.scheduler.Submit(entry.Job) {
		entry.UnmarkSubmitted()
		c.JSON(http.StatusBadRequest, gin.H{"error": errSubmitRefused})
		return
	}

	h.logger.Info("job submitted", "job_id", id)
	c.JSON(http.StatusOK, gin.H{
		"job_id": id,
		"status": "submitted",
	})
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}

	if !entry.Job.Cancel() {
		c.JSON(http.StatusConflict, gin.H{
			"error": "job already finished",
			"state": entry.Job.State().String(),
		})
		return
	}

	h.logger.Info("job canceled", "job_id", entry.ID)
	c.JSON(http.StatusOK, gin.H{
		"job_id": entry.ID,
		"state":  entry.Job.State().String(),
	})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toJobResponse(entry))
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var (
		entries []*registry.Entry
		err     error
	)
	if name := c.Query("name"); name != "" {
		entries, err = h.registry.ByName(name)
	} else {
		entries, err = h.registry.List()
	}
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	resp := make([]JobResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, toJobResponse(entry))
	}
	c.JSON(http.StatusOK, resp)
}

// GetOutput serves the file the backend wrote for the job.
func (h *JobHandler) GetOutput(c *gin.Context) {
	entry, ok := h.lookup(c)
	if !ok {
		return
	}

	data, err := os.ReadFile(entry.OutputFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "output file not found"})
			return
		}
		h.logger.Error("failed to read output", "job_id", entry.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read output file"})
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

func (h *JobHandler) lookup(c *gin.Context) (*registry.Entry, bool) {
	entry, err := h.registry.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, registry.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return nil, false
	}
	return entry, true
}

func toJobResponse(entry *registry.Entry) JobResponse {
	_, err := os.Stat(entry.OutputFile)
	return JobResponse{
		ID:         entry.ID,
		Name:       entry.Name,
		State:      entry.Job.State().String(),
		OutputFile: entry.OutputFile,
		FileExists: err == nil,
	}
}

// RegisterJobRoutes mounts the job routes. protect guards the routes that
// change job state.
func RegisterJobRoutes(r *gin.RouterGroup, h *JobHandler, protect gin.HandlerFunc, throttle gin.HandlerFunc) {
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/:id", h.GetJob)
	r.GET("/jobs/:id/output", h.GetOutput)
	r.POST("/jobs", protect, h.CreateJob)
	r.POST("/jobs/:id/submit", protect, throttle, h.SubmitJob)
	r.POST("/jobs/:id/cancel", protect, h.CancelJob)
}
