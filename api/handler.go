package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"subsai/analytics"
	"subsai/batch"
	"subsai/config"
	"subsai/logger"
	"subsai/storage"

	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"
)

// RecentEvents lists stored analytics events, newest first.
type RecentEvents interface {
	Recent(ctx context.Context, limit int) ([]analytics.Event, error)
}

type Handler struct {
	proc   *batch.Processor
	cfg    *config.Config
	events RecentEvents
	// ctx outlives requests; the worker started by /batch/start runs under it.
	ctx context.Context
}

func NewHandler(ctx context.Context, proc *batch.Processor, cfg *config.Config, events RecentEvents) *Handler {
	return &Handler{
		proc:   proc,
		cfg:    cfg,
		events: events,
		ctx:    ctx,
	}
}

type JobRequest struct {
	InputPath       string   `json:"inputPath" binding:"required"`
	DisplayName     string   `json:"displayName"`
	ByteSize        int64    `json:"byteSize"`
	SourceLanguage  string   `json:"sourceLanguage"`
	TargetLanguages []string `json:"targetLanguages"`
	OutputFormats   []string `json:"outputFormats"`
	Upload          bool     `json:"upload"`
	Folder          string   `json:"folder"`
}

func (r JobRequest) options() batch.JobOptions {
	return batch.JobOptions{
		SourceLanguage:  r.SourceLanguage,
		TargetLanguages: r.TargetLanguages,
		OutputFormats:   r.OutputFormats,
		ExportOptions:   batch.ExportOptions{Upload: r.Upload, Folder: r.Folder},
	}
}

// jobResponse adds download links to a job snapshot.
type jobResponse struct {
	*batch.Job
	DownloadURLs map[string]string `json:"downloadUrls,omitempty"`
}

type batchResponse struct {
	State        batch.State   `json:"state"`
	CurrentJobID string        `json:"currentJobId,omitempty"`
	Summary      batch.Summary `json:"summary"`
}

type snapshot struct {
	batchResponse
	Jobs []*batch.Job `json:"jobs"`
}

// handleCreateJob registers a job for a file already on the server.
func (h *Handler) handleCreateJob(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	size := req.ByteSize
	if size == 0 {
		if info, err := os.Stat(req.InputPath); err == nil {
			size = info.Size()
		}
	}

	id, err := h.proc.AddJob(req.InputPath, req.DisplayName, size, req.options())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": id})
}

// handleUpload stores a multipart media upload in the scratch dir and
// registers a job for it.
func (h *Handler) handleUpload(c *gin.Context) {
	if h.cfg.MaxInputSize > 0 {
		// Leave room for the multipart envelope and form fields.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxInputSize+1<<20)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds size limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("file is required: %v", err)})
		return
	}
	if h.cfg.MaxInputSize > 0 && fh.Size > h.cfg.MaxInputSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("input file size %d exceeds limit of %d bytes", fh.Size, h.cfg.MaxInputSize),
		})
		return
	}

	name := filepath.Base(fh.Filename)
	dest := filepath.Join(h.cfg.ScratchDir, "uploads", shortuuid.New()+"-"+storage.SanitizeName(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload", "details": err.Error()})
		return
	}
	if err := c.SaveUploadedFile(fh, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload", "details": err.Error()})
		return
	}

	opts := batch.JobOptions{
		SourceLanguage:  c.PostForm("sourceLanguage"),
		TargetLanguages: formList(c, "targetLanguages"),
		OutputFormats:   formList(c, "outputFormats"),
		ExportOptions: batch.ExportOptions{
			Upload: c.PostForm("upload") == "true",
			Folder: c.PostForm("folder"),
		},
	}
	id, err := h.proc.AddJob(dest, name, fh.Size, opts)
	if err != nil {
		os.Remove(dest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": id})
}

// formList reads a comma-separated field. An absent field yields nil so the
// processor applies its defaults.
func formList(c *gin.Context, key string) []string {
	raw, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	out := []string{}
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (h *Handler) handleListJobs(c *gin.Context) {
	jobs := h.proc.AllJobs()
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, h.withDownloads(c, j))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) handleGetJob(c *gin.Context) {
	job, found := h.proc.GetJob(c.Param("jobId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, h.withDownloads(c, job))
}

// withDownloads builds the full URL of every exported artifact.
func (h *Handler) withDownloads(c *gin.Context, job *batch.Job) jobResponse {
	resp := jobResponse{Job: job}
	if len(job.Results) == 0 {
		return resp
	}

	baseURL := h.cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	resp.DownloadURLs = make(map[string]string, len(job.Results))
	for _, r := range job.Results {
		resp.DownloadURLs[r.Filename] = fmt.Sprintf("%s/api/v1/jobs/%s/files/%s",
			baseURL, url.PathEscape(job.ID), url.PathEscape(r.Filename))
	}
	return resp
}

func (h *Handler) handleCancelJob(c *gin.Context) {
	id := c.Param("jobId")
	job, found := h.proc.GetJob(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if !h.proc.CancelJob(id) {
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Job is %s and can no longer be cancelled", job.Status)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job cancelled"})
}

func (h *Handler) handleClearCompleted(c *gin.Context) {
	n := h.proc.ClearCompleted()
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

// handleGetFile serves one exported artifact of a job.
func (h *Handler) handleGetFile(c *gin.Context) {
	filename := c.Param("filename")
	path, err := h.proc.ArtifactPath(c.Param("jobId"), filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(path, filename)
}

func (h *Handler) batchStatus() batchResponse {
	return batchResponse{
		State:        h.proc.State(),
		CurrentJobID: h.proc.CurrentJobID(),
		Summary:      h.proc.Progress(),
	}
}

func (h *Handler) handleBatchStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.batchStatus())
}

func (h *Handler) handleBatchStart(c *gin.Context) {
	if !h.proc.Start(h.ctx) {
		c.JSON(http.StatusConflict, gin.H{"error": "Batch processing is already running"})
		return
	}
	c.JSON(http.StatusAccepted, h.batchStatus())
}

func (h *Handler) handleBatchPause(c *gin.Context) {
	h.proc.Pause()
	c.JSON(http.StatusOK, h.batchStatus())
}

func (h *Handler) handleBatchStop(c *gin.Context) {
	h.proc.Stop()
	c.JSON(http.StatusOK, h.batchStatus())
}

// handleEvents streams a progress snapshot every PROGRESS_INTERVAL until the
// client goes away.
func (h *Handler) handleEvents(c *gin.Context) {
	interval := h.cfg.ProgressInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	send := func() {
		c.SSEvent("progress", snapshot{batchResponse: h.batchStatus(), Jobs: h.proc.AllJobs()})
	}
	send()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
			send()
			return true
		}
	})
	logger.Debug("Progress stream closed", "remote", c.ClientIP())
}

// handleRecentEvents lists recorded analytics events.
func (h *Handler) handleRecentEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analytics store not configured"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	events, err := h.events.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read analytics", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}
