package web

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"

	"doomcover/internal/logger"
	"doomcover/internal/photo"
	"doomcover/internal/pipeline"
)

type CoverRequest struct {
	Band  string   `json:"band" binding:"required"`
	Album string   `json:"album" binding:"required"`
	Tags  []string `json:"tags"`
	Seed  uint64   `json:"seed"`
}

type JobResponse struct {
	ID          string    `json:"id"`
	Band        string    `json:"band"`
	Album       string    `json:"album"`
	Seed        uint64    `json:"seed,omitempty"`
	Status      JobStatus `json:"status"`
	Stage       string    `json:"stage,omitempty"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Attempts    int       `json:"attempts"`
	PhotoTags   []string  `json:"photo_tags,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Error       string    `json:"error,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   string    `json:"created_at"`
	StartedAt   *string   `json:"started_at,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateCover(c *gin.Context) {
	var req CoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "band and album are required"})
		return
	}
	req.Band, req.Album = strings.TrimSpace(req.Band), strings.TrimSpace(req.Album)
	if req.Band == "" || req.Album == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "band and album cannot be blank"})
		return
	}
	for _, t := range req.Tags {
		if strings.TrimSpace(t) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tags cannot contain blank entries"})
			return
		}
	}
	// Only well-formed requests count against the rate limit.
	if !s.allowCreate(c) {
		return
	}

	job := s.jobMgr.CreateJob(req.Band, req.Album, req.Tags, req.Seed)
	s.logger.Info("Created job %s for %q - %q", job.ID, job.Band, job.Album)

	go s.processJob(job)

	c.JSON(http.StatusAccepted, s.jobToResponse(job))
}

func (s *Server) handleListCovers(c *gin.Context) {
	jobs := s.jobMgr.ListJobs()
	responses := make([]*JobResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = s.jobToResponse(job)
	}
	c.JSON(http.StatusOK, responses)
}

func (s *Server) handleGetCover(c *gin.Context) {
	job, err := s.jobMgr.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.jobToResponse(job))
}

func (s *Server) handleCoverImage(c *gin.Context) {
	job, err := s.jobMgr.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if job.Status != StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "cover is not ready", "status": job.Status})
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, "image/png", job.Image)
}

func (s *Server) handleCancelCover(c *gin.Context) {
	id := c.Param("id")

	var cancel context.CancelFunc
	var status JobStatus
	err := s.jobMgr.UpdateJob(id, func(j *Job) {
		status = j.Status
		if j.Status.Done() {
			return
		}
		cancel = j.Cancel
		j.Status = StatusCancelled
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if status.Done() {
		c.JSON(http.StatusConflict, gin.H{"error": "job already finished", "status": status})
		return
	}
	if cancel != nil {
		cancel()
	}

	s.logger.Info("Cancelled job %s", id)
	c.JSON(http.StatusOK, gin.H{"status": StatusCancelled})
}

func (s *Server) processJob(job Job) {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// A job cancelled before it started stays cancelled.
	started := false
	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		if j.Status != StatusPending {
			return
		}
		j.Cancel = cancel
		j.Status = StatusRunning
		started = true
	})
	if !started {
		return
	}

	log := s.logger.With(job.ID[:8])
	log.Info("Starting job %s", job.ID)

	cfg := s.config
	cfg.Band, cfg.Album = job.Band, job.Album
	cfg.Seed = job.Seed
	if len(job.Tags) > 0 {
		cfg.Tags = job.Tags
	}

	maker, err := pipeline.New(cfg, log, s.deps)
	if err != nil {
		s.failJob(ctx, job.ID, log, err)
		return
	}
	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		j.Seed = maker.Seed()
	})

	hooks := pipeline.Hooks{
		OnStage: func(stage string) {
			s.jobMgr.UpdateJob(job.ID, func(j *Job) {
				if j.Stage != "" {
					j.StagesDone++
				}
				j.Stage = stage
			})
		},
		OnAttempt: func(a photo.Attempt) {
			s.jobMgr.UpdateJob(job.ID, func(j *Job) {
				j.Attempts++
				if a.Outcome == photo.Accepted {
					j.PhotoTags = append(j.PhotoTags, a.Tag)
				}
			})
		},
		OnWarning: func(msg string) {
			s.jobMgr.UpdateJob(job.ID, func(j *Job) {
				j.Warnings = append(j.Warnings, msg)
			})
		},
	}

	res, err := maker.Make(ctx, pipeline.Cover{Band: cfg.Band, Album: cfg.Album}, hooks)
	if err != nil {
		s.failJob(ctx, job.ID, log, err)
		return
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, res.Image, imaging.PNG); err != nil {
		s.failJob(ctx, job.ID, log, err)
		return
	}

	s.jobMgr.UpdateJob(job.ID, func(j *Job) {
		if j.Status != StatusRunning {
			return
		}
		j.Image = buf.Bytes()
		j.StagesDone = pipeline.StageCount
		j.Status = StatusCompleted
	})

	log.Info("Job %s completed successfully", job.ID)
}

func (s *Server) failJob(ctx context.Context, id string, log *logger.Logger, err error) {
	if ctx.Err() != nil {
		s.jobMgr.UpdateJob(id, func(j *Job) {
			j.Status = StatusCancelled
		})
		return
	}

	log.Error("Job %s failed: %v", id, err)
	s.jobMgr.UpdateJob(id, func(j *Job) {
		if j.Status.Done() {
			return
		}
		j.Status = StatusFailed
		j.Error = err.Error()
	})
}

func (s *Server) jobToResponse(job Job) *JobResponse {
	resp := &JobResponse{
		ID:        job.ID,
		Band:      job.Band,
		Album:     job.Album,
		Seed:      job.Seed,
		Status:    job.Status,
		Stage:     job.Stage,
		Progress:  job.StagesDone,
		Total:     pipeline.StageCount,
		Attempts:  job.Attempts,
		PhotoTags: job.PhotoTags,
		Warnings:  job.Warnings,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.Format("2006-01-02 15:04:05"),
	}

	if job.Status == StatusCompleted {
		resp.ImageURL = "/api/covers/" + job.ID + "/image"
	}

	if job.StartedAt != nil {
		started := job.StartedAt.Format("2006-01-02 15:04:05")
		resp.StartedAt = &started
	}

	if job.CompletedAt != nil {
		completed := job.CompletedAt.Format("2006-01-02 15:04:05")
		resp.CompletedAt = &completed
	}

	return resp
}
