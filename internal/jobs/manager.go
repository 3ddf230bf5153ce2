package jobs

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/gendew/merge-video/internal/models"
	"github.com/gendew/merge-video/internal/pipeline"
	"github.com/gendew/merge-video/internal/storage"
)

// Runner executes one merge; satisfied by *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, opts models.MergeOptions) (*pipeline.Result, error)
}

var _ Runner = (*pipeline.Orchestrator)(nil)

// Mirror is the optional object storage backend for job files.
type Mirror interface {
	UploadFile(ctx context.Context, bucket, key, localPath, contentType string) error
	SignedURL(ctx context.Context, bucket, key string, expiresIn int) (string, error)
}

var _ Mirror = (*storage.Client)(nil)

// Config carries the mirror buckets and the signed URL lifetime.
type Config struct {
	UploadBucket  string
	OutputBucket  string
	URLExpireSecs int
}

// Manager owns the job lifecycle: submission, dispatch, execution, and
// lookups. A nil mirror disables storage mirroring entirely.
type Manager struct {
	registry  *Registry
	runner    Runner
	mirror    Mirror
	cfg       Config
	scheduler Scheduler
	logger    *log.Logger
}

func NewManager(registry *Registry, runner Runner, mirror Mirror, cfg Config, logger *log.Logger) *Manager {
	m := &Manager{
		registry: registry,
		runner:   runner,
		mirror:   mirror,
		cfg:      cfg,
		logger:   logger,
	}
	m.scheduler = NewSpawnScheduler(m.RunJob)
	return m
}

// SetScheduler swaps the dispatch strategy. Call before serving requests.
func (m *Manager) SetScheduler(s Scheduler) {
	m.scheduler = s
}

// Submit registers a job, mirrors its uploads, and dispatches it. tempFiles
// are the uploads saved for this request; the worker deletes them when the
// job finishes. The returned record is a pre-dispatch snapshot.
func (m *Manager) Submit(ctx context.Context, opts models.MergeOptions, tempFiles []string) models.Job {
	job := &models.Job{
		ID:        uuid.NewString(),
		Status:    models.JobPending,
		Options:   opts,
		TempFiles: append([]string(nil), tempFiles...),
		CreatedAt: time.Now().UTC(),
	}
	m.registry.Insert(job)
	m.logger.Printf("[Jobs] Job %s submitted (%d inputs, voice=%v)", job.ID, len(opts.Inputs), opts.UseVoice)

	m.mirrorUploads(ctx, job.ID, tempFiles)

	snapshot, _ := m.registry.Get(job.ID)
	m.scheduler.Dispatch(job.ID)
	return snapshot
}

// Status returns the public view of a job.
func (m *Manager) Status(jobID string) (models.StatusResponse, error) {
	job, ok := m.registry.Get(jobID)
	if !ok {
		return models.StatusResponse{}, fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
	}
	return models.StatusResponse{
		JobID:      job.ID,
		Status:     job.Status,
		OutputPath: job.OutputPath,
		OutputURL:  job.OutputURL,
		Error:      job.Error,
		Warnings:   job.Warnings,
	}, nil
}

// Result returns the finished job for download. Every non-done state,
// including failed jobs, yields ErrJobNotReady.
func (m *Manager) Result(jobID string) (models.Job, error) {
	job, ok := m.registry.Get(jobID)
	if !ok {
		return models.Job{}, fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
	}
	if job.Status != models.JobDone {
		if job.Error != "" {
			return models.Job{}, fmt.Errorf("%w: job failed: %s", models.ErrJobNotReady, job.Error)
		}
		return models.Job{}, fmt.Errorf("%w: job is %s", models.ErrJobNotReady, job.Status)
	}
	return job, nil
}

// RunJob executes one job to completion. It is the scheduler's entry point
// and never returns an error; failures land on the job record. Saved uploads
// are deleted whatever the outcome.
func (m *Manager) RunJob(jobID string) {
	job, ok := m.registry.Get(jobID)
	if !ok {
		m.logger.Printf("[Jobs] Unknown job %s dispatched", jobID)
		return
	}

	started := time.Now().UTC()
	m.registry.Update(jobID, func(j *models.Job) {
		j.Status = models.JobRunning
		j.StartedAt = &started
	})
	m.logger.Printf("[Jobs] Job %s running", jobID)

	defer m.cleanupTempFiles(jobID)

	result, err := m.runner.Run(context.Background(), job.Options)
	if err != nil {
		completed := time.Now().UTC()
		m.logger.Printf("[Jobs] Job %s failed: %v", jobID, err)
		m.registry.Update(jobID, func(j *models.Job) {
			j.Status = models.JobError
			j.Error = err.Error()
			j.CompletedAt = &completed
		})
		return
	}

	outputKey, outputURL := m.mirrorOutput(jobID, result.OutputPath)

	completed := time.Now().UTC()
	m.registry.Update(jobID, func(j *models.Job) {
		j.Status = models.JobDone
		j.OutputPath = result.OutputPath
		j.OutputKey = outputKey
		j.OutputURL = outputURL
		j.Warnings = append(j.Warnings, result.Warnings...)
		j.CompletedAt = &completed
	})
	m.logger.Printf("[Jobs] Job %s done: %s", jobID, result.OutputPath)
}

func (m *Manager) mirrorUploads(ctx context.Context, jobID string, files []string) {
	if m.mirror == nil || len(files) == 0 {
		return
	}
	for _, f := range files {
		key := storage.ObjectKey("uploads", jobID, filepath.Base(f))
		if err := m.mirror.UploadFile(ctx, m.cfg.UploadBucket, key, f, storage.ContentTypeFor(f)); err != nil {
			m.logger.Printf("[Jobs] Upload mirror failed for %s: %v", f, err)
			m.appendWarning(jobID, fmt.Sprintf("upload mirror failed for %s", filepath.Base(f)))
		}
	}
}

func (m *Manager) mirrorOutput(jobID, outputPath string) (key, url string) {
	if m.mirror == nil {
		return "", ""
	}
	ctx := context.Background()
	key = storage.ObjectKey("output", jobID, filepath.Base(outputPath))
	if err := m.mirror.UploadFile(ctx, m.cfg.OutputBucket, key, outputPath, storage.ContentTypeFor(outputPath)); err != nil {
		m.logger.Printf("[Jobs] Output mirror failed for job %s: %v", jobID, err)
		m.appendWarning(jobID, "output mirror failed, result available locally only")
		return "", ""
	}
	url, err := m.mirror.SignedURL(ctx, m.cfg.OutputBucket, key, m.cfg.URLExpireSecs)
	if err != nil {
		m.logger.Printf("[Jobs] Signed URL failed for job %s: %v", jobID, err)
		m.appendWarning(jobID, "could not create download URL for mirrored output")
		return key, ""
	}
	return key, url
}

func (m *Manager) appendWarning(jobID, msg string) {
	m.registry.Update(jobID, func(j *models.Job) {
		j.Warnings = append(j.Warnings, msg)
	})
}

// cleanupTempFiles removes the uploads saved for this request. The rendered
// output is not a temp file and survives.
func (m *Manager) cleanupTempFiles(jobID string) {
	job, ok := m.registry.Get(jobID)
	if !ok {
		return
	}
	for _, f := range job.TempFiles {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			m.logger.Printf("[Jobs] Could not remove temp file %s: %v", f, err)
		}
	}
}
