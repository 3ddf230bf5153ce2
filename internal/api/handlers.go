package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gendew/merge-video/internal/jobs"
	"github.com/gendew/merge-video/internal/models"
)

// maxUploadBytes caps one merge request, videos included.
const maxUploadBytes = 512 << 20

type Handler struct {
	manager   *jobs.Manager
	uploadDir string
	outputDir string
	logger    *log.Logger
}

func NewHandler(manager *jobs.Manager, uploadDir, outputDir string, logger *log.Logger) *Handler {
	return &Handler{
		manager:   manager,
		uploadDir: uploadDir,
		outputDir: outputDir,
		logger:    logger,
	}
}

// SubmitMerge handles POST /api/merge. Options are validated before any job
// exists: a bad enum gets a 400 and never produces a job id.
func (h *Handler) SubmitMerge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := parseOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	videos := r.MultipartForm.File["files"]
	if len(videos) == 0 {
		respondError(w, http.StatusBadRequest, "At least one video file is required")
		return
	}

	var saved []string
	discard := func() {
		for _, f := range saved {
			os.Remove(f)
		}
	}

	for i, fh := range videos {
		path, err := h.saveUpload(fh, fmt.Sprintf("video_%d", i))
		if err != nil {
			discard()
			h.logger.Printf("[API] Failed to save upload %s: %v", fh.Filename, err)
			respondError(w, http.StatusInternalServerError, "Failed to save upload")
			return
		}
		saved = append(saved, path)
		opts.Inputs = append(opts.Inputs, path)
	}

	if fh := firstFile(r, "voice_file"); fh != nil {
		path, err := h.saveUpload(fh, "voice")
		if err != nil {
			discard()
			respondError(w, http.StatusInternalServerError, "Failed to save voice file")
			return
		}
		saved = append(saved, path)
		opts.VoicePath = path
	}

	if fh := firstFile(r, "tail_image"); fh != nil {
		path, err := h.saveUpload(fh, "tail")
		if err != nil {
			discard()
			respondError(w, http.StatusInternalServerError, "Failed to save tail image")
			return
		}
		saved = append(saved, path)
		opts.TailImage = path
	}

	if text := strings.TrimSpace(r.FormValue("voice_text")); text != "" && opts.VoicePath == "" {
		path := filepath.Join(h.uploadDir, fmt.Sprintf("voice_text_%s.txt", uuid.NewString()))
		if err := os.WriteFile(path, []byte(text), 0644); err != nil {
			discard()
			respondError(w, http.StatusInternalServerError, "Failed to save narration text")
			return
		}
		saved = append(saved, path)
		opts.VoiceTextFile = path
	}

	outputName := strings.TrimSpace(r.FormValue("output_name"))
	if outputName == "" {
		outputName = "merged_output"
	}
	opts.OutputPath = filepath.Join(h.outputDir, filepath.Base(outputName))

	job := h.manager.Submit(r.Context(), opts, saved)
	respondJSON(w, http.StatusOK, models.SubmitResponse{JobID: job.ID, Status: job.Status})
}

// JobStatus handles GET /api/status/{jobID}
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// JobResult handles GET /api/result/{jobID}: a redirect to the mirrored copy
// when one exists, otherwise the local file as an attachment.
func (h *Handler) JobResult(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Result(chi.URLParam(r, "jobID"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrJobNotFound):
			respondError(w, http.StatusNotFound, "Job not found")
		case errors.Is(err, models.ErrJobNotReady):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "Failed to load job")
		}
		return
	}

	if job.OutputURL != "" {
		http.Redirect(w, r, job.OutputURL, http.StatusTemporaryRedirect)
		return
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		respondError(w, http.StatusNotFound, "Output file missing")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(job.OutputPath)))
	http.ServeFile(w, r, job.OutputPath)
}

// parseOptions reads the form fields into validated MergeOptions. Field
// defaults match the CLI: keep_native, blend_half, default persona, mp4,
// a 3 second end card.
func parseOptions(r *http.Request) (models.MergeOptions, error) {
	opts := models.MergeOptions{
		Merge:        models.MergeKeepNative,
		Mix:          models.MixBlendHalf,
		Persona:      models.PersonaDefault,
		Container:    models.ContainerMP4,
		TailDuration: 3,
	}

	var err error
	if v := r.FormValue("merge_mode"); v != "" {
		if opts.Merge, err = models.ParseMergeStrategy(v); err != nil {
			return opts, err
		}
	}
	if v := r.FormValue("mix_mode"); v != "" {
		if opts.Mix, err = models.ParseMixStrategy(v); err != nil {
			return opts, err
		}
	}
	if v := r.FormValue("persona"); v != "" {
		if opts.Persona, err = models.ParseVoicePersona(v); err != nil {
			return opts, err
		}
	}
	if v := r.FormValue("output_format"); v != "" {
		if opts.Container, err = models.ParseContainer(v); err != nil {
			return opts, err
		}
	}
	opts.UseVoice = parseBool(r.FormValue("use_voice"))

	if v := r.FormValue("trims"); v != "" {
		if err := json.Unmarshal([]byte(v), &opts.Trims); err != nil {
			return opts, fmt.Errorf("%w: trims must be a JSON array of seconds", models.ErrInvalidOption)
		}
	}
	if v := r.FormValue("trim_anchors"); v != "" {
		var raw []string
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return opts, fmt.Errorf("%w: trim_anchors must be a JSON array of head/tail", models.ErrInvalidOption)
		}
		for _, s := range raw {
			anchor, err := models.ParseTrimAnchor(s)
			if err != nil {
				return opts, err
			}
			opts.TrimAnchors = append(opts.TrimAnchors, anchor)
		}
	}
	if v := r.FormValue("tail_duration"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || d < 0 {
			return opts, fmt.Errorf("%w: tail_duration must be a non-negative number", models.ErrInvalidOption)
		}
		opts.TailDuration = d
	}

	return opts, nil
}

// saveUpload streams one uploaded part into the upload dir under a unique
// name, keeping only the original extension.
func (h *Handler) saveUpload(fh *multipart.FileHeader, prefix string) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), strings.ToLower(filepath.Ext(fh.Filename)))
	dst := filepath.Join(h.uploadDir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func firstFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	if fhs := r.MultipartForm.File[field]; len(fhs) > 0 {
		return fhs[0]
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "merge-video service")
	fmt.Fprintln(w, "POST /api/merge  GET /api/status/{jobID}  GET /api/result/{jobID}")
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
