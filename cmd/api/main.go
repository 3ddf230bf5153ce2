package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gendew/merge-video/internal/api"
	"github.com/gendew/merge-video/internal/config"
	"github.com/gendew/merge-video/internal/jobs"
	"github.com/gendew/merge-video/internal/media"
	"github.com/gendew/merge-video/internal/pipeline"
	"github.com/gendew/merge-video/internal/queue"
	"github.com/gendew/merge-video/internal/storage"
	"github.com/gendew/merge-video/internal/voice"
)

func main() {
	log.Println("Starting merge-video API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	for _, dir := range []string{cfg.UploadDir, cfg.OutputDir, cfg.LogDir, cfg.TempDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}

	// Tee logging into LOG_DIR/app.log so job output survives restarts.
	logger := log.Default()
	if cfg.LogDir != "" {
		logFile, err := os.OpenFile(filepath.Join(cfg.LogDir, "app.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer logFile.Close()
		logger = log.New(io.MultiWriter(os.Stdout, logFile), "", log.LstdFlags)
	}

	// Locate ffmpeg/ffprobe
	engine, err := media.NewEngine(logger)
	if err != nil {
		log.Fatalf("FFmpeg not available: %v", err)
	}

	// Initialize TTS provider for narration synthesis (nil = text narration skipped)
	var ttsEngine voice.Engine
	switch cfg.TTSProvider {
	case "openai":
		ttsEngine = voice.NewOpenAIEngine(cfg.OpenAIKey)
	case "gemini":
		ttsEngine = voice.NewGeminiEngine(cfg.GeminiKey)
	case "auto":
		if cfg.OpenAIKey != "" {
			ttsEngine = voice.NewOpenAIEngine(cfg.OpenAIKey)
		} else if cfg.GeminiKey != "" {
			ttsEngine = voice.NewGeminiEngine(cfg.GeminiKey)
		}
	}
	if ttsEngine != nil {
		logger.Printf("TTS provider: %s", ttsEngine.Name())
	} else {
		logger.Println("No TTS provider configured, narration text will be skipped")
	}

	resolver := voice.NewResolver(ttsEngine, engine.FFmpegPath(), logger)
	orch := pipeline.NewOrchestrator(engine, resolver, cfg.TempDir, cfg.RenderConcurrency, logger)

	// Initialize storage mirror
	var mirror jobs.Mirror
	if cfg.StorageEnabled() {
		mirror = storage.New(cfg.StorageURL, cfg.StorageKey, logger)
		logger.Println("Storage mirroring enabled")
	} else {
		logger.Println("Storage mirroring disabled, results are served from local disk")
	}

	manager := jobs.NewManager(jobs.NewRegistry(), orch, mirror, jobs.Config{
		UploadBucket:  cfg.StorageUploadBucket,
		OutputBucket:  cfg.StorageOutputBucket,
		URLExpireSecs: cfg.OutputURLExpireSecs,
	}, logger)

	// Queue-fed worker pool replaces the default one-goroutine-per-job policy
	var schedulerCancel context.CancelFunc
	if cfg.JobScheduler == "queue" {
		q, err := queue.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to queue: %v", err)
		}
		defer q.Close()
		logger.Println("Connected to Redis queue")

		sched := jobs.NewQueueScheduler(q, manager.RunJob, logger)
		manager.SetScheduler(sched)

		var schedCtx context.Context
		schedCtx, schedulerCancel = context.WithCancel(context.Background())
		sched.Start(schedCtx, cfg.JobWorkers)
	}

	// Create API handler
	handler := api.NewHandler(manager, cfg.UploadDir, cfg.OutputDir, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		APIKey:             cfg.APIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.APIKey != "" {
		logger.Println("API key authentication enabled")
	} else {
		logger.Println("WARNING: No API_KEY set, API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		logger.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down server...")

	// Stop queue workers
	if schedulerCancel != nil {
		schedulerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Println("Server exited")
}
