package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"ytqgo/internal/backend"
	"ytqgo/internal/config"
	"ytqgo/internal/handler"
	"ytqgo/internal/track"
	"ytqgo/internal/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment")
	}
	cfg := config.LoadConfig()
	SetupLogger(cfg.LogLevel)

	client, err := backend.New(backend.Options{
		BaseURL: cfg.BackendURL,
		Schema:  cfg.BackendSchema,
		Timeout: cfg.BackendTimeout,
	})
	if err != nil {
		slog.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	hub := websocket.NewHub()
	go hub.Run()

	tracker := track.New(track.Options{
		Backend:      client,
		JobInterval:  cfg.JobPollInterval,
		ListInterval: cfg.ListPollInterval,
		CatalogTTL:   cfg.CatalogTTL,
		OnJob: func(snap track.Snapshot) {
			if !snap.HasJob {
				return
			}
			fetchErr := ""
			if snap.Err != nil {
				fetchErr = snap.Err.Error()
			}
			hub.BroadcastJob(websocket.NewJobUpdate(snap.Job, fetchErr))
		},
		OnJobs: hub.BroadcastJobsChanged,
	})
	tracker.Start()
	defer tracker.Stop()

	r := chi.NewRouter()
	r.Get("/health", handler.HealthHandler(tracker))
	r.Post("/formats", handler.FormatsHandler(tracker))
	r.Post("/preview", handler.PreviewHandler())
	r.Post("/jobs", handler.SubmitJobHandler(tracker, hub))
	r.Get("/jobs", handler.ListJobsHandler(tracker))
	r.Get("/jobs/{id}", handler.JobDetailHandler(tracker))
	r.Get("/jobs/{id}/download", handler.DownloadHandler(tracker))
	r.Delete("/jobs/{id}", handler.UnwatchJobHandler(tracker, hub))
	r.Get("/ws", hub.WsHandler)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server forced to shutdown")
		}
		done <- true
	}()

	slog.Info("Server starting", "port", cfg.Port, "backend", cfg.BackendURL, "schema", cfg.BackendSchema)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to start server")
	}
	<-done
	slog.Info("Server exited")
}

func SetupLogger(level slog.Level) {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02 15:04:05",
		AddSource:  true,
	})

	slog.SetDefault(slog.New(handler))
}
