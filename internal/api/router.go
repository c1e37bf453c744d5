package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nr2bj/transcribe-server/internal/api/handlers"
	"github.com/nr2bj/transcribe-server/internal/api/middleware"
	"github.com/nr2bj/transcribe-server/internal/auth"
	"github.com/nr2bj/transcribe-server/internal/config"
	"github.com/nr2bj/transcribe-server/internal/db"
	"github.com/nr2bj/transcribe-server/internal/job"
	"github.com/nr2bj/transcribe-server/internal/model"
)

// NewRouter wires the native and OpenAI-compatible route families of
// §4.9 onto a chi.Mux. Grounded on the teacher's api.NewRouter —
// chi.NewRouter, chimw.Recoverer, chimw.RealIP, middleware.Logger,
// cors.Handler(middleware.CORSHandler(...)) — with the teacher's
// file/stream/subtitle/user route groups replaced by the job
// admission surface, and its single AuthMiddleware JWT gate replaced
// by AdminAuth's shared-secret-or-JWT gate plus an optional APIKeyAuth
// check on native write routes.
func NewRouter(
	database *db.Database,
	store *job.Store,
	queue *job.Queue,
	completions *job.CompletionRegistry,
	manager *model.Manager,
	sweeper *job.RetentionSweeper,
	jwtService *auth.JWTService,
	cfg *config.Config,
	publicBase string,
	allowedOrigins []string,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(allowedOrigins)))

	jobsHandler := handlers.NewJobsHandler(store, queue, cfg.DataDir, publicBase, cfg.MaxUploadBytes(), cfg.JobRetentionDays)
	healthHandler := handlers.NewHealthHandler(manager, queue)
	openaiHandler := handlers.NewOpenAIHandler(store, queue, completions, cfg.DataDir, cfg.JobRetentionDays)
	adminHandler := handlers.NewAdminHandler(store, queue, manager, sweeper, jwtService, cfg.AdminPassword, cfg.DataDir)
	settingsHandler := handlers.NewSettingsHandler(database)

	rateLimiter := middleware.NewRateLimiter(60, time.Minute)

	r.Get("/api/health", healthHandler.Health)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Use(rateLimiter.Handler)
		r.Use(middleware.MaxBodySize(cfg.MaxUploadBytes()))
		r.With(middleware.APIKeyAuth(cfg.APIKey)).Post("/", jobsHandler.CreateJob)
		r.Get("/", jobsHandler.ListJobs)
		r.Get("/{id}", jobsHandler.GetJob)
		r.Get("/{id}/download", jobsHandler.DownloadJob)
		r.With(middleware.APIKeyAuth(cfg.APIKey)).Delete("/{id}", jobsHandler.DeleteJob)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", adminHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(jwtService, cfg.AdminPassword))
			r.Get("/stats", adminHandler.Stats)
			r.Post("/model/load", adminHandler.LoadModel)
			r.Post("/model/unload", adminHandler.UnloadModel)
			r.Post("/cleanup", adminHandler.Cleanup)
			r.Get("/settings", settingsHandler.GetSettings)
			r.Put("/settings", settingsHandler.UpdateSettings)
		})
	})

	r.Route("/v1/audio", func(r chi.Router) {
		r.Use(rateLimiter.Handler)
		r.Get("/models", openaiHandler.Models)
		r.Post("/transcriptions", openaiHandler.Transcriptions)
		r.Post("/translations", openaiHandler.Translations)
	})

	return r
}
