// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vrsandeep/mango-runner/internal/config"
	"github.com/vrsandeep/mango-runner/internal/core"
	"github.com/vrsandeep/mango-runner/internal/store"
	"github.com/vrsandeep/mango-runner/internal/websocket"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	store *store.Store
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{app: app, store: app.Store()}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.app.Logger()))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// Runner calls may be slow, so only the API gets a timeout.
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/version", s.handleGetVersion)
		r.Get("/health", s.handleHealth)

		r.Get("/runners", s.handleListRunners)
		r.Route("/runners/{runnerID}", func(r chi.Router) {
			r.Get("/", s.handleGetRunner)
			r.Delete("/", s.handleUninstallRunner)
			r.Put("/enabled", s.handleSetRunnerEnabled)
			r.Put("/update-checks", s.handleSetUpdateChecks)
			r.Get("/directory", s.handleGetDirectory)
			r.Get("/directory/config", s.handleGetDirectoryConfig)
			r.Get("/content/{contentID}", s.handleGetContent)
			r.Get("/content/{contentID}/chapters", s.handleGetChapters)
			r.Get("/content/{contentID}/chapters/{chapterID}", s.handleGetChapterData)
			r.Get("/preferences", s.handleGetPreferences)
			r.Put("/preferences/{key}", s.handleSetPreference)
			r.Get("/image", s.handleProxyImage)
		})

		r.Post("/route", s.handleRoute)

		r.Get("/library", s.handleListLibrary)
		r.Post("/library", s.handleAddToLibrary)
		r.Delete("/library/{entryID}", s.handleRemoveFromLibrary)
		r.Post("/library/scan", s.handleRunLibraryScan)

		r.Get("/jobs", s.handleGetJobsStatus)
		r.Post("/jobs/{jobID}/run", s.handleRunJob)

		r.Get("/repositories", s.handleListRepositories)
		r.Post("/repositories", s.handleCreateRepository)
		r.Post("/repositories/check-updates", s.handleCheckUpdates)
		r.Delete("/repositories/{repositoryID}", s.handleDeleteRepository)
		r.Get("/repositories/{repositoryID}/runners", s.handleGetRepositoryRunners)
		r.Post("/repositories/{repositoryID}/install", s.handleInstallRunner)
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.app.Metrics(), promhttp.HandlerOpts{}))

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.app.WsHub(), w, r)
	})

	return r
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": config.Version})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().PingContext(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
