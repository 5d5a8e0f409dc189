package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/store"
)

// handleListRepositories lists all runner repositories
func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repositories, err := s.store.ListRepositories()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list repositories: %v", err))
		return
	}
	if repositories == nil {
		repositories = []*models.Repository{}
	}
	RespondWithJSON(w, http.StatusOK, repositories)
}

// handleCreateRepository validates and stores a repository URL
func (s *Server) handleCreateRepository(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.URL == "" {
		RespondWithError(w, http.StatusBadRequest, "URL is required")
		return
	}

	repo, err := s.app.Repositories().AddRepository(r.Context(), req.URL)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid repository URL: %v", err))
		return
	}
	RespondWithJSON(w, http.StatusCreated, repo)
}

func (s *Server) handleDeleteRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := repositoryID(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteRepository(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete repository: %v", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetRepositoryRunners lists the compatible runners of a repository
func (s *Server) handleGetRepositoryRunners(w http.ResponseWriter, r *http.Request) {
	id, ok := repositoryID(w, r)
	if !ok {
		return
	}
	runners, err := s.app.Repositories().Available(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		RespondWithError(w, http.StatusBadGateway, fmt.Sprintf("Failed to get runners: %v", err))
		return
	}
	if runners == nil {
		runners = []models.RepositoryRunner{}
	}
	RespondWithJSON(w, http.StatusOK, runners)
}

func (s *Server) handleInstallRunner(w http.ResponseWriter, r *http.Request) {
	id, ok := repositoryID(w, r)
	if !ok {
		return
	}
	var req struct {
		RunnerID string `json:"runner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RunnerID == "" {
		RespondWithError(w, http.StatusBadRequest, "runner_id is required")
		return
	}

	run, err := s.app.Repositories().Install(r.Context(), id, req.RunnerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Repository not found")
			return
		}
		RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to install runner: %v", err))
		return
	}
	RespondWithJSON(w, http.StatusCreated, map[string]any{
		"message": "Runner installed successfully",
		"runner":  run.Info(),
	})
}

func (s *Server) handleCheckUpdates(w http.ResponseWriter, r *http.Request) {
	updates, err := s.app.Repositories().CheckForUpdates(r.Context())
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to check for updates: %v", err))
		return
	}
	if updates == nil {
		updates = []models.RunnerUpdateInfo{}
	}
	RespondWithJSON(w, http.StatusOK, updates)
}

func repositoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "repositoryID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid repository ID")
		return 0, false
	}
	return id, true
}
