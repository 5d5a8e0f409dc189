package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/mango-runner/internal/jobs"
	"github.com/vrsandeep/mango-runner/internal/models"
)

func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListLibraryEntries(r.URL.Query().Get("runner"))
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list library: %v", err))
		return
	}
	if entries == nil {
		entries = []*models.LibraryEntry{}
	}
	RespondWithJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAddToLibrary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunnerID    string `json:"runner_id"`
		ContentID   string `json:"content_id"`
		Title       string `json:"title"`
		ReadingFlag string `json:"reading_flag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RunnerID == "" || req.ContentID == "" {
		RespondWithError(w, http.StatusBadRequest, "runner_id and content_id are required")
		return
	}

	run, err := s.app.Registry().Get(req.RunnerID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "Runner not found")
		return
	}

	title := req.Title
	if title == "" {
		content, err := run.Content(r.Context(), req.ContentID)
		if err != nil {
			RespondWithRunnerError(w, err)
			return
		}
		title = content.Title
	}

	entry, err := s.store.AddLibraryEntry(models.LibraryEntry{
		RunnerID:    req.RunnerID,
		ContentID:   req.ContentID,
		Title:       title,
		ReadingFlag: req.ReadingFlag,
	})
	if err != nil {
		RespondWithError(w, http.StatusConflict, fmt.Sprintf("Failed to add to library: %v", err))
		return
	}
	run.OnContentsAddedToLibrary(r.Context(), []string{req.ContentID})
	RespondWithJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleRemoveFromLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid entry ID")
		return
	}
	entry, err := s.store.GetLibraryEntry(id)
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	if err := s.store.RemoveLibraryEntry(id); err != nil {
		RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run, err := s.app.Registry().Get(entry.RunnerID); err == nil {
		run.OnContentsRemovedFromLibrary(r.Context(), []string{entry.ContentID})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunLibraryScan(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, jobs.LibraryUpdateJob)
}

func (s *Server) handleGetJobsStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.JobManager().GetStatus())
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, chi.URLParam(r, "jobID"))
}

func (s *Server) runJob(w http.ResponseWriter, jobID string) {
	if err := s.app.JobManager().RunJob(jobID); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]string{
		"message": fmt.Sprintf("Job '%s' started", jobID),
	})
}
