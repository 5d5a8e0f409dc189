package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/mango-runner/internal/models"
	"github.com/vrsandeep/mango-runner/internal/registry"
	"github.com/vrsandeep/mango-runner/internal/runner"
	"github.com/vrsandeep/mango-runner/internal/store"
)

// runnerView is a loaded runner as the API reports it.
type runnerView struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Version             string               `json:"version"`
	Environment         string               `json:"environment"`
	State               string               `json:"state"`
	Enabled             bool                 `json:"enabled"`
	DisableUpdateChecks bool                 `json:"disable_update_checks"`
	InstallSource       string               `json:"install_source,omitempty"`
	LoadedAt            time.Time            `json:"loaded_at"`
	Info                models.RunnerInfo    `json:"info"`
	Intents             models.RunnerIntents `json:"intents"`
}

func (s *Server) viewOf(entry *registry.Entry) (runnerView, error) {
	view := runnerView{
		ID:          entry.Manifest.ID,
		Name:        entry.Manifest.Name,
		Version:     entry.Manifest.Version,
		Environment: entry.Runner.Backend(),
		State:       entry.Runner.State().String(),
		Enabled:     true,
		LoadedAt:    entry.LoadedAt,
		Info:        entry.Runner.Info(),
		Intents:     entry.Runner.Intents(),
	}
	rec, err := s.store.GetRunner(view.ID)
	if errors.Is(err, store.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return view, err
	}
	view.Enabled = rec.Enabled
	view.DisableUpdateChecks = rec.DisableUpdateChecks
	view.InstallSource = rec.InstallSource
	return view, nil
}

// runnerFor resolves the {runnerID} parameter, writing a 404 when the
// runner is not loaded.
func (s *Server) runnerFor(w http.ResponseWriter, r *http.Request) (*runner.Runner, bool) {
	run, err := s.app.Registry().Get(chi.URLParam(r, "runnerID"))
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "Runner not found")
		return nil, false
	}
	return run, true
}

func (s *Server) handleListRunners(w http.ResponseWriter, r *http.Request) {
	entries := s.app.Registry().List()
	views := make([]runnerView, 0, len(entries))
	for _, entry := range entries {
		view, err := s.viewOf(entry)
		if err != nil {
			RespondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list runners: %v", err))
			return
		}
		views = append(views, view)
	}
	RespondWithJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetRunner(w http.ResponseWriter, r *http.Request) {
	entry, err := s.app.Registry().Entry(chi.URLParam(r, "runnerID"))
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "Runner not found")
		return
	}
	view, err := s.viewOf(entry)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, view)
}

func (s *Server) handleUninstallRunner(w http.ResponseWriter, r *http.Request) {
	runnerID := chi.URLParam(r, "runnerID")
	if err := s.app.Repositories().Uninstall(r.Context(), runnerID); err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Runner %s uninstalled", runnerID),
	})
}

type flagRequest struct {
	Enabled  *bool `json:"enabled,omitempty"`
	Disabled *bool `json:"disabled,omitempty"`
}

func (s *Server) handleSetRunnerEnabled(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	runnerID := chi.URLParam(r, "runnerID")
	if err := s.app.Store().SetRunnerEnabled(runnerID, *req.Enabled); err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (s *Server) handleSetUpdateChecks(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Disabled == nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	runnerID := chi.URLParam(r, "runnerID")
	if err := s.app.Store().SetDisableUpdateChecks(runnerID, *req.Disabled); err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]bool{"disabled": *req.Disabled})
}

func (s *Server) handleGetDirectory(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := models.DirectoryRequest{Query: q.Get("query"), ListID: q.Get("list"), ConfigID: q.Get("config")}
	if p := q.Get("page"); p != "" {
		page, err := strconv.Atoi(p)
		if err != nil || page < 1 {
			RespondWithError(w, http.StatusBadRequest, "Invalid page")
			return
		}
		req.Page = page
	}
	if sortID := q.Get("sort"); sortID != "" {
		req.Sort = &models.SortSelection{ID: sortID, Ascending: q.Get("asc") == "true"}
	}

	result, err := run.Directory(r.Context(), req)
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetDirectoryConfig(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(w, r)
	if !ok {
		return
	}
	cfg, err := run.DirectoryConfig(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(w, r)
	if !ok {
		return
	}
	content, err := run.Content(r.Context(), chi.URLParam(r, "contentID"))
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, content)
}

func (s *Server) handleGetChapters(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(w, r)
	if !ok {
		return
	}
	chapters, err := run.Chapters(r.Context(), chi.URLParam(r, "contentID"))
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, chapters)
}

func (s *Server) handleGetChapterData(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(w, r)
	if !ok {
		return
	}
	data, err := run.ChapterData(r.Context(), chi.URLParam(r, "contentID"), chi.URLParam(r, "chapterID"))
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, data)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(w, r)
	if !ok {
		return
	}
	groups, err := run.Preferences(r.Context())
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	if groups == nil {
		groups = []models.PreferenceGroup{}
	}
	RespondWithJSON(w, http.StatusOK, groups)
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runnerFor(w, r)
	if !ok {
		return
	}
	var req struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	run.SetPreference(r.Context(), chi.URLParam(r, "key"), req.Value)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		RespondWithError(w, http.StatusBadRequest, "URL is required")
		return
	}
	route, err := s.app.Registry().Route(r.Context(), req.URL)
	if err != nil {
		RespondWithRunnerError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, route)
}
