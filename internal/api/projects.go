package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	re2 "github.com/wasilibs/go-re2"

	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

var slugPattern = re2.MustCompile(`[^a-z0-9]+`)

// slugify turns a project name into a stable id fragment.
func slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug
}

// getProjects serves the main group's dashboard projects file. The file is
// written by the snapshot writer; an absent file means an empty dashboard.
func (s *Server) getProjects(w http.ResponseWriter) {
	path := filepath.Join(s.cfg.GroupsDir, s.cfg.MainFolder, "projects.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"projects":      []any{},
			"orphanedGoals": []any{},
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) postProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name is required"})
		return
	}

	now := store.Now()
	projectID := "proj-" + slugify(name)
	var description *string
	if d := strings.TrimSpace(body.Description); d != "" {
		description = &d
	}

	if err := s.deps.Store.CreateProject(&store.Project{
		ID:          projectID,
		GroupFolder: s.cfg.MainFolder,
		Name:        name,
		Description: description,
		Status:      "active",
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		s.logger.Error("failed to create project", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}

	s.refreshDashboard()
	writeJSON(w, http.StatusCreated, map[string]string{"id": projectID, "name": name})
}

func (s *Server) putProject(w http.ResponseWriter, r *http.Request, projectID string) {
	existing, err := s.deps.Store.ProjectByID(projectID)
	if err != nil {
		s.logger.Error("failed to load project", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Project not found"})
		return
	}

	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	var update store.ProjectUpdate
	changed := map[string]any{"id": projectID}
	if body.Name != nil {
		if name := strings.TrimSpace(*body.Name); name != "" {
			update.Name = &name
			changed["name"] = name
		}
	}
	if body.Description != nil {
		desc := strings.TrimSpace(*body.Description)
		update.Description = &desc
		changed["description"] = desc
	}
	if body.Status != nil && isProjectStatus(*body.Status) {
		update.Status = body.Status
		changed["status"] = *body.Status
	}

	if update.Name == nil && update.Description == nil && update.Status == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "No valid fields to update"})
		return
	}

	if err := s.deps.Store.UpdateProject(projectID, update); err != nil {
		s.logger.Error("failed to update project", err,
			logger.Field{Key: "project_id", Value: projectID})
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}

	s.refreshDashboard()
	writeJSON(w, http.StatusOK, changed)
}

func (s *Server) deleteProject(w http.ResponseWriter, projectID string) {
	existing, err := s.deps.Store.ProjectByID(projectID)
	if err != nil {
		s.logger.Error("failed to load project", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Project not found"})
		return
	}

	if err := s.deps.Store.DeleteProject(projectID); err != nil {
		s.logger.Error("failed to delete project", err,
			logger.Field{Key: "project_id", Value: projectID})
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error"})
		return
	}

	s.refreshDashboard()
	writeJSON(w, http.StatusOK, map[string]string{"deleted": projectID})
}

func isProjectStatus(s string) bool {
	switch s {
	case "active", "paused", "completed", "archived":
		return true
	}
	return false
}

func (s *Server) refreshDashboard() {
	if err := s.deps.Snapshots.WriteDashboard(s.cfg.MainFolder); err != nil {
		s.logger.Error("failed to refresh dashboard data", err)
	}
}
