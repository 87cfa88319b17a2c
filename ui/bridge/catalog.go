package bridge

import (
	"context"
	"net/http"
	"time"

	"github.com/soocke/worktimer-go/catalog"
)

// ProjectCatalog lists what a session can be started against.
type ProjectCatalog interface {
	Projects(ctx context.Context) ([]catalog.Project, error)
	Sections(ctx context.Context) ([]catalog.Section, error)
	TasksBySection(ctx context.Context, sectionID string) ([]catalog.Task, error)
}

// SetCatalog installs the project source for the shell's picker. It must be
// called before Run.
func (s *Server) SetCatalog(pc ProjectCatalog) { s.catalog = pc }

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	s.serveCatalog(w, r, func(ctx context.Context) (any, error) { return s.catalog.Projects(ctx) })
}

func (s *Server) handleSections(w http.ResponseWriter, r *http.Request) {
	s.serveCatalog(w, r, func(ctx context.Context) (any, error) { return s.catalog.Sections(ctx) })
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	section := r.URL.Query().Get("section")
	if section == "" {
		writeAPIError(w, http.StatusBadRequest, "MISSING_SECTION", "section query parameter is required")
		return
	}
	s.serveCatalog(w, r, func(ctx context.Context) (any, error) { return s.catalog.TasksBySection(ctx, section) })
}

func (s *Server) serveCatalog(w http.ResponseWriter, r *http.Request, fetch func(context.Context) (any, error)) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}
	if s.catalog == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "CATALOG_UNAVAILABLE", "no project catalog configured")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	items, err := fetch(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("catalog request failed", "path", r.URL.Path, "error", err)
		}
		writeAPIError(w, http.StatusBadGateway, "CATALOG_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}
