package server

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/TobiSchelling/envscan/internal/config"
	"github.com/TobiSchelling/envscan/internal/database"
	"github.com/TobiSchelling/envscan/internal/logging"
	"github.com/TobiSchelling/envscan/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

const runsPageSize = 50

// Server is the HTTP server for the dashboard.
type Server struct {
	cfg    *config.Config
	db     *database.DB
	logger *log.Logger
	pages  map[string]*template.Template
	mux    *http.ServeMux
	now    func() time.Time
}

// New creates a new Server.
func New(cfg *config.Config, db *database.DB, logger *log.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"formatDate": database.FormatDateDisplay,
		"shortID": func(id string) string {
			if len(id) > 8 {
				return id[:8]
			}
			return id
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so their "content" blocks don't collide.
	pageNames := []string{"index.html", "runs.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		cfg:    cfg,
		db:     db,
		logger: logging.OrDiscard(logger),
		pages:  pages,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/runs", s.handleRuns)
	s.mux.HandleFunc("/runs/", s.handleRun)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	// Files are re-read per request so an update in another process shows up.
	in, err := report.Gather(s.cfg, s.db, s.logger, s.now())
	if err != nil {
		s.logger.Error("loading report", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	body, err := report.Fragment(in)
	if err != nil {
		s.logger.Error("rendering report", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{"Report": body})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(runsPageSize)
	if err != nil {
		s.logger.Error("listing runs", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "runs.html", map[string]any{"Runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" {
		http.Redirect(w, r, "/runs", http.StatusFound)
		return
	}

	run, err := s.db.GetRun(id)
	if err != nil {
		s.logger.Error("loading run", "id", id, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.NotFound(w, r)
		return
	}
	steps, err := s.db.RunSteps(id)
	if err != nil {
		s.logger.Error("loading run steps", "id", id, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "run.html", map[string]any{"Run": run, "Steps": steps})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", "name", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template", "name", name, "err", err)
	}
}

// Serve starts the HTTP server on the given port.
func Serve(cfg *config.Config, db *database.DB, logger *log.Logger, port int) error {
	srv, err := New(cfg, db, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv.logger.Info("server listening", "url", "http://"+addr)
	return http.ListenAndServe(addr, srv.Handler())
}
