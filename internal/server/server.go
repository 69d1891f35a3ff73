// Package server is the dashboard HTTP server: archived weekly reports
// rendered from markdown, behind a shared-passphrase gate.
package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dwg-inc/cncreport/internal/config"
	"github.com/dwg-inc/cncreport/internal/database"
	"github.com/dwg-inc/cncreport/internal/period"
	"github.com/dwg-inc/cncreport/internal/report"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// GFM tables carry most of the report body.
var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const authCookie = "cncreport_auth"

// Generator regenerates a week's report on demand. Satisfied by
// *pipeline.Pipeline.
type Generator interface {
	Refresh(ctx context.Context, week period.Week) (*report.Bundle, error)
}

// Server is the HTTP server for serving weekly reports.
type Server struct {
	db         *database.DB
	gen        Generator
	passphrase string
	trendWeeks int
	pages      map[string]*template.Template
	mux        *http.ServeMux
	now        func() time.Time
}

// New creates a new Server. gen may be nil, which disables the refresh
// route.
func New(db *database.DB, cfg *config.Config, gen Generator) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "report.html", "login.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		db:         db,
		gen:        gen,
		passphrase: cfg.Server.Passphrase,
		trendWeeks: cfg.Report.TrendWeeks,
		pages:      pages,
		mux:        http.NewServeMux(),
		now:        time.Now,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/report/", s.handleReport)
	s.mux.HandleFunc("/refresh/", s.handleRefresh)
}

// authed reports whether the request carries a valid session. An empty
// configured passphrase disables the gate entirely.
func (s *Server) authed(r *http.Request) bool {
	if s.passphrase == "" {
		return true
	}
	c, err := r.Cookie(authCookie)
	return err == nil && c.Value == s.passphrase
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.authed(r) {
		return true
	}
	http.Redirect(w, r, "/login", http.StatusFound)
	return false
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.passphrase == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	if r.Method == http.MethodPost {
		if r.FormValue("passphrase") == s.passphrase {
			http.SetCookie(w, &http.Cookie{
				Name:     authCookie,
				Value:    s.passphrase,
				Path:     "/",
				HttpOnly: true,
			})
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		s.render(w, "login.html", map[string]any{"Error": "접속 코드가 올바르지 않습니다."})
		return
	}

	s.render(w, "login.html", map[string]any{})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !s.requireAuth(w, r) {
		return
	}

	reports, err := s.db.GetAllReports()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	archived := make(map[string]bool, len(reports))
	for _, rep := range reports {
		archived[rep.PeriodID] = true
	}

	type weekRow struct {
		ID       string
		Label    string
		Range    string
		Archived bool
	}
	var weeks []weekRow
	for _, wk := range period.LastN(s.now(), s.trendWeeks) {
		weeks = append(weeks, weekRow{
			ID:       wk.ID(),
			Label:    wk.Label(),
			Range:    wk.DisplayRange(),
			Archived: archived[wk.ID()],
		})
	}

	s.render(w, "index.html", map[string]any{
		"Reports":    reports,
		"Weeks":      weeks,
		"CanRefresh": s.gen != nil,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuth(w, r) {
		return
	}

	periodID := strings.TrimPrefix(r.URL.Path, "/report/")
	if periodID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	rep, err := s.db.GetReport(periodID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if rep == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "report.html", map[string]any{
		"Report":     rep,
		"CanRefresh": s.gen != nil,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.requireAuth(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if s.gen == nil {
		http.Error(w, "Refresh not available", http.StatusServiceUnavailable)
		return
	}

	periodID := strings.TrimPrefix(r.URL.Path, "/refresh/")
	week, ok := period.Find(period.LastN(s.now(), s.trendWeeks), periodID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	if _, err := s.gen.Refresh(r.Context(), week); err != nil {
		log.Printf("refreshing %s: %v", periodID, err)
		http.Error(w, "Report generation failed", http.StatusBadGateway)
		return
	}

	http.Redirect(w, r, "/report/"+periodID, http.StatusFound)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the configured port.
func Serve(db *database.DB, cfg *config.Config, gen Generator) error {
	srv, err := New(db, cfg, gen)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	log.Printf("Dashboard listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
