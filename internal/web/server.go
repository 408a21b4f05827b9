// Package web serves the region news map page over HTTP.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/region-news-map/internal/newsmap"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "region_news_session"

//go:embed templates/page.html
var templateFS embed.FS

// Server renders pages and handles selection and search requests.
type Server struct {
	log         *slog.Logger
	sessions    *Sessions
	mapClientID string
	page        *template.Template
}

// NewServer parses the page template and wires the handlers.
func NewServer(log *slog.Logger, sessions *Sessions, mapClientID string) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return nil, err
	}
	return &Server{log: log, sessions: sessions, mapClientID: mapClientID, page: tmpl}, nil
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handlePage)
	r.Post("/search", s.handleFormSearch)

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", s.handleView)
		r.Post("/selection", s.handleSelection)
		r.Post("/search", s.handleSearch)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type viewResponse struct {
	View   newsmap.View `json:"view"`
	Alerts []string     `json:"alerts"`
}

type selectionRequest struct {
	Group   string `json:"group"`
	Name    string `json:"name"`
	Checked bool   `json:"checked"`
}

type pageData struct {
	View        newsmap.View
	Alerts      []string
	MapClientID string
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	data := pageData{
		View:        sess.Page.View(),
		Alerts:      sess.Flash.Drain(),
		MapClientID: s.mapClientID,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.log.Error("render page", slog.Any("err", err))
	}
}

// handleFormSearch applies the submitted checkbox set, searches and redirects back to the page.
func (s *Server) handleFormSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if err := applyForm(sess.Page, r.PostForm["region"], r.PostForm["category"]); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.search(r, sess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewResponse{View: sess.Page.View(), Alerts: drained(sess.Flash)})
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	var err error
	switch req.Group {
	case "region":
		err = sess.Page.ToggleRegion(req.Name, req.Checked)
	case "category":
		err = sess.Page.ToggleCategory(req.Name, req.Checked)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "group must be region or category"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, viewResponse{View: sess.Page.View(), Alerts: drained(sess.Flash)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.search(r, sess)
	writeJSON(w, http.StatusOK, viewResponse{View: sess.Page.View(), Alerts: drained(sess.Flash)})
}

// search runs the page search. Outcomes reach the user through the session flash,
// so errors here are only logged.
func (s *Server) search(r *http.Request, sess *Session) {
	err := sess.Page.Search(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, newsmap.ErrNoRegion), errors.Is(err, newsmap.ErrNoCategory):
		s.log.Debug("search rejected", slog.String("session", sess.ID), slog.Any("err", err))
	case errors.Is(err, newsmap.ErrStale):
		s.log.Debug("search superseded", slog.String("session", sess.ID))
	default:
		s.log.Warn("search failed", slog.String("session", sess.ID), slog.Any("err", err))
	}
}

// session finds the caller's session or starts a new one and sets its cookie.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.sessions.Get(c.Value); ok {
			return sess, true
		}
	}

	sess, err := s.sessions.Create()
	if err != nil {
		s.log.Error("create session", slog.Any("err", err))
		http.Error(w, "could not start session", http.StatusInternalServerError)
		return nil, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	return sess, true
}

// applyForm turns a submitted checkbox set into toggles for the boxes whose state changed.
func applyForm(page *newsmap.Page, regions, categories []string) error {
	view := page.View()
	if err := applyGroup(view.Regions, regions, page.ToggleRegion); err != nil {
		return err
	}
	return applyGroup(view.Categories, categories, page.ToggleCategory)
}

func applyGroup(boxes []newsmap.Checkbox, submitted []string, toggle func(string, bool) error) error {
	known := make(map[string]struct{}, len(boxes))
	for _, box := range boxes {
		known[box.Name] = struct{}{}
	}
	for _, name := range submitted {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("unknown option %q", name)
		}
	}

	want := toSet(submitted)
	for _, box := range boxes {
		_, on := want[box.Name]
		if on == box.Checked {
			continue
		}
		if err := toggle(box.Name, on); err != nil {
			return err
		}
	}
	return nil
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func drained(f *Flash) []string {
	alerts := f.Drain()
	if alerts == nil {
		return []string{}
	}
	return alerts
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
