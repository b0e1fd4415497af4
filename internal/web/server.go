// Package web is the local browser front for the forum client. It renders
// the feed, the comments dialog, the composer and the profile view, and
// hosts the route guard
package web

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/renderinc/forumsync/internal/composer"
	"github.com/renderinc/forumsync/internal/feed"
	"github.com/renderinc/forumsync/internal/guard"
	"github.com/renderinc/forumsync/internal/search"
	"github.com/renderinc/forumsync/internal/session"
	"github.com/renderinc/forumsync/internal/storage"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options are the components a Server renders and drives. DB, Index and
// Gatherer may be nil
type Options struct {
	Session   *session.Store
	Feed      *feed.Synchronizer
	Composer  *composer.Composer
	Exchanger session.Exchanger
	DB        *storage.DB
	Index     *search.Index
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Server is the local web front end over the client components
type Server struct {
	session   *session.Store
	feed      *feed.Synchronizer
	composer  *composer.Composer
	exchanger session.Exchanger
	db        *storage.DB
	idx       *search.Index
	gatherer  prometheus.Gatherer
	guard     *guard.Guard
	templates *template.Template
	logger    *slog.Logger

	// one-shot message shown on the next rendered page
	flashMu sync.Mutex
	flash   string
}

// NewServer parses the embedded templates and builds a Server from opts
func NewServer(opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("error parsing templates: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		session:   opts.Session,
		feed:      opts.Feed,
		composer:  opts.Composer,
		exchanger: opts.Exchanger,
		db:        opts.DB,
		idx:       opts.Index,
		gatherer:  opts.Gatherer,
		guard:     guard.New(opts.Session, guard.DefaultLoginPath, "/compose", "/profile"),
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Handler returns the routed handler with request logging and the route guard
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.Use(s.guard.Middleware)

	r.PathPrefix("/static/").Handler(http.FileServer(http.FS(staticFS)))

	r.HandleFunc("/", redirectTo("/blog")).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	r.HandleFunc("/blog", s.handleBlog).Methods(http.MethodGet)
	r.HandleFunc("/blog/reload", s.handleReload).Methods(http.MethodPost)
	r.HandleFunc("/blog/comments/close", s.handleCloseComments).Methods(http.MethodPost)
	r.HandleFunc("/blog/{id}/comments", s.handleOpenComments).Methods(http.MethodGet)
	r.HandleFunc("/blog/{id}/like", s.handleLike).Methods(http.MethodPost)
	r.HandleFunc("/blog/{id}/comment", s.handleComment).Methods(http.MethodPost)

	r.HandleFunc("/compose", s.handleComposePage).Methods(http.MethodGet)
	r.HandleFunc("/compose", s.handleCompose).Methods(http.MethodPost)
	r.HandleFunc("/compose/cancel", s.handleComposeCancel).Methods(http.MethodPost)

	r.HandleFunc("/profile", s.handleProfile).Methods(http.MethodGet)

	r.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	// unknown views fall back to the feed
	r.NotFoundHandler = redirectTo("/blog")

	return r
}

func redirectTo(target string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) setFlash(msg string) {
	s.flashMu.Lock()
	defer s.flashMu.Unlock()
	s.flash = msg
}

func (s *Server) takeFlash() string {
	s.flashMu.Lock()
	defer s.flashMu.Unlock()
	msg := s.flash
	s.flash = ""
	return msg
}

// page is the data every template receives
type page struct {
	Title         string
	Authenticated bool
	Identity      session.Identity
	Flash         string
	Data          any
}

func (s *Server) render(w http.ResponseWriter, status int, name, title string, data any) {
	identity, ok := s.session.Identity()
	p := page{
		Title:         title,
		Authenticated: ok,
		Identity:      identity,
		Flash:         s.takeFlash(),
		Data:          data,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, p); err != nil {
		s.logger.Error("Error rendering template", slog.String("template", name), slog.String("error", err.Error()))
	}
}

// fail turns an operation error into a response. Session errors become the
// login redirect; anything else is flashed on the feed
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if target, ok := s.guard.RedirectFor(err); ok {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	s.setFlash(fmt.Sprintf("%s: %v", msg, err))
	http.Redirect(w, r, "/blog", http.StatusSeeOther)
}
