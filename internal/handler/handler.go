package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/questionnaire"
	"github.com/pavelanni/questionnaire/internal/store"
)

// Drafter proposes questionnaire definitions for a topic.
type Drafter interface {
	DraftQuestionnaire(ctx context.Context, topic string, count int, lang string) ([]model.Question, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	repo    *questionnaire.Repository
	drafter Drafter
	config  model.AppConfig
}

// New creates a new Handler. drafter may be nil, which disables draft
// generation.
func New(s *store.Store, repo *questionnaire.Repository, drafter Drafter, cfg model.AppConfig) *Handler {
	if cfg.DefaultQuestionnaire == "" {
		cfg.DefaultQuestionnaire = "questions"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Handler{store: s, repo: repo, drafter: drafter, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.limitBody, h.flashMiddleware, h.csrfMiddleware)

	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/", h.handleHome)
		r.Get("/q/{qid}", h.handleQuizPage)
		r.Post("/q/{qid}", h.handleQuizSubmit)
		r.Get("/quiz", h.handleDefaultQuizPage)
		r.Post("/quiz", h.handleDefaultQuizSubmit)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireRole(model.UserRoleAdmin))

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.redirect(w, r, "/admin/questionnaires")
			})
			r.Get("/questionnaires", h.handleAdminQuestionnaires)
			r.Get("/questionnaires/upload", h.handleUploadPage)
			r.Post("/questionnaires/upload", h.handleUpload)
			r.Get("/questionnaires/create", h.handleCreatePage)
			r.Post("/questionnaires/create", h.handleCreate)
			r.Get("/questionnaires/draft", h.handleDraftPage)
			r.Post("/questionnaires/draft", h.handleDraft)
			r.Get("/questionnaires/{qid}/results", h.handleResults)
			r.Get("/questionnaires/{qid}/results/download", h.handleDownload)

			r.Get("/users", h.handleAdminUsersPage)
			r.Post("/users", h.handleCreateUser)
			r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
		})
	})
}

// BasePathMiddleware exposes the configured URL prefix to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limitBody caps request bodies at the upload limit plus room for form fields.
func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadBytes+1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

// path prefixes an application path with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, p string) {
	http.Redirect(w, r, h.path(p), http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
