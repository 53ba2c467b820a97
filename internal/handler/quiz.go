package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/questionnaire/internal/handler/views"
	appI18n "github.com/pavelanni/questionnaire/internal/i18n"
	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/questionnaire"
)

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List()
	if err != nil {
		h.serverError(w, "failed to list questionnaires", err)
		return
	}
	h.render(w, r, http.StatusOK, views.HomePage(list))
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	h.showQuiz(w, r, chi.URLParam(r, "qid"))
}

func (h *Handler) handleQuizSubmit(w http.ResponseWriter, r *http.Request) {
	h.submitQuiz(w, r, chi.URLParam(r, "qid"))
}

func (h *Handler) handleDefaultQuizPage(w http.ResponseWriter, r *http.Request) {
	h.showQuiz(w, r, h.config.DefaultQuestionnaire)
}

func (h *Handler) handleDefaultQuizSubmit(w http.ResponseWriter, r *http.Request) {
	h.submitQuiz(w, r, h.config.DefaultQuestionnaire)
}

// loadQuiz returns the questions of id, or flashes a not-found notice and
// redirects home.
func (h *Handler) loadQuiz(w http.ResponseWriter, r *http.Request, id string) ([]model.Question, bool) {
	questions, err := h.repo.Load(id)
	if errors.Is(err, questionnaire.ErrNotFound) {
		h.addFlash(w, r, model.FlashError, appI18n.Td(r.Context(), "QuestionnaireNotFound", map[string]any{"ID": id}))
		h.redirect(w, r, "/")
		return nil, false
	}
	if err != nil {
		h.serverError(w, "failed to load questionnaire", err)
		return nil, false
	}
	return questions, true
}

func (h *Handler) showQuiz(w http.ResponseWriter, r *http.Request, id string) {
	questions, ok := h.loadQuiz(w, r, id)
	if !ok {
		return
	}
	h.render(w, r, http.StatusOK, views.QuizPage(id, questions, nil))
}

// collectAnswers reads one value per question key. Missing fields are "".
// It reports the message id of the first problem found, if any.
func collectAnswers(r *http.Request, questions []model.Question) (map[string]string, string) {
	answers := make(map[string]string, len(questions))
	problem := ""
	for _, q := range questions {
		v := strings.TrimSpace(r.PostFormValue(q.Key))
		answers[q.Key] = v
		switch {
		case problem != "":
		case q.Required && v == "":
			problem = "RequiredMissing"
		case v != "" && q.Type == model.QuestionChoice && len(q.Options) > 0 && !slices.Contains(q.Options, v):
			problem = "InvalidChoice"
		}
	}
	return answers, problem
}

func (h *Handler) submitQuiz(w http.ResponseWriter, r *http.Request, id string) {
	questions, ok := h.loadQuiz(w, r, id)
	if !ok {
		return
	}

	answers, problem := collectAnswers(r, questions)
	if problem != "" {
		r = withFlash(r, model.FlashError, appI18n.T(r.Context(), problem))
		h.render(w, r, http.StatusBadRequest, views.QuizPage(id, questions, answers))
		return
	}

	user := model.UserFromContext(r.Context())
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	sub := model.Submission{
		SubmittedAt: time.Now(),
		UserID:      user.ID,
		UserName:    name,
		UserEmail:   user.Email,
		Answers:     answers,
	}
	if err := h.repo.Append(id, questions, sub); err != nil {
		h.serverError(w, "failed to save answers", err)
		return
	}
	slog.Info("answers saved", "questionnaire", id, "user", user.Username)

	h.addFlash(w, r, model.FlashSuccess, appI18n.T(r.Context(), "AnswersSaved"))
	h.redirect(w, r, "/")
}
