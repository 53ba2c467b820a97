package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/questionnaire/internal/handler/views"
	appI18n "github.com/pavelanni/questionnaire/internal/i18n"
	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/questionnaire"
)

const (
	defaultDraftQuestions = 5
	maxDraftQuestions     = 20
)

func (h *Handler) handleAdminQuestionnaires(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.List()
	if err != nil {
		h.serverError(w, "failed to list questionnaires", err)
		return
	}
	h.render(w, r, http.StatusOK, views.AdminQuestionnairesPage(list, h.drafter != nil))
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "qid")
	res, err := h.repo.ReadResults(id)
	if errors.Is(err, questionnaire.ErrNoResults) {
		r = withFlash(r, model.FlashInfo, appI18n.T(r.Context(), "NoResultsFound"))
		h.render(w, r, http.StatusOK, views.AdminResultsPage(id, nil))
		return
	}
	if err != nil {
		h.serverError(w, "failed to read results", err)
		return
	}
	h.render(w, r, http.StatusOK, views.AdminResultsPage(id, res))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "qid")
	f, err := h.repo.OpenResults(id)
	if errors.Is(err, questionnaire.ErrNoResults) {
		h.addFlash(w, r, model.FlashInfo, appI18n.T(r.Context(), "NoResultsToDownload"))
		h.redirect(w, r, "/admin/questionnaires/"+id+"/results")
		return
	}
	if err != nil {
		h.serverError(w, "failed to open results", err)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		h.serverError(w, "failed to stat results", err)
		return
	}
	name := id + "_results.csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, st.ModTime(), f)
}

func (h *Handler) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.AdminUploadPage())
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		h.addFlash(w, r, model.FlashError, appI18n.T(ctx, "NoFileSelected"))
		h.redirect(w, r, "/admin/questionnaires/upload")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.serverError(w, "failed to read upload", err)
		return
	}
	filename := filepath.Base(header.Filename)

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])
	storedHash, err := h.store.GetImportedFileHash(filename)
	if err != nil {
		h.serverError(w, "failed to check import status", err)
		return
	}
	if storedHash == hash {
		// The definition may have been rewritten since by the builder or a draft.
		id := questionnaire.SanitizeID(strings.TrimSuffix(filename, filepath.Ext(filename)))
		if h.repo.Holds(id, data) {
			slog.Info("uploaded questionnaire unchanged", "filename", filename)
			h.addFlash(w, r, model.FlashInfo, appI18n.Td(ctx, "UploadUnchanged", map[string]any{"Name": id}))
			h.redirect(w, r, "/admin/questionnaires")
			return
		}
	}

	id, n, err := h.repo.Import(filename, data)
	switch {
	case errors.Is(err, questionnaire.ErrNotJSON):
		h.addFlash(w, r, model.FlashError, appI18n.T(ctx, "OnlyJSON"))
		h.redirect(w, r, "/admin/questionnaires/upload")
		return
	case errors.Is(err, questionnaire.ErrInvalidID):
		h.addFlash(w, r, model.FlashError, appI18n.T(ctx, "InvalidID"))
		h.redirect(w, r, "/admin/questionnaires/upload")
		return
	case errors.Is(err, questionnaire.ErrInvalidDefinition):
		h.addFlash(w, r, model.FlashError, appI18n.Td(ctx, "InvalidDefinition", map[string]any{"Error": err.Error()}))
		h.redirect(w, r, "/admin/questionnaires/upload")
		return
	case err != nil:
		h.serverError(w, "failed to import questionnaire", err)
		return
	}

	if err := h.store.SetImportedFileHash(filename, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}
	slog.Info("uploaded questionnaire via admin", "filename", filename, "id", id, "count", n)

	h.addFlash(w, r, model.FlashSuccess, appI18n.Td(ctx, "UploadSuccess", map[string]any{"Name": id}))
	h.redirect(w, r, "/admin/questionnaires")
}

func (h *Handler) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, views.AdminCreatePage("", nil))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(r.PostFormValue("questionnaire_id"))
	specs := parseQuestionForm(r.PostForm)

	var problem string
	questions, err := h.repo.Create(id, specs)
	switch {
	case err == nil:
	case id == "":
		problem = appI18n.T(ctx, "IDRequired")
	case errors.Is(err, questionnaire.ErrInvalidID):
		problem = appI18n.T(ctx, "InvalidID")
	case errors.Is(err, questionnaire.ErrNoQuestions):
		problem = appI18n.T(ctx, "NoValidQuestion")
	case errors.Is(err, questionnaire.ErrInvalidDefinition):
		problem = appI18n.Td(ctx, "InvalidDefinition", map[string]any{"Error": err.Error()})
	default:
		h.serverError(w, "failed to create questionnaire", err)
		return
	}
	if problem != "" {
		// Show the builder again with what was entered.
		r = withFlash(r, model.FlashError, problem)
		h.render(w, r, http.StatusBadRequest, views.AdminCreatePage(id, nonBlankSpecs(specs)))
		return
	}

	slog.Info("created questionnaire via builder", "id", id, "count", len(questions))
	h.addFlash(w, r, model.FlashSuccess, appI18n.Td(ctx, "CreateSuccess", map[string]any{"ID": id}))
	h.redirect(w, r, "/admin/questionnaires")
}

// nonBlankSpecs drops builder rows the user left empty, so that a re-rendered
// builder does not accumulate blank rows.
func nonBlankSpecs(specs []questionnaire.QuestionSpec) []questionnaire.QuestionSpec {
	var out []questionnaire.QuestionSpec
	for _, s := range specs {
		if strings.TrimSpace(s.Key) != "" || strings.TrimSpace(s.Label) != "" || strings.TrimSpace(s.Description) != "" {
			out = append(out, s)
		}
	}
	return out
}

func (h *Handler) handleDraftPage(w http.ResponseWriter, r *http.Request) {
	if h.drafter == nil {
		h.addFlash(w, r, model.FlashInfo, appI18n.T(r.Context(), "DraftDisabled"))
		h.redirect(w, r, "/admin/questionnaires")
		return
	}
	h.render(w, r, http.StatusOK, views.AdminDraftPage("", defaultDraftQuestions))
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.drafter == nil {
		h.addFlash(w, r, model.FlashInfo, appI18n.T(ctx, "DraftDisabled"))
		h.redirect(w, r, "/admin/questionnaires")
		return
	}

	topic := strings.TrimSpace(r.FormValue("topic"))
	count, err := strconv.Atoi(r.FormValue("count"))
	if err != nil || count < 1 {
		count = defaultDraftQuestions
	}
	count = min(count, maxDraftQuestions)

	if topic == "" {
		r = withFlash(r, model.FlashError, appI18n.T(ctx, "TopicRequired"))
		h.render(w, r, http.StatusBadRequest, views.AdminDraftPage(topic, count))
		return
	}

	questions, err := h.drafter.DraftQuestionnaire(ctx, topic, count, appI18n.Language(ctx))
	if err != nil {
		slog.Error("draft generation failed", "topic", topic, "error", err)
		r = withFlash(r, model.FlashError, appI18n.Td(ctx, "DraftFailed", map[string]any{"Error": err.Error()}))
		h.render(w, r, http.StatusBadGateway, views.AdminDraftPage(topic, count))
		return
	}
	slog.Info("generated questionnaire draft", "topic", topic, "count", len(questions))

	r = withFlash(r, model.FlashInfo, appI18n.T(ctx, "DraftReady"))
	h.render(w, r, http.StatusOK, views.AdminCreatePage(questionnaire.SanitizeID(topic), questionnaire.Specs(questions)))
}

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		h.serverError(w, "failed to list users", err)
		return
	}
	h.render(w, r, http.StatusOK, views.AdminUsersPage(users))
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := strings.TrimSpace(r.FormValue("username"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	role := model.UserRole(r.FormValue("role"))
	if role == "" {
		role = model.UserRoleUser
	}

	if username == "" || password == "" {
		h.addFlash(w, r, model.FlashError, appI18n.T(ctx, "UsernamePasswordRequired"))
		h.redirect(w, r, "/admin/users")
		return
	}
	if role != model.UserRoleUser && role != model.UserRoleAdmin {
		h.addFlash(w, r, model.FlashError, appI18n.T(ctx, "InvalidRole"))
		h.redirect(w, r, "/admin/users")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		h.serverError(w, "failed to hash password", err)
		return
	}

	if displayName == "" {
		displayName = username
	}

	_, err = h.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "username", username, "error", err)
		h.addFlash(w, r, model.FlashError, appI18n.Td(ctx, "UserCreateFailed", map[string]any{"Name": username}))
		h.redirect(w, r, "/admin/users")
		return
	}
	slog.Info("created user", "username", username, "role", role)

	h.addFlash(w, r, model.FlashSuccess, appI18n.Td(ctx, "UserCreated", map[string]any{"Name": username}))
	h.redirect(w, r, "/admin/users")
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// A deactivated account loses its open sessions.
	if u, err := h.store.GetUserByID(id); err == nil && u != nil && !u.Active {
		if err := h.store.DeleteUserSessions(id); err != nil {
			slog.Error("failed to drop sessions", "id", id, "error", err)
		}
	}

	h.redirect(w, r, "/admin/users")
}
