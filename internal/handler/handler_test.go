package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/questionnaire/internal/i18n"
	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/questionnaire"
	"github.com/pavelanni/questionnaire/internal/store"
)

const testCSRF = "test-csrf-token"

type testEnv struct {
	t      *testing.T
	store  *store.Store
	repo   *questionnaire.Repository
	router http.Handler
}

func newTestEnv(t *testing.T, cfg model.AppConfig, drafter Drafter) *testEnv {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	dir := t.TempDir()
	repo := questionnaire.NewRepository(filepath.Join(dir, "questionnaire"), filepath.Join(dir, "results"), "")
	h := New(s, repo, drafter, cfg)

	r := chi.NewRouter()
	r.Use(appI18n.Middleware("en"))
	if cfg.BasePath != "" {
		r.Route(cfg.BasePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}
	return &testEnv{t: t, store: s, repo: repo, router: r}
}

// session creates an account with password "secret" and returns a valid
// session cookie for it.
func (e *testEnv) session(username string, role model.UserRole) *http.Cookie {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		e.t.Fatal(err)
	}
	id, err := e.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  strings.ToUpper(username[:1]) + username[1:],
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		e.t.Fatalf("create user: %v", err)
	}
	token, err := e.store.CreateAuthSession(id)
	if err != nil {
		e.t.Fatalf("create session: %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: token}
}

func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

// post submits a form carrying a matching CSRF cookie and field.
func (e *testEnv) post(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", testCSRF)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	return e.do(req, cookies...)
}

func (e *testEnv) upload(path, filename string, content []byte, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("csrf_token", testCSRF); err != nil {
		e.t.Fatal(err)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			e.t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			e.t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		e.t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	return e.do(req, cookies...)
}

// flashCookie returns the flash cookie set by rec, or nil.
func flashCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	var found *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookieName && c.Value != "" {
			found = c
		}
	}
	return found
}

func flashesOf(t *testing.T, rec *httptest.ResponseRecorder) []model.Flash {
	t.Helper()
	c := flashCookie(rec)
	if c == nil {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		t.Fatalf("decode flash: %v", err)
	}
	var flashes []model.Flash
	if err := json.Unmarshal(data, &flashes); err != nil {
		t.Fatalf("unmarshal flash: %v", err)
	}
	return flashes
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303; body: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != location {
		t.Fatalf("Location = %q, want %q", got, location)
	}
}

func assertFlash(t *testing.T, rec *httptest.ResponseRecorder, level model.FlashLevel, contains string) {
	t.Helper()
	for _, f := range flashesOf(t, rec) {
		if f.Level == level && strings.Contains(f.Message, contains) {
			return
		}
	}
	t.Errorf("no %s flash containing %q in %+v", level, contains, flashesOf(t, rec))
}

func demoQuestions() []model.Question {
	return []model.Question{
		{ID: 0, Key: "name", Label: "Your name", Type: model.QuestionText, Required: true},
		{ID: 1, Key: "color", Label: "Favourite colour", Type: model.QuestionChoice, Options: []string{"red", "blue"}},
	}
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)

	for _, p := range []string{"/", "/q/demo", "/quiz", "/admin/questionnaires", "/admin/users"} {
		t.Run(p, func(t *testing.T) {
			assertRedirect(t, env.get(p), "/login")
		})
	}
}

func TestBasePath(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{BasePath: "/app"}, nil)

	assertRedirect(t, env.get("/app/"), "/app/login")

	rec := env.get("/app/login")
	if rec.Code != http.StatusOK {
		t.Fatalf("login page status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `action="/app/login"`) {
		t.Error("login form does not post under the base path")
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName && c.Path != "/app/" {
			t.Errorf("csrf cookie path = %q, want /app/", c.Path)
		}
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)
	env.session("ann", model.UserRoleUser)

	rec := env.post("/login", url.Values{"username": {"ann"}, "password": {"wrong"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid username or password.") {
		t.Error("missing login error message")
	}

	rec = env.post("/login", url.Values{"username": {"ann"}, "password": {"secret"}})
	assertRedirect(t, rec, "/")
	var sess *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			sess = c
		}
	}
	if sess == nil || sess.Value == "" || !sess.HttpOnly {
		t.Fatalf("expected an HttpOnly session cookie, got %+v", sess)
	}

	rec = env.get("/", sess)
	if rec.Code != http.StatusOK {
		t.Fatalf("home status = %d", rec.Code)
	}

	assertRedirect(t, env.post("/logout", nil, sess), "/login")
	assertRedirect(t, env.get("/", sess), "/login")
}

func TestCSRFRequired(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)

	form := url.Values{"username": {"ann"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rec := env.do(req); rec.Code != http.StatusForbidden {
		t.Errorf("missing token status = %d, want 403", rec.Code)
	}

	form.Set("csrf_token", "other")
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testCSRF})
	if rec := env.do(req); rec.Code != http.StatusForbidden {
		t.Errorf("mismatched token status = %d, want 403", rec.Code)
	}
}

func TestNonAdminForbidden(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)
	user := env.session("ann", model.UserRoleUser)

	gets := []string{
		"/admin/questionnaires",
		"/admin/questionnaires/upload",
		"/admin/questionnaires/create",
		"/admin/questionnaires/draft",
		"/admin/questionnaires/demo/results",
		"/admin/questionnaires/demo/results/download",
		"/admin/users",
	}
	for _, p := range gets {
		if rec := env.get(p, user); rec.Code != http.StatusForbidden {
			t.Errorf("GET %s status = %d, want 403", p, rec.Code)
		}
	}
	posts := []string{
		"/admin/questionnaires/create",
		"/admin/questionnaires/draft",
		"/admin/users",
		"/admin/users/1/toggle",
	}
	for _, p := range posts {
		if rec := env.post(p, nil, user); rec.Code != http.StatusForbidden {
			t.Errorf("POST %s status = %d, want 403", p, rec.Code)
		}
	}
	if rec := env.upload("/admin/questionnaires/upload", "x.json", []byte("[]"), user); rec.Code != http.StatusForbidden {
		t.Errorf("upload status = %d, want 403", rec.Code)
	}
}

func TestHomeListsQuestionnaires(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)
	user := env.session("ann", model.UserRoleUser)
	if err := env.repo.Save("demo", demoQuestions()); err != nil {
		t.Fatal(err)
	}

	rec := env.get("/", user)
	body := rec.Body.String()
	if !strings.Contains(body, `href="/q/demo"`) || !strings.Contains(body, "2 questions") {
		t.Errorf("home page does not list demo:\n%s", body)
	}
}
