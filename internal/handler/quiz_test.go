package handler

import (
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/pavelanni/questionnaire/internal/model"
)

func TestQuizPage(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)
	user := env.session("ann", model.UserRoleUser)
	if err := env.repo.Save("demo", demoQuestions()); err != nil {
		t.Fatal(err)
	}

	rec := env.get("/q/demo", user)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`name="name"`, `name="color"`, `<option value="red">`, "Your name"} {
		if !strings.Contains(body, want) {
			t.Errorf("quiz page missing %q", want)
		}
	}
}

func TestQuizNotFound(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)
	user := env.session("ann", model.UserRoleUser)

	rec := env.get("/q/nope", user)
	assertRedirect(t, rec, "/")
	assertFlash(t, rec, model.FlashError, "Questionnaire 'nope' not found.")

	// The notice is shown once on the next page.
	home := env.get("/", user, flashCookie(rec))
	if !strings.Contains(home.Body.String(), "Questionnaire &#39;nope&#39; not found.") {
		t.Errorf("flash not rendered on home page:\n%s", home.Body.String())
	}
	if flashCookie(home) != nil {
		t.Error("flash cookie should be cleared once shown")
	}
}

func TestQuizSubmitAppends(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)
	user := env.session("ann", model.UserRoleUser)
	if err := env.repo.Save("demo", demoQuestions()); err != nil {
		t.Fatal(err)
	}

	rec := env.post("/q/demo", url.Values{"name": {"Bob"}}, user)
	assertRedirect(t, rec, "/")
	assertFlash(t, rec, model.FlashSuccess, "Thank you!")

	res, err := env.repo.ReadResults("demo")
	if err != nil {
		t.Fatalf("ReadResults: %v", err)
	}
	if got := strings.Join(res.Header, ";"); got != "date;user_id;user_name;user_email;name;color" {
		t.Errorf("header = %q", got)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
	row := res.Rows[0]
	if row["name"] != "Bob" || row["color"] != "" || row["user_name"] != "Ann" || row["user_email"] != "ann@example.com" {
		t.Errorf("unexpected row %+v", row)
	}
}

func TestQuizSubmitRejected(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)
	user := env.session("ann", model.UserRoleUser)
	if err := env.repo.Save("demo", demoQuestions()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{"required missing", url.Values{"name": {"   "}, "color": {"red"}}, "Please answer all required questions."},
		{"unknown option", url.Values{"name": {"Bob"}, "color": {"green"}}, "Please pick one of the proposed options."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.post("/q/demo", tt.form, user)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}
	if _, err := os.Stat(env.repo.ResultsPath("demo")); !os.IsNotExist(err) {
		t.Errorf("rejected submissions must not create results, stat err = %v", err)
	}
}

func TestDefaultQuizAlias(t *testing.T) {
	env := newTestEnv(t, model.AppConfig{}, nil)
	user := env.session("ann", model.UserRoleUser)

	assertRedirect(t, env.get("/quiz", user), "/")

	if err := env.repo.Save("questions", demoQuestions()); err != nil {
		t.Fatal(err)
	}
	rec := env.get("/quiz", user)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `action="/q/questions"`) {
		t.Fatalf("alias did not render the default questionnaire: %d", rec.Code)
	}

	assertRedirect(t, env.post("/quiz", url.Values{"name": {"Eve"}, "color": {"blue"}}, user), "/")
	res, err := env.repo.ReadResults("questions")
	if err != nil || len(res.Rows) != 1 || res.Rows[0]["color"] != "blue" {
		t.Fatalf("alias submission not saved: %+v, %v", res, err)
	}
}
