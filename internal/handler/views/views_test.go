package views

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	appI18n "github.com/pavelanni/questionnaire/internal/i18n"
	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/questionnaire"
)

func renderCtx(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := appI18n.Init("en"); err != nil {
		t.Fatalf("init i18n: %v", err)
	}
	ctx := appI18n.WithLanguage(context.Background(), lang)
	ctx = appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(lang))
	ctx = model.ContextWithBasePath(ctx, "/app")
	ctx = model.ContextWithCSRFToken(ctx, "tok123")
	return ctx
}

func TestLoginPage(t *testing.T) {
	ctx := renderCtx(t, "fr")
	var buf bytes.Buffer
	if err := LoginPage("Identifiant ou mot de passe incorrect.").Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`<html lang="fr">`,
		`action="/app/login"`,
		`value="tok123"`,
		"Mot de passe",
		"Identifiant ou mot de passe incorrect.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("login page missing %q", want)
		}
	}
}

func TestQuizPage(t *testing.T) {
	ctx := renderCtx(t, "en")
	ctx = model.ContextWithUser(ctx, &model.User{ID: 1, Username: "ann", DisplayName: "Ann", Role: model.UserRoleUser})
	ctx = model.ContextWithFlashes(ctx, []model.Flash{{Level: model.FlashError, Message: "answer <everything>"}})

	questions := []model.Question{
		{Key: "name", Label: "Your name", Type: model.QuestionText, Required: true},
		{Key: "color", Type: model.QuestionChoice, Options: []string{"red", "blue"}},
	}
	var buf bytes.Buffer
	if err := QuizPage("demo", questions, map[string]string{"name": "Ann", "color": "blue"}).Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`action="/app/q/demo"`,
		`name="name"`,
		">Ann</textarea>",
		`<option value="blue" selected>`,
		// Unlabelled questions fall back to their key.
		`<label for="q_color">color`,
		"answer &lt;everything&gt;",
		"Signed in as Ann",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("quiz page missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "/admin/users") {
		t.Error("non-admin should not see admin navigation")
	}
}

func TestAdminQuestionnairesPage(t *testing.T) {
	ctx := renderCtx(t, "en")
	ctx = model.ContextWithUser(ctx, &model.User{ID: 1, Username: "admin", Role: model.UserRoleAdmin})

	list := []model.QuestionnaireInfo{
		{ID: "demo", Filename: "demo.json", Questions: 2, HasResults: true, ResultsSize: 2048, ModifiedAt: time.Now().Add(-time.Hour)},
		{ID: "empty", Filename: "empty.json", Questions: 1},
	}
	var buf bytes.Buffer
	if err := AdminQuestionnairesPage(list, false).Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"/app/admin/questionnaires/demo/results/download",
		"2.0 kB",
		"1 hour ago",
		"No results yet",
		"/app/admin/users",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("admin page missing %q", want)
		}
	}
	if strings.Contains(out, "/admin/questionnaires/draft") {
		t.Error("draft link shown while drafting is disabled")
	}
}

func TestAdminResultsPage(t *testing.T) {
	ctx := renderCtx(t, "en")
	res := &model.Results{
		Header: []string{"date", "name"},
		Rows:   []map[string]string{{"date": "01/02/2024", "name": "Bob"}},
	}
	var buf bytes.Buffer
	if err := AdminResultsPage("demo", res).Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<td>01/02/2024</td><td>Bob</td>") {
		t.Errorf("results row not rendered in header order:\n%s", out)
	}
	if !strings.Contains(out, "1 submission") {
		t.Error("missing submission count")
	}
}

func TestBuilderRows(t *testing.T) {
	specs := []questionnaire.QuestionSpec{
		{Index: 7, Key: "color", Type: model.QuestionChoice, Options: []string{"a", "b", "c", "d", "e", "f"}},
	}
	rows := builderRows(specs)
	if len(rows) != 1+builderBlankRows {
		t.Fatalf("expected %d rows, got %d", 1+builderBlankRows, len(rows))
	}
	for i, r := range rows {
		if r.Index != i {
			t.Errorf("row %d has index %d", i, r.Index)
		}
	}
	if len(rows[0].Options) != 7 || rows[0].Options[5] != "f" || rows[0].Options[6] != "" {
		t.Errorf("first row options = %q", rows[0].Options)
	}
	if len(rows[1].Options) != builderOptionSlots || rows[1].Type != model.QuestionText {
		t.Errorf("blank row = %+v", rows[1])
	}
	if specs[0].Options[0] != "a" || len(specs[0].Options) != 6 {
		t.Error("builderRows modified its input")
	}
}

func TestAdminCreatePage(t *testing.T) {
	ctx := renderCtx(t, "en")
	var buf bytes.Buffer
	specs := []questionnaire.QuestionSpec{{Key: "mood", Label: "Mood", Type: model.QuestionChoice, Required: true, Options: []string{"good"}}}
	if err := AdminCreatePage("draft", specs).Render(ctx, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`name="key_0" value="mood"`,
		`name="option_0_0" value="good"`,
		`name="required_0" value="on" checked`,
		`<option value="choice" selected>`,
		`name="key_3"`,
		"Question 4",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("builder missing %q", want)
		}
	}
}
