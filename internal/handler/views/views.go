// Package views renders the HTML pages of the questionnaire application.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	appI18n "github.com/pavelanni/questionnaire/internal/i18n"
	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/questionnaire"
)

//go:embed templates/*.html
var templateFS embed.FS

// builderOptionSlots is the minimum number of option inputs per builder row.
const builderOptionSlots = 5

// builderBlankRows is the number of empty rows appended to the builder.
const builderBlankRows = 3

var pages = template.Must(template.New("pages").Funcs(funcs(context.Background())).ParseFS(templateFS, "templates/*.html"))

// funcs returns the template helpers bound to a request context.
func funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t": func(id string) string { return appI18n.T(ctx, id) },
		"td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				data[fmt.Sprint(kv[i])] = kv[i+1]
			}
			return appI18n.Td(ctx, id, data)
		},
		"tp":      func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"lang":    func() string { return appI18n.Language(ctx) },
		"path":    func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf":    func() string { return model.CSRFTokenFromContext(ctx) },
		"user":    func() *model.User { return model.UserFromContext(ctx) },
		"flashes": func() []model.Flash { return model.FlashesFromContext(ctx) },
		"bytes":   func(n int64) string { return humanize.Bytes(uint64(max(n, 0))) },
		"ago":     func(t time.Time) string { return humanize.Time(t) },
		"inc":     func(i int) int { return i + 1 },
	}
}

// page renders the named template with data. Each render works on a clone so
// the helpers see the context of the request being served.
func page(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, err := pages.Clone()
		if err != nil {
			return err
		}
		return t.Funcs(funcs(ctx)).ExecuteTemplate(w, name, data)
	})
}

// LoginPage renders the sign-in form, with an optional error message.
func LoginPage(errMsg string) templ.Component {
	return page("login", struct{ Error string }{errMsg})
}

// HomePage lists the questionnaires a user can answer.
func HomePage(list []model.QuestionnaireInfo) templ.Component {
	return page("home", struct{ Questionnaires []model.QuestionnaireInfo }{list})
}

// QuizPage renders the answer form of a questionnaire. answers prefills the
// inputs when a submission is shown again.
func QuizPage(id string, questions []model.Question, answers map[string]string) templ.Component {
	if answers == nil {
		answers = map[string]string{}
	}
	return page("quiz", struct {
		ID        string
		Questions []model.Question
		Answers   map[string]string
	}{id, questions, answers})
}

// AdminQuestionnairesPage lists every definition with its results status.
func AdminQuestionnairesPage(list []model.QuestionnaireInfo, draftEnabled bool) templ.Component {
	return page("admin_questionnaires", struct {
		Questionnaires []model.QuestionnaireInfo
		DraftEnabled   bool
	}{list, draftEnabled})
}

// AdminResultsPage shows the results table; res is nil when there are none.
func AdminResultsPage(id string, res *model.Results) templ.Component {
	return page("admin_results", struct {
		ID      string
		Results *model.Results
	}{id, res})
}

// AdminUploadPage renders the definition upload form.
func AdminUploadPage() templ.Component {
	return page("admin_upload", nil)
}

// BuilderRow is one question block of the builder form.
type BuilderRow struct {
	Index int
	questionnaire.QuestionSpec
}

// builderRows lays out specs followed by blank rows. Every row gets at least
// builderOptionSlots option inputs plus one spare.
func builderRows(specs []questionnaire.QuestionSpec) []BuilderRow {
	rows := make([]BuilderRow, 0, len(specs)+builderBlankRows)
	for _, s := range specs {
		rows = append(rows, BuilderRow{QuestionSpec: s})
	}
	for range builderBlankRows {
		rows = append(rows, BuilderRow{QuestionSpec: questionnaire.QuestionSpec{Type: model.QuestionText}})
	}
	for i := range rows {
		rows[i].Index = i
		n := max(builderOptionSlots, len(rows[i].Options)+1)
		opts := make([]string, n)
		copy(opts, rows[i].Options)
		rows[i].Options = opts
	}
	return rows
}

// AdminCreatePage renders the questionnaire builder prefilled with specs.
func AdminCreatePage(id string, specs []questionnaire.QuestionSpec) templ.Component {
	return page("admin_create", struct {
		ID   string
		Rows []BuilderRow
	}{id, builderRows(specs)})
}

// AdminDraftPage renders the draft generation form.
func AdminDraftPage(topic string, count int) templ.Component {
	return page("admin_draft", struct {
		Topic string
		Count int
	}{topic, count})
}

// AdminUsersPage lists accounts and the account creation form.
func AdminUsersPage(users []model.User) templ.Component {
	return page("admin_users", struct{ Users []model.User }{users})
}
