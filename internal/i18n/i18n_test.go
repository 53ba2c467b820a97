package i18n

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "Submit"); got != "Submit" {
		t.Errorf("T(Submit) = %q, want 'Submit'", got)
	}
	if got := T(ctx, "OnlyJSON"); got != "Only .json files are allowed." {
		t.Errorf("T(OnlyJSON) = %q", got)
	}
}

func TestTranslateFrench(t *testing.T) {
	ctx := initLang(t, "fr")

	if got := T(ctx, "Submit"); got != "Envoyer" {
		t.Errorf("T(Submit) = %q, want 'Envoyer'", got)
	}
	if got := T(ctx, "AnswersSaved"); got != "Merci ! Vos réponses ont été enregistrées." {
		t.Errorf("T(AnswersSaved) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsCount", 1); got != "1 question" {
		t.Errorf("Tp(QuestionsCount, 1) = %q, want '1 question'", got)
	}
	if got := Tp(ctx, "QuestionsCount", 5); got != "5 questions" {
		t.Errorf("Tp(QuestionsCount, 5) = %q, want '5 questions'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "fr")

	got := Td(ctx, "QuestionnaireNotFound", map[string]any{"ID": "demo"})
	if got != "Questionnaire 'demo' introuvable." {
		t.Errorf("Td(QuestionnaireNotFound) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestLocalesHaveSameKeys(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	if len(Supported()) != 2 {
		t.Fatalf("expected 2 supported languages, got %v", Supported())
	}
	enCtx := WithLocalizer(context.Background(), NewLocalizer("en"))
	frCtx := WithLocalizer(context.Background(), NewLocalizer("fr"))
	for _, id := range []string{"AppTitle", "Login", "UploadSuccess", "CreateSuccess", "DraftFailed", "UsersTitle"} {
		if T(enCtx, id) == id {
			t.Errorf("missing english message %s", id)
		}
		if T(frCtx, id) == id {
			t.Errorf("missing french message %s", id)
		}
	}
}

// go-i18n treats these names as message fields, so a top-level id using one
// of them breaks parsing of the whole file.
var reservedMessageFields = []string{
	"id", "description", "hash", "leftdelim", "rightdelim",
	"zero", "one", "two", "few", "many", "other",
}

func readLocale(t *testing.T, name string) map[string]json.RawMessage {
	t.Helper()
	data, err := localeFS.ReadFile("locales/" + name)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return m
}

func TestLocaleFilesMatchAndAvoidReservedIDs(t *testing.T) {
	en := readLocale(t, "en.json")
	fr := readLocale(t, "fr.json")

	for _, m := range []map[string]json.RawMessage{en, fr} {
		for id := range m {
			if slices.Contains(reservedMessageFields, strings.ToLower(id)) {
				t.Errorf("message id %q clashes with a go-i18n field name", id)
			}
		}
	}

	enIDs := slices.Sorted(maps.Keys(en))
	frIDs := slices.Sorted(maps.Keys(fr))
	if !slices.Equal(enIDs, frIDs) {
		t.Errorf("locale ids differ:\nen %v\nfr %v", enIDs, frIDs)
	}
}

func TestBuilderLabelsTranslate(t *testing.T) {
	ctx := initLang(t, "fr")
	for _, id := range []string{"QuestionDescription", "Key", "Label", "Options"} {
		if got := T(ctx, id); got == id {
			t.Errorf("T(%s) returned the id untranslated", id)
		}
	}
}

func TestMiddlewareNegotiation(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		accept   string
		wantLang string
		wantText string
	}{
		{"", "en", "Submit"},
		{"fr-FR,fr;q=0.9,en;q=0.5", "fr", "Envoyer"},
		{"de-DE", "en", "Submit"},
		{"en-GB", "en", "Submit"},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			var lang, text string
			h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				lang = Language(r.Context())
				text = T(r.Context(), "Submit")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if lang != tt.wantLang {
				t.Errorf("language = %q, want %q", lang, tt.wantLang)
			}
			if text != tt.wantText {
				t.Errorf("T(Submit) = %q, want %q", text, tt.wantText)
			}
		})
	}
}
