// Package questionnaire stores questionnaire definitions as JSON files and
// their results as semicolon-delimited CSV files.
package questionnaire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/questionnaire/internal/model"
)

var (
	// ErrNotFound is returned when no definition file exists for an id.
	ErrNotFound = errors.New("questionnaire not found")
	// ErrInvalidID is returned for empty ids or ids unsafe as file names.
	ErrInvalidID = errors.New("invalid questionnaire id")
	// ErrNotJSON is returned when an uploaded file lacks the .json extension.
	ErrNotJSON = errors.New("only .json files are allowed")
	// ErrInvalidDefinition wraps parse and validation failures of a definition.
	ErrInvalidDefinition = errors.New("invalid questionnaire definition")
)

const definitionExt = ".json"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ValidID reports whether id can be used as a file name stem.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// SanitizeID turns an arbitrary upload name into a safe id, or "" when
// nothing usable is left.
func SanitizeID(name string) string {
	id := unsafeIDChars.ReplaceAllString(strings.TrimSpace(name), "_")
	id = strings.Trim(id, "_-")
	if len(id) > 64 {
		id = id[:64]
	}
	return id
}

// Repository reads and writes definition and results files. It is safe for
// concurrent use; appends to one results file are serialized.
type Repository struct {
	questionnaireDir string
	resultsDir       string
	dateFormat       string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRepository returns a repository rooted at the two directories.
// dateFormat is the Go layout of the results date column.
func NewRepository(questionnaireDir, resultsDir, dateFormat string) *Repository {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	return &Repository{
		questionnaireDir: questionnaireDir,
		resultsDir:       resultsDir,
		dateFormat:       dateFormat,
		locks:            make(map[string]*sync.Mutex),
	}
}

func (r *Repository) definitionPath(id string) string {
	return filepath.Join(r.questionnaireDir, id+definitionExt)
}

// Load returns the questions of questionnaire id.
func (r *Repository) Load(id string) ([]model.Question, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(r.definitionPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	questions, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return questions, nil
}

// List returns every definition in the questionnaire directory, sorted by id.
func (r *Repository) List() ([]model.QuestionnaireInfo, error) {
	entries, err := os.ReadDir(r.questionnaireDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read questionnaire dir: %w", err)
	}

	var list []model.QuestionnaireInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != definitionExt {
			continue
		}
		id := strings.TrimSuffix(e.Name(), definitionExt)
		if !ValidID(id) {
			continue
		}
		info := model.QuestionnaireInfo{ID: id, Filename: e.Name()}
		if questions, err := r.Load(id); err != nil {
			slog.Warn("unreadable questionnaire definition", "id", id, "error", err)
		} else {
			info.Questions = len(questions)
		}
		if st, err := os.Stat(r.ResultsPath(id)); err == nil {
			info.HasResults = true
			info.ResultsSize = st.Size()
			info.ModifiedAt = st.ModTime()
		}
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Save validates questions and writes them as indented JSON, replacing any
// existing definition for id.
func (r *Repository) Save(id string, questions []model.Question) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	if err := Validate(questions); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(questions); err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}

	if err := os.MkdirAll(r.questionnaireDir, 0o755); err != nil {
		return fmt.Errorf("create questionnaire dir: %w", err)
	}
	if err := writeFileAtomic(r.definitionPath(id), buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	slog.Info("saved questionnaire", "id", id, "questions", len(questions))
	return nil
}

// Import stores an uploaded definition file. The id is derived from the file
// name; the content must parse and validate.
func (r *Repository) Import(filename string, data []byte) (string, int, error) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, definitionExt) {
		return "", 0, ErrNotJSON
	}
	id := SanitizeID(strings.TrimSuffix(base, ext))
	if !ValidID(id) {
		return "", 0, ErrInvalidID
	}
	questions, err := Parse(data)
	if err != nil {
		return "", 0, err
	}
	if err := r.Save(id, questions); err != nil {
		return "", 0, err
	}
	return id, len(questions), nil
}

// Holds reports whether the stored definition id is the one data decodes to.
// It is false when either side is missing or invalid.
func (r *Repository) Holds(id string, data []byte) bool {
	want, err := Parse(data)
	if err != nil {
		return false
	}
	got, err := r.Load(id)
	if err != nil {
		return false
	}
	return slices.EqualFunc(got, want, func(a, b model.Question) bool {
		return a.ID == b.ID && a.Key == b.Key && a.Label == b.Label &&
			a.Description == b.Description && a.Type == b.Type &&
			a.Required == b.Required && slices.Equal(a.Options, b.Options)
	})
}

// Parse decodes a definition file and validates it. Questions without a type
// are treated as free text.
func Parse(data []byte) ([]model.Question, error) {
	var questions []model.Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	for i := range questions {
		if questions[i].Type == "" {
			questions[i].Type = model.QuestionText
		}
	}
	if err := Validate(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers never observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
