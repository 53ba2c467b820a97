package questionnaire

import (
	"errors"
	"sort"
	"strings"

	"github.com/pavelanni/questionnaire/internal/model"
)

// ErrNoQuestions is returned when every row given to Build is blank.
var ErrNoQuestions = errors.New("no valid question defined")

// QuestionSpec is one question as entered in the questionnaire builder.
type QuestionSpec struct {
	Index       int
	Key         string
	Label       string
	Description string
	Type        model.QuestionType
	Required    bool
	Options     []string
}

// Build turns builder specs into definition questions, in ascending index
// order. Specs with neither key nor label are dropped. Options are kept only
// for choice questions and only when at least one is non-blank.
func Build(specs []QuestionSpec) ([]model.Question, error) {
	sorted := append([]QuestionSpec(nil), specs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	var questions []model.Question
	for _, s := range sorted {
		key := strings.TrimSpace(s.Key)
		label := strings.TrimSpace(s.Label)
		if key == "" && label == "" {
			continue
		}
		typ := s.Type
		if typ == "" {
			typ = model.QuestionText
		}
		q := model.Question{
			ID:          s.Index,
			Key:         key,
			Label:       label,
			Description: strings.TrimSpace(s.Description),
			Type:        typ,
			Required:    s.Required,
		}
		if typ == model.QuestionChoice {
			for _, opt := range s.Options {
				if opt = strings.TrimSpace(opt); opt != "" {
					q.Options = append(q.Options, opt)
				}
			}
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if err := Validate(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// Create builds a questionnaire from specs and saves it under id.
func (r *Repository) Create(id string, specs []QuestionSpec) ([]model.Question, error) {
	id = strings.TrimSpace(id)
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	questions, err := Build(specs)
	if err != nil {
		return nil, err
	}
	if err := r.Save(id, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// Specs converts stored questions back into builder input, e.g. to prefill
// the builder with a generated draft.
func Specs(questions []model.Question) []QuestionSpec {
	specs := make([]QuestionSpec, 0, len(questions))
	for i, q := range questions {
		specs = append(specs, QuestionSpec{
			Index:       i,
			Key:         q.Key,
			Label:       q.Label,
			Description: q.Description,
			Type:        q.Type,
			Required:    q.Required,
			Options:     q.Options,
		})
	}
	return specs
}
