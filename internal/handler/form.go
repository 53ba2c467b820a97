package handler

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/questionnaire"
)

// Builder form fields are suffixed with the question index:
// key_<i>, label_<i>, desc_<i>, type_<i>, required_<i> and option_<i>_<j>.
var builderFields = []string{"key_", "label_", "desc_", "type_", "required_"}

// parseQuestionForm groups the builder fields by question index. Options are
// ordered by their numeric suffix.
func parseQuestionForm(form url.Values) []questionnaire.QuestionSpec {
	type option struct {
		pos   int
		value string
	}
	seen := make(map[int]bool)
	options := make(map[int][]option)

	for name := range form {
		if rest, ok := strings.CutPrefix(name, "option_"); ok {
			is, js, ok := strings.Cut(rest, "_")
			if !ok {
				continue
			}
			i, ok1 := fieldIndex(is)
			j, ok2 := fieldIndex(js)
			if !ok1 || !ok2 {
				continue
			}
			seen[i] = true
			options[i] = append(options[i], option{j, form.Get(name)})
			continue
		}
		for _, prefix := range builderFields {
			if rest, ok := strings.CutPrefix(name, prefix); ok {
				if i, ok := fieldIndex(rest); ok {
					seen[i] = true
				}
				break
			}
		}
	}

	indexes := make([]int, 0, len(seen))
	for i := range seen {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	specs := make([]questionnaire.QuestionSpec, 0, len(indexes))
	for _, i := range indexes {
		suffix := strconv.Itoa(i)
		opts := options[i]
		sort.Slice(opts, func(a, b int) bool { return opts[a].pos < opts[b].pos })
		spec := questionnaire.QuestionSpec{
			Index:       i,
			Key:         form.Get("key_" + suffix),
			Label:       form.Get("label_" + suffix),
			Description: form.Get("desc_" + suffix),
			Type:        model.QuestionType(strings.TrimSpace(form.Get("type_" + suffix))),
			Required:    form.Get("required_"+suffix) != "",
		}
		for _, o := range opts {
			spec.Options = append(spec.Options, o.value)
		}
		specs = append(specs, spec)
	}
	return specs
}

// fieldIndex parses a field suffix. Only the canonical spelling counts, so
// "01" or "+1" never alias the fields of question 1.
func fieldIndex(s string) (int, bool) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || strconv.Itoa(i) != s {
		return 0, false
	}
	return i, true
}
