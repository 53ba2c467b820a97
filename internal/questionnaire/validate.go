package questionnaire

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/questionnaire/internal/model"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func questionValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Keys that would collide with the fixed results columns or with form fields
// the answer form posts next to the questions.
var reservedKeys = map[string]bool{
	"date": true, "user_id": true, "user_name": true, "user_email": true,
	"csrf_token": true,
}

// IsReservedKey reports whether key cannot be used as a question key.
func IsReservedKey(key string) bool {
	return reservedKeys[key]
}

// Validate checks every question and the uniqueness of keys.
func Validate(questions []model.Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidDefinition)
	}
	v := questionValidator()
	seen := make(map[string]bool, len(questions))
	for i, q := range questions {
		if err := v.Struct(q); err != nil {
			return fmt.Errorf("%w: question %d: %v", ErrInvalidDefinition, i+1, err)
		}
		if reservedKeys[q.Key] {
			return fmt.Errorf("%w: key %q is reserved", ErrInvalidDefinition, q.Key)
		}
		if seen[q.Key] {
			return fmt.Errorf("%w: duplicate key %q", ErrInvalidDefinition, q.Key)
		}
		seen[q.Key] = true
	}
	return nil
}
