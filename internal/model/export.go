package model

import "time"

// PivotQuestion is a question row of the relational questionnaire schema.
type PivotQuestion struct {
	ID              int64
	QuestionnaireID int64
	Key             string
}

// AnswerRow is one row of the submission/answer/question join.
// Key and Value are nil when the submission has no answers.
type AnswerRow struct {
	SubmissionID int64
	SubmittedAt  string
	Key          *string
	Value        *string
}

// PivotRow is one submission with an answer for every known key.
type PivotRow struct {
	SubmissionID int64
	SubmittedAt  string
	Answers      map[string]string
}

// Results is the parsed content of a results CSV file.
type Results struct {
	Header     []string
	Rows       []map[string]string
	ModifiedAt time.Time
}
