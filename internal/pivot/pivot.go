package pivot

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pavelanni/questionnaire/internal/model"

	_ "modernc.org/sqlite"
)

// Delimiter separates CSV fields in every export.
const Delimiter = ';'

// ErrNotFound is returned when a questionnaire has no questions.
var ErrNotFound = errors.New("questionnaire not found")

// Exporter reads the relational questionnaire schema. It never writes.
type Exporter struct {
	db *sql.DB
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Exporter {
	return &Exporter{db: db}
}

// Open opens the SQLite database at path. With readOnly the file must exist
// and is never modified.
func Open(path string, readOnly bool) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)"
	if readOnly {
		dsn = "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Questions returns the questions of a questionnaire in id order.
func (e *Exporter) Questions(ctx context.Context, questionnaireID int64) ([]model.PivotQuestion, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, questionnaire_id, key FROM question WHERE questionnaire_id = ? ORDER BY id ASC`,
		questionnaireID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.PivotQuestion
	for rows.Next() {
		var q model.PivotQuestion
		if err := rows.Scan(&q.ID, &q.QuestionnaireID, &q.Key); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Rows returns every submission joined to its answers. Submissions without
// answers yield one row with a nil key.
func (e *Exporter) Rows(ctx context.Context, questionnaireID int64) ([]model.AnswerRow, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT
			s.id,
			s.submitted_at,
			q.key,
			a.value
		FROM submission s
		LEFT JOIN answer a ON a.submission_id = s.id
		LEFT JOIN question q ON q.id = a.question_id
		WHERE s.questionnaire_id = ?
		ORDER BY s.id ASC`,
		questionnaireID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AnswerRow
	for rows.Next() {
		var (
			r           model.AnswerRow
			submittedAt sql.NullString
			key, value  sql.NullString
		)
		if err := rows.Scan(&r.SubmissionID, &submittedAt, &key, &value); err != nil {
			return nil, err
		}
		r.SubmittedAt = submittedAt.String
		if key.Valid {
			r.Key = &key.String
		}
		if value.Valid {
			r.Value = &value.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Table is a pivoted export: one row per submission, one column per key.
type Table struct {
	Keys []string
	Rows []model.PivotRow
}

// Pivot groups answer rows by submission. Every known key starts as "" and
// is overwritten by the answers present; answers for unknown keys are dropped.
func Pivot(questions []model.PivotQuestion, rows []model.AnswerRow) *Table {
	t := &Table{Keys: make([]string, 0, len(questions))}
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		if known[q.Key] {
			continue
		}
		known[q.Key] = true
		t.Keys = append(t.Keys, q.Key)
	}

	index := make(map[int64]int)
	for _, r := range rows {
		i, ok := index[r.SubmissionID]
		if !ok {
			answers := make(map[string]string, len(t.Keys))
			for _, k := range t.Keys {
				answers[k] = ""
			}
			t.Rows = append(t.Rows, model.PivotRow{
				SubmissionID: r.SubmissionID,
				SubmittedAt:  r.SubmittedAt,
				Answers:      answers,
			})
			i = len(t.Rows) - 1
			index[r.SubmissionID] = i
		}
		if r.Key == nil || !known[*r.Key] {
			continue
		}
		value := ""
		if r.Value != nil {
			value = *r.Value
		}
		t.Rows[i].Answers[*r.Key] = value
	}
	return t
}

// Export builds the pivot table for a questionnaire.
func (e *Exporter) Export(ctx context.Context, questionnaireID int64) (*Table, error) {
	questions, err := e.Questions(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNotFound
	}
	rows, err := e.Rows(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return Pivot(questions, rows), nil
}

// Header returns the column names in output order.
func (t *Table) Header() []string {
	return append([]string{"submission_id", "submitted_at"}, t.Keys...)
}

// Record returns row i in header order.
func (t *Table) Record(i int) []string {
	r := t.Rows[i]
	rec := make([]string, 0, len(t.Keys)+2)
	rec = append(rec, strconv.FormatInt(r.SubmissionID, 10), r.SubmittedAt)
	for _, k := range t.Keys {
		rec = append(rec, r.Answers[k])
	}
	return rec
}

// WriteCSV writes the header and one record per submission.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	if err := cw.Write(t.Header()); err != nil {
		return err
	}
	for i := range t.Rows {
		if err := cw.Write(t.Record(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
