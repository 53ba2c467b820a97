package pivot

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates the questionnaire tables the exporter reads.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS questionnaire (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS question (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    questionnaire_id INTEGER NOT NULL REFERENCES questionnaire(id),
    key TEXT NOT NULL,
    label TEXT NOT NULL DEFAULT '',
    UNIQUE (questionnaire_id, key)
);

CREATE TABLE IF NOT EXISTS submission (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    questionnaire_id INTEGER NOT NULL REFERENCES questionnaire(id),
    submitted_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS answer (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    submission_id INTEGER NOT NULL REFERENCES submission(id),
    question_id INTEGER NOT NULL REFERENCES question(id),
    value TEXT
);

CREATE INDEX IF NOT EXISTS idx_question_questionnaire ON question(questionnaire_id);
CREATE INDEX IF NOT EXISTS idx_submission_questionnaire ON submission(questionnaire_id);
CREATE INDEX IF NOT EXISTS idx_answer_submission ON answer(submission_id);
`
