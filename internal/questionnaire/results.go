package questionnaire

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/questionnaire/internal/model"
)

// DefaultDateFormat renders the date column as dd/mm/yyyy.
const DefaultDateFormat = "02/01/2006"

// Delimiter separates fields in results files.
const Delimiter = ';'

// ErrNoResults is returned when a questionnaire has no results file yet.
var ErrNoResults = errors.New("no results for questionnaire")

// Fixed leading columns of every results file.
var fixedColumns = []string{"date", "user_id", "user_name", "user_email"}

// ResultsHeader returns the header written to a fresh results file.
func ResultsHeader(questions []model.Question) []string {
	header := make([]string, 0, len(fixedColumns)+len(questions))
	header = append(header, fixedColumns...)
	for _, q := range questions {
		header = append(header, q.Key)
	}
	return header
}

// ResultsPath returns the results file of questionnaire id.
func (r *Repository) ResultsPath(id string) string {
	return filepath.Join(r.resultsDir, id+".csv")
}

func (r *Repository) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// Append adds one row for sub to the results of questionnaire id. A missing
// file is created with a header. Rows already written are never changed,
// except that keys added to the definition since the file was created widen
// the header and earlier rows get empty cells for them.
func (r *Repository) Append(id string, questions []model.Question, sub model.Submission) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	if err := os.MkdirAll(r.resultsDir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	path := r.ResultsPath(id)

	created, err := r.createResults(path, questions, sub)
	if err != nil {
		return fmt.Errorf("create results %s: %w", id, err)
	}
	if created {
		return nil
	}

	header, err := readHeader(path)
	if err != nil {
		return fmt.Errorf("read results header %s: %w", id, err)
	}
	if header == nil {
		// Empty file created outside Append.
		header = ResultsHeader(questions)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		werr := writeRecords(f, header, r.record(header, sub))
		cerr := f.Close()
		if werr != nil {
			return werr
		}
		return cerr
	}

	if missing := missingKeys(header, questions); len(missing) > 0 {
		header, err = widen(path, header, missing)
		if err != nil {
			return fmt.Errorf("widen results %s: %w", id, err)
		}
		slog.Info("widened results file", "id", id, "added", missing)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open results %s: %w", id, err)
	}
	werr := writeRecords(f, r.record(header, sub))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append results %s: %w", id, werr)
	}
	return cerr
}

// createResults writes the header and first row to a temporary file and
// links it into place. Another process therefore sees either no file or a
// complete one, never an empty file it would also give a header. It reports
// false when path already exists.
func (r *Repository) createResults(path string, questions []model.Question, sub model.Submission) (bool, error) {
	header := ResultsHeader(questions)
	var buf bytes.Buffer
	if err := writeRecords(&buf, header, r.record(header, sub)); err != nil {
		return false, err
	}
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return false, err
	}
	defer os.Remove(tmp)

	err := os.Link(tmp, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrExist):
		return false, nil
	default:
		return false, err
	}
}

// record lays out sub in header order. Unknown columns stay empty.
func (r *Repository) record(header []string, sub model.Submission) []string {
	rec := make([]string, len(header))
	for i, col := range header {
		switch col {
		case "date":
			rec[i] = sub.SubmittedAt.Format(r.dateFormat)
		case "user_id":
			rec[i] = strconv.FormatInt(sub.UserID, 10)
		case "user_name":
			rec[i] = sub.UserName
		case "user_email":
			rec[i] = sub.UserEmail
		default:
			rec[i] = sub.Answers[col]
		}
	}
	return rec
}

func missingKeys(header []string, questions []model.Question) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, q := range questions {
		if !have[q.Key] {
			missing = append(missing, q.Key)
		}
	}
	return missing
}

func newWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = Delimiter
	return cw
}

func newReader(rd io.Reader) *csv.Reader {
	cr := csv.NewReader(rd)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

func writeRecords(w io.Writer, records ...[]string) error {
	cw := newWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

// readHeader returns the first record of path, or nil for an empty file.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	header, err := newReader(f).Read()
	if err == io.EOF {
		return nil, nil
	}
	return header, err
}

// widen rewrites path with extra columns appended to the header and every
// existing row padded with empty cells.
func widen(path string, header, extra []string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records, err := newReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	newHeader := append(append([]string{}, header...), extra...)
	records[0] = newHeader
	for i := 1; i < len(records); i++ {
		for len(records[i]) < len(newHeader) {
			records[i] = append(records[i], "")
		}
	}
	var buf bytes.Buffer
	if err := writeRecords(&buf, records...); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return nil, err
	}
	return newHeader, nil
}

// ReadResults parses the results file of questionnaire id.
func (r *Repository) ReadResults(id string) (*model.Results, error) {
	if !ValidID(id) {
		return nil, ErrNoResults
	}
	path := r.ResultsPath(id)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoResults
	}
	if err != nil {
		return nil, fmt.Errorf("open results %s: %w", id, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	records, err := newReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse results %s: %w", id, err)
	}
	res := &model.Results{ModifiedAt: st.ModTime()}
	if len(records) == 0 {
		return res, nil
	}
	res.Header = records[0]
	for _, rec := range records[1:] {
		row := make(map[string]string, len(res.Header))
		for i, col := range res.Header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// OpenResults opens the results file for streaming to a client.
func (r *Repository) OpenResults(id string) (*os.File, error) {
	if !ValidID(id) {
		return nil, ErrNoResults
	}
	f, err := os.Open(r.ResultsPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoResults
	}
	return f, err
}
