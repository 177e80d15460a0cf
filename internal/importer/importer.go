// Package importer turns an uploaded CSV question bank into question rows.
//
// The expected header is
//
//	question_text,option_a,option_b,option_c,option_d,option_e,correct_answer,explanation,difficulty,qtype,image_url
//
// Only question_text and correct_answer are required. Column order is free.
package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pavelanni/exampractice/internal/answer"
	"github.com/pavelanni/exampractice/internal/model"
)

var (
	// ErrForbidden is returned when the caller may not import questions.
	ErrForbidden = errors.New("importing questions requires the teacher or admin role")
	// ErrNoSubject is returned when no target subject was chosen.
	ErrNoSubject = errors.New("a subject is required")
	// ErrEmpty is returned when the file has no data rows.
	ErrEmpty = errors.New("CSV has no data rows")
)

// RequiredColumns must be present in the header row.
var RequiredColumns = []string{"question_text", "correct_answer"}

// Columns lists every column the importer reads.
var Columns = []string{
	"question_text", "option_a", "option_b", "option_c", "option_d", "option_e",
	"correct_answer", "explanation", "difficulty", "qtype", "image_url",
}

// ParseError reports malformed CSV.
type ParseError struct {
	Row int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("CSV parse error (row %d): %s", e.Row, e.Msg)
}

// MissingColumnsError names the required columns absent from the header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return "CSV is missing required columns: " + strings.Join(e.Columns, ", ")
}

// ValidationError reports rows without question text or correct answer.
// FirstRow is the file line of the first offender, counting the header as line 1.
type ValidationError struct {
	BadRows  int
	FirstRow int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("CSV has %d rows missing question_text or correct_answer (first at row %d, counting the header)",
		e.BadRows, e.FirstRow)
}

// Backend persists imported questions.
type Backend interface {
	// InsertQuestions stores every question or none of them.
	InsertQuestions(ctx context.Context, questions []model.Question, imp model.QuestionImport) error
	ImportExists(ctx context.Context, hash, subjectID string) (bool, error)
}

// Request is one CSV import.
type Request struct {
	Data      []byte
	Filename  string
	SubjectID string
	TopicID   string
	Role      model.UserRole
}

// Result summarizes a successful import.
type Result struct {
	Inserted  int  `json:"inserted"`
	Duplicate bool `json:"duplicate"`
}

// Import validates the file and bulk-inserts its rows. Nothing is written
// unless every row passes validation.
func Import(ctx context.Context, b Backend, req Request) (Result, error) {
	if !req.Role.CanManageContent() {
		return Result{}, ErrForbidden
	}
	if req.SubjectID == "" {
		return Result{}, ErrNoSubject
	}

	header, rows, err := Parse(req.Data)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{}, ErrEmpty
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return Result{}, &MissingColumnsError{Columns: missing}
	}

	questions := make([]model.Question, len(rows))
	var bad, first int
	for i, row := range rows {
		questions[i] = mapRow(header, row, req.SubjectID, req.TopicID)
		if questions[i].Text == "" || questions[i].CorrectAnswer == "" {
			if bad == 0 {
				first = i + 2
			}
			bad++
		}
	}
	if bad > 0 {
		return Result{}, &ValidationError{BadRows: bad, FirstRow: first}
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])
	dup, err := b.ImportExists(ctx, hash, req.SubjectID)
	if err != nil {
		return Result{}, fmt.Errorf("check import history: %w", err)
	}
	if dup {
		slog.Warn("importing a file that was already imported into this subject",
			"filename", req.Filename, "subject_id", req.SubjectID)
	}

	imp := model.QuestionImport{
		Hash:      hash,
		Filename:  req.Filename,
		SubjectID: req.SubjectID,
		TopicID:   optional(req.TopicID),
	}
	if err := b.InsertQuestions(ctx, questions, imp); err != nil {
		return Result{}, fmt.Errorf("insert questions: %w", err)
	}

	slog.Info("imported questions", "filename", req.Filename, "subject_id", req.SubjectID, "count", len(questions))
	return Result{Inserted: len(questions), Duplicate: dup}, nil
}

// Parse reads CSV data into a trimmed header and trimmed data rows. The
// delimiter (comma, semicolon or tab) is sniffed from the header line.
func Parse(data []byte) (map[string]int, [][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, nil, &ParseError{Row: pe.Line, Msg: pe.Err.Error()}
			}
			return nil, nil, &ParseError{Msg: err.Error()}
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	header := make(map[string]int)
	for i, name := range records[0] {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, seen := header[name]; !seen {
			header[name] = i
		}
	}

	rows := records[1:]
	for _, row := range rows {
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
	}
	return header, rows, nil
}

func sniffDelimiter(data []byte) rune {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	best, bestCount := ',', bytes.Count(line, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func missingColumns(header map[string]int) []string {
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := header[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func mapRow(header map[string]int, row []string, subjectID, topicID string) model.Question {
	field := func(name string) string {
		i, ok := header[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
	return model.Question{
		SubjectID:     subjectID,
		TopicID:       optional(topicID),
		Text:          field("question_text"),
		OptionA:       optional(field("option_a")),
		OptionB:       optional(field("option_b")),
		OptionC:       optional(field("option_c")),
		OptionD:       optional(field("option_d")),
		OptionE:       optional(field("option_e")),
		CorrectAnswer: answer.Canonical(field("correct_answer")),
		Explanation:   optional(field("explanation")),
		Difficulty:    answer.Difficulty(field("difficulty")),
		QType:         answer.QuestionType(field("qtype")),
		ImageURL:      optional(field("image_url")),
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
