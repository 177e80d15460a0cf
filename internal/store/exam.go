package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/exampractice/internal/model"
)

const examColumns = `id, user_id, subject_id, topic_id, total_questions, duration_seconds, status, started_at, submitted_at`

func scanExam(row scanner, e *model.Exam) error {
	return row.Scan(&e.ID, &e.UserID, &e.SubjectID, &e.TopicID, &e.TotalQuestions,
		&e.DurationSeconds, &e.Status, &e.StartedAt, &e.SubmittedAt)
}

// CreateExam creates an in-progress exam and its ordered question list in one
// transaction. Sort order is 1-based and follows questionIDs.
func (s *Store) CreateExam(ctx context.Context, e model.Exam, questionIDs []string) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exams (id, user_id, subject_id, topic_id, total_questions, duration_seconds, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.SubjectID, e.TopicID, e.TotalQuestions, e.DurationSeconds, model.StatusInProgress, e.StartedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert exam: %w", err)
	}

	for i, qID := range questionIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exam_questions (exam_id, question_id, sort_order) VALUES (?, ?, ?)`,
			e.ID, qID, i+1,
		)
		if err != nil {
			return "", fmt.Errorf("insert exam question: %w", err)
		}
	}

	return e.ID, tx.Commit()
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(ctx context.Context, id string) (model.Exam, error) {
	var e model.Exam
	err := scanExam(s.db.QueryRowContext(ctx, `SELECT `+examColumns+` FROM exams WHERE id = ?`, id), &e)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// ListExams returns exams newest first. userID 0 lists every user's exams;
// an empty status lists every status.
func (s *Store) ListExams(ctx context.Context, userID int64, status model.ExamStatus) ([]model.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE 1=1`
	var args []any
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY started_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListExamQuestions returns the questions of an exam in sort order.
func (s *Store) ListExamQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, q.subject_id, q.topic_id, q.question_text, q.option_a, q.option_b, q.option_c, q.option_d, q.option_e,
		        q.correct_answer, q.explanation, q.difficulty, q.qtype, q.image_url, q.created_at
		 FROM exam_questions eq JOIN questions q ON q.id = eq.question_id
		 WHERE eq.exam_id = ? ORDER BY eq.sort_order`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListAnswers returns every stored answer row of an exam.
func (s *Store) ListAnswers(ctx context.Context, examID string) ([]model.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT exam_id, question_id, selected_answer, is_correct FROM answers WHERE exam_id = ? ORDER BY question_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ExamID, &a.QuestionID, &a.SelectedAnswer, &a.IsCorrect); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// UpsertAnswers inserts or overwrites answers keyed by (exam, question).
// Only the selected answer is touched; correctness is written at submit.
func (s *Store) UpsertAnswers(ctx context.Context, answers []model.Answer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := upsertAnswers(ctx, tx, answers, false); err != nil {
		return err
	}
	return tx.Commit()
}

// SubmitExam moves an in-progress exam to submitted and writes the final answer
// set in one transaction. It returns false, without writing anything, when the
// exam was not in progress.
func (s *Store) SubmitExam(ctx context.Context, examID string, answers []model.Answer, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE exams SET status = ?, submitted_at = ? WHERE id = ? AND status = ?`,
		model.StatusSubmitted, at, examID, model.StatusInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("update exam status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	if err := upsertAnswers(ctx, tx, answers, true); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func upsertAnswers(ctx context.Context, tx *sql.Tx, answers []model.Answer, withCorrectness bool) error {
	query := `INSERT INTO answers (exam_id, question_id, selected_answer, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(exam_id, question_id) DO UPDATE SET selected_answer = excluded.selected_answer, updated_at = excluded.updated_at`
	if withCorrectness {
		query = `INSERT INTO answers (exam_id, question_id, selected_answer, updated_at, is_correct)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(exam_id, question_id) DO UPDATE SET selected_answer = excluded.selected_answer,
		   updated_at = excluded.updated_at, is_correct = excluded.is_correct`
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, a := range answers {
		args := []any{a.ExamID, a.QuestionID, a.SelectedAnswer, now}
		if withCorrectness {
			args = append(args, a.IsCorrect)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert answer %s: %w", a.QuestionID, err)
		}
	}
	return nil
}

// AnswerRow is a stored answer joined with its question and exam position.
type AnswerRow struct {
	Position int
	Answer   model.Answer
	Question model.Question
}

// ListAnswerRows joins stored answers with their questions in exam sort order.
func (s *Store) ListAnswerRows(ctx context.Context, examID string) ([]AnswerRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(eq.sort_order, 0), a.exam_id, a.question_id, a.selected_answer, a.is_correct,
		        q.id, q.subject_id, q.topic_id, q.question_text, q.option_a, q.option_b, q.option_c, q.option_d, q.option_e,
		        q.correct_answer, q.explanation, q.difficulty, q.qtype, q.image_url, q.created_at
		 FROM answers a
		 JOIN questions q ON q.id = a.question_id
		 LEFT JOIN exam_questions eq ON eq.exam_id = a.exam_id AND eq.question_id = a.question_id
		 WHERE a.exam_id = ?
		 ORDER BY eq.sort_order, a.question_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AnswerRow
	for rows.Next() {
		var r AnswerRow
		q := &r.Question
		err := rows.Scan(&r.Position, &r.Answer.ExamID, &r.Answer.QuestionID, &r.Answer.SelectedAnswer, &r.Answer.IsCorrect,
			&q.ID, &q.SubjectID, &q.TopicID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.OptionE,
			&q.CorrectAnswer, &q.Explanation, &q.Difficulty, &q.QType, &q.ImageURL, &q.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
