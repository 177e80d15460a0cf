// Package exam creates exams, keeps their answer sheets and scores them.
//
// Service is the server side: it samples questions, persists answers and
// performs the one-way in_progress to submitted transition. Session is the
// client side state machine that drives one sitting of an exam against a
// Backend, with a countdown and debounced autosave.
package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/exampractice/internal/answer"
	"github.com/pavelanni/exampractice/internal/model"
	"github.com/pavelanni/exampractice/internal/store"
)

var (
	// ErrNotFound is returned when the exam does not exist.
	ErrNotFound = errors.New("exam not found")
	// ErrExamClosed is returned when answers are saved into a submitted exam.
	ErrExamClosed = errors.New("exam has already been submitted")
	// ErrInsufficientPool is wrapped by PoolError.
	ErrInsufficientPool = errors.New("insufficient question pool")
	// ErrInvalidRequest wraps create-request validation failures.
	ErrInvalidRequest = errors.New("invalid exam request")
	// ErrUnknownQuestion is returned for answers to questions outside the exam.
	ErrUnknownQuestion = errors.New("question is not part of this exam")
)

// PoolError reports that fewer questions match than were requested.
type PoolError struct {
	Available int
	Requested int
}

func (e *PoolError) Error() string {
	return fmt.Sprintf("insufficient question pool: %d available, %d requested", e.Available, e.Requested)
}

func (e *PoolError) Unwrap() error { return ErrInsufficientPool }

// CreateRequest describes a new exam.
type CreateRequest struct {
	SubjectID       string `json:"subject_id" validate:"required,uuid"`
	TopicID         string `json:"topic_id" validate:"omitempty,uuid"`
	TotalQuestions  int    `json:"total_questions" validate:"required,min=1,max=500"`
	DurationSeconds int    `json:"duration_seconds" validate:"required,min=1,max=86400"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Service implements the server-side exam operations on top of the store.
type Service struct {
	store   *store.Store
	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// NewService returns a Service using the wall clock and an unbiased shuffle.
func NewService(st *store.Store) *Service {
	return &Service{
		store:   st,
		now:     time.Now,
		shuffle: rand.Shuffle,
	}
}

// Create samples req.TotalQuestions questions uniformly at random from the
// subject (and topic, if given) and creates an in-progress exam for userID.
// No exam is created when the pool is too small.
func (s *Service) Create(ctx context.Context, userID int64, req CreateRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	ids, err := s.store.ListQuestionIDs(ctx, req.SubjectID, req.TopicID)
	if err != nil {
		return "", fmt.Errorf("list questions: %w", err)
	}
	if len(ids) < req.TotalQuestions {
		return "", &PoolError{Available: len(ids), Requested: req.TotalQuestions}
	}

	s.shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	ids = ids[:req.TotalQuestions]

	e := model.Exam{
		UserID:          userID,
		SubjectID:       req.SubjectID,
		TotalQuestions:  req.TotalQuestions,
		DurationSeconds: req.DurationSeconds,
		StartedAt:       s.now().UTC(),
	}
	if req.TopicID != "" {
		e.TopicID = &req.TopicID
	}
	id, err := s.store.CreateExam(ctx, e, ids)
	if err != nil {
		return "", fmt.Errorf("create exam: %w", err)
	}

	slog.Info("exam created", "exam_id", id, "user_id", userID, "subject_id", req.SubjectID,
		"questions", req.TotalQuestions, "duration_seconds", req.DurationSeconds)
	return id, nil
}

// Get returns the exam row.
func (s *Service) Get(ctx context.Context, examID string) (model.Exam, error) {
	e, err := s.store.GetExam(ctx, examID)
	if errors.Is(err, store.ErrNotFound) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("get exam: %w", err)
	}
	return e, nil
}

// Load returns everything needed to resume an exam: its questions in sort
// order, the saved answers and the remaining time.
func (s *Service) Load(ctx context.Context, examID string) (model.ExamSnapshot, error) {
	e, err := s.Get(ctx, examID)
	if err != nil {
		return model.ExamSnapshot{}, err
	}
	questions, err := s.store.ListExamQuestions(ctx, examID)
	if err != nil {
		return model.ExamSnapshot{}, fmt.Errorf("list exam questions: %w", err)
	}
	saved, err := s.store.ListAnswers(ctx, examID)
	if err != nil {
		return model.ExamSnapshot{}, fmt.Errorf("list answers: %w", err)
	}

	answers := make(map[string]string, len(saved))
	for _, a := range saved {
		if a.SelectedAnswer == nil {
			continue
		}
		if sel := answer.Canonical(*a.SelectedAnswer); sel != "" {
			answers[a.QuestionID] = sel
		}
	}

	snap := model.ExamSnapshot{Exam: e, Questions: questions, Answers: answers}
	if e.Status == model.StatusInProgress {
		snap.TimeLeft = RemainingSeconds(e.DurationSeconds, e.StartedAt, s.now())
		// Scoring happens on submit; the key stays server-side until then.
		for i := range snap.Questions {
			snap.Questions[i].CorrectAnswer = ""
			snap.Questions[i].Explanation = nil
		}
	}
	return snap, nil
}

// SaveAnswers upserts every non-empty answer in the map. Empty answers are
// skipped, so clearing a selection only takes effect at submit.
func (s *Service) SaveAnswers(ctx context.Context, examID string, answers map[string]string) error {
	e, err := s.Get(ctx, examID)
	if err != nil {
		return err
	}
	if e.Status != model.StatusInProgress {
		return ErrExamClosed
	}
	questions, err := s.store.ListExamQuestions(ctx, examID)
	if err != nil {
		return fmt.Errorf("list exam questions: %w", err)
	}
	inExam := make(map[string]bool, len(questions))
	for _, q := range questions {
		inExam[q.ID] = true
	}

	var rows []model.Answer
	for qID, sel := range answers {
		if !inExam[qID] {
			return fmt.Errorf("%w: %s", ErrUnknownQuestion, qID)
		}
		sel = answer.Canonical(sel)
		if sel == "" {
			continue
		}
		rows = append(rows, model.Answer{ExamID: examID, QuestionID: qID, SelectedAnswer: &sel})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.store.UpsertAnswers(ctx, rows); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	slog.Debug("answers saved", "exam_id", examID, "count", len(rows))
	return nil
}

// Submit scores every question of the exam and moves it to submitted.
// Answers given here override saved ones; questions missing from both are
// recorded as unanswered. Submitting an already submitted exam writes
// nothing and returns the stored result.
func (s *Service) Submit(ctx context.Context, examID string, answers map[string]string) (model.ExamResult, error) {
	e, err := s.Get(ctx, examID)
	if err != nil {
		return model.ExamResult{}, err
	}
	if e.Status == model.StatusSubmitted {
		return s.Result(ctx, examID)
	}

	questions, err := s.store.ListExamQuestions(ctx, examID)
	if err != nil {
		return model.ExamResult{}, fmt.Errorf("list exam questions: %w", err)
	}
	saved, err := s.store.ListAnswers(ctx, examID)
	if err != nil {
		return model.ExamResult{}, fmt.Errorf("list answers: %w", err)
	}
	merged := make(map[string]string, len(questions))
	for _, a := range saved {
		if a.SelectedAnswer != nil {
			merged[a.QuestionID] = *a.SelectedAnswer
		}
	}
	maps.Copy(merged, answers)

	rows := make([]model.Answer, len(questions))
	for i, q := range questions {
		row := model.Answer{ExamID: examID, QuestionID: q.ID}
		sel := answer.Canonical(merged[q.ID])
		if sel != "" {
			row.SelectedAnswer = &sel
		}
		correct := answer.Matches(sel, q.CorrectAnswer)
		row.IsCorrect = &correct
		rows[i] = row
	}

	ok, err := s.store.SubmitExam(ctx, examID, rows, s.now().UTC())
	if err != nil {
		return model.ExamResult{}, fmt.Errorf("submit exam: %w", err)
	}
	if ok {
		slog.Info("exam submitted", "exam_id", examID, "user_id", e.UserID)
	} else {
		slog.Debug("exam was already submitted", "exam_id", examID)
	}
	return s.Result(ctx, examID)
}

// Result returns the corrected answer sheet. An exam without a finalized
// answer sheet reports Submitted false and no items.
func (s *Service) Result(ctx context.Context, examID string) (model.ExamResult, error) {
	e, err := s.Get(ctx, examID)
	if err != nil {
		return model.ExamResult{}, err
	}
	res := model.ExamResult{Exam: e}
	if e.Status != model.StatusSubmitted {
		return res, nil
	}

	rows, err := s.store.ListAnswerRows(ctx, examID)
	if err != nil {
		return model.ExamResult{}, fmt.Errorf("list answer rows: %w", err)
	}
	if len(rows) == 0 {
		return res, nil
	}

	res.Submitted = true
	res.Total = len(rows)
	res.Items = make([]model.ResultItem, len(rows))
	for i, r := range rows {
		item := model.ResultItem{
			Position:      r.Position,
			Question:      r.Question,
			CorrectAnswer: answer.Canonical(r.Question.CorrectAnswer),
		}
		if item.Position == 0 {
			item.Position = i + 1
		}
		if r.Answer.SelectedAnswer != nil {
			item.SelectedAnswer = answer.Canonical(*r.Answer.SelectedAnswer)
		}
		item.StoredCorrect = r.Answer.IsCorrect != nil && *r.Answer.IsCorrect
		item.Correct = answer.Matches(item.SelectedAnswer, item.CorrectAnswer)
		if item.StoredCorrect {
			res.Correct++
		}
		res.Items[i] = item
	}
	return res, nil
}

// RemainingSeconds is duration minus the whole seconds elapsed since
// startedAt, clamped to zero. A clock behind startedAt counts as no time elapsed.
func RemainingSeconds(duration int, startedAt, now time.Time) int {
	elapsed := max(0, int(now.Sub(startedAt)/time.Second))
	return max(0, duration-elapsed)
}
