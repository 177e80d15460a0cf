package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/pavelanni/exampractice/internal/answer"
	"github.com/pavelanni/exampractice/internal/model"
)

// ExportResults builds export-ready results of every submitted exam,
// optionally limited to one subject.
func (s *Store) ExportResults(ctx context.Context, subjectID string) ([]model.StudentResult, error) {
	exams, err := s.ListExams(ctx, 0, model.StatusSubmitted)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	// Oldest first so attempt numbers grow with time.
	slices.Reverse(exams)

	attempts := make(map[int64]int)
	users := make(map[int64]*model.User)

	var results []model.StudentResult
	for _, e := range exams {
		if subjectID != "" && e.SubjectID != subjectID {
			continue
		}
		attempts[e.UserID]++

		user, ok := users[e.UserID]
		if !ok {
			user, err = s.GetUserByID(ctx, e.UserID)
			if err != nil {
				return nil, fmt.Errorf("get user %d: %w", e.UserID, err)
			}
			users[e.UserID] = user
		}

		rows, err := s.ListAnswerRows(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("get answers of exam %s: %w", e.ID, err)
		}

		res := model.StudentResult{
			ExamID:          e.ID,
			AttemptNumber:   attempts[e.UserID],
			SubjectID:       e.SubjectID,
			TopicID:         e.TopicID,
			DurationSeconds: e.DurationSeconds,
			StartedAt:       e.StartedAt,
			SubmittedAt:     e.SubmittedAt,
			Total:           len(rows),
		}
		if user != nil {
			res.Username = user.Username
			res.DisplayName = user.DisplayName
		}
		for _, r := range rows {
			var selected string
			if r.Answer.SelectedAnswer != nil {
				selected = *r.Answer.SelectedAnswer
			}
			correct := r.Answer.IsCorrect != nil && *r.Answer.IsCorrect
			if correct {
				res.Correct++
			}
			res.Questions = append(res.Questions, model.QuestionResult{
				Text:           r.Question.Text,
				Difficulty:     r.Question.Difficulty,
				QType:          r.Question.QType,
				CorrectAnswer:  answer.Canonical(r.Question.CorrectAnswer),
				SelectedAnswer: answer.Canonical(selected),
				Correct:        correct,
			})
		}
		results = append(results, res)
	}

	return results, nil
}
