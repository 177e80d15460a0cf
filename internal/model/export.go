package model

import "time"

// ResultsExport is the top-level JSON structure for exam result export.
type ResultsExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Subject     string          `json:"subject,omitempty"`
	Results     []StudentResult `json:"results"`
}

// StudentResult holds one submitted exam for export.
type StudentResult struct {
	ExamID          string           `json:"exam_id"`
	Username        string           `json:"username"`
	DisplayName     string           `json:"display_name"`
	AttemptNumber   int              `json:"attempt_number"`
	SubjectID       string           `json:"subject_id"`
	TopicID         *string          `json:"topic_id,omitempty"`
	DurationSeconds int              `json:"duration_seconds"`
	StartedAt       time.Time        `json:"started_at"`
	SubmittedAt     *time.Time       `json:"submitted_at,omitempty"`
	Questions       []QuestionResult `json:"questions"`
	Correct         int              `json:"correct"`
	Total           int              `json:"total"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	Text           string       `json:"text"`
	Difficulty     Difficulty   `json:"difficulty"`
	QType          QuestionType `json:"qtype"`
	CorrectAnswer  string       `json:"correct_answer"`
	SelectedAnswer string       `json:"selected_answer"`
	Correct        bool         `json:"correct"`
}
