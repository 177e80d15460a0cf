package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level (distinct from ChatRole which is chat message roles).
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// CanManageContent reports whether the role may import questions and manage materials.
func (r UserRole) CanManageContent() bool {
	return r == UserRoleTeacher || r == UserRoleAdmin
}

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ExamStatus represents the status of an exam. It only moves forward.
type ExamStatus string

const (
	StatusInProgress ExamStatus = "in_progress"
	StatusSubmitted  ExamStatus = "submitted"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionType tells whether one or several options may be selected.
type QuestionType string

const (
	QTypeSingle    QuestionType = "single"
	QTypeMulti     QuestionType = "multi"
	QTypeTrueFalse QuestionType = "truefalse"
)

// Subject is the top level of the question and material catalogue.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Topic belongs to exactly one subject.
type Topic struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
}

// Question is a multiple-choice question from the bank.
// CorrectAnswer is always stored in canonical form ("A" or "A,C").
type Question struct {
	ID            string       `json:"id"`
	SubjectID     string       `json:"subject_id"`
	TopicID       *string      `json:"topic_id,omitempty"`
	Text          string       `json:"question_text"`
	OptionA       *string      `json:"option_a,omitempty"`
	OptionB       *string      `json:"option_b,omitempty"`
	OptionC       *string      `json:"option_c,omitempty"`
	OptionD       *string      `json:"option_d,omitempty"`
	OptionE       *string      `json:"option_e,omitempty"`
	CorrectAnswer string       `json:"correct_answer,omitempty"`
	Explanation   *string      `json:"explanation,omitempty"`
	Difficulty    Difficulty   `json:"difficulty"`
	QType         QuestionType `json:"qtype"`
	ImageURL      *string      `json:"image_url,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Option is one lettered choice of a question.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Options returns the non-empty options of the question in letter order.
func (q Question) Options() []Option {
	all := []struct {
		key  string
		text *string
	}{
		{"A", q.OptionA}, {"B", q.OptionB}, {"C", q.OptionC}, {"D", q.OptionD}, {"E", q.OptionE},
	}
	var opts []Option
	for _, o := range all {
		if o.text != nil && *o.text != "" {
			opts = append(opts, Option{Key: o.key, Text: *o.text})
		}
	}
	return opts
}

// Exam is one timed practice test bound to one user.
// StartedAt is authoritative for the countdown.
type Exam struct {
	ID              string     `json:"id"`
	UserID          int64      `json:"user_id"`
	SubjectID       string     `json:"subject_id"`
	TopicID         *string    `json:"topic_id,omitempty"`
	TotalQuestions  int        `json:"total_questions"`
	DurationSeconds int        `json:"duration_seconds"`
	Status          ExamStatus `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
}

// ExamQuestion fixes the position of a question inside an exam.
type ExamQuestion struct {
	ExamID     string `json:"exam_id"`
	QuestionID string `json:"question_id"`
	SortOrder  int    `json:"sort_order"`
}

// Answer is keyed by (exam, question). SelectedAnswer is nil for "no answer".
type Answer struct {
	ExamID         string  `json:"exam_id"`
	QuestionID     string  `json:"question_id"`
	SelectedAnswer *string `json:"selected_answer"`
	IsCorrect      *bool   `json:"is_correct,omitempty"`
}

// MaterialType is the kind of learning material.
type MaterialType string

const (
	MaterialLecture  MaterialType = "lecture"
	MaterialTextbook MaterialType = "textbook"
	MaterialImage    MaterialType = "image"
	MaterialModel3D  MaterialType = "model3d"
	MaterialLink     MaterialType = "link"
)

// Material is a learning resource referenced by URL.
type Material struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description,omitempty"`
	Type        MaterialType `json:"type"`
	URL         string       `json:"url"`
	SubjectID   *string      `json:"subject_id,omitempty"`
	TopicID     *string      `json:"topic_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// MaterialFilter narrows a material listing. Empty fields mean no filtering.
type MaterialFilter struct {
	SubjectID string
	TopicID   string
	Query     string
}

// QuestionImport records one successful CSV import.
type QuestionImport struct {
	ID         int64     `json:"id"`
	Hash       string    `json:"hash"`
	Filename   string    `json:"filename"`
	SubjectID  string    `json:"subject_id"`
	TopicID    *string   `json:"topic_id,omitempty"`
	Rows       int       `json:"rows"`
	ImportedAt time.Time `json:"imported_at"`
}

// ChatRole is the author of a tutoring chat turn.
type ChatRole string

const (
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// ChatTurn is one message of a tutoring conversation.
type ChatTurn struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/vi")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	AIMaxTurns    int    // Trailing conversation turns forwarded to the tutor
}

// ExamSnapshot is everything needed to resume an exam.
type ExamSnapshot struct {
	Exam      Exam              `json:"exam"`
	Questions []Question        `json:"questions"`
	Answers   map[string]string `json:"answers"`
	TimeLeft  int               `json:"time_left"`
}

// ResultItem is one row of the corrected answer sheet.
type ResultItem struct {
	Position       int      `json:"position"`
	Question       Question `json:"question"`
	SelectedAnswer string   `json:"selected_answer"`
	CorrectAnswer  string   `json:"correct_answer"`
	StoredCorrect  bool     `json:"stored_correct"`
	Correct        bool     `json:"correct"`
}

// ExamResult is the corrected answer sheet for an exam.
type ExamResult struct {
	Exam      Exam         `json:"exam"`
	Submitted bool         `json:"submitted"`
	Items     []ResultItem `json:"items"`
	Correct   int          `json:"correct"`
	Total     int          `json:"total"`
}
