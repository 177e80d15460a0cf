package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/exampractice/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		name TEXT NOT NULL,
		UNIQUE (subject_id, name),
		FOREIGN KEY (subject_id) REFERENCES subjects(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		topic_id TEXT,
		question_text TEXT NOT NULL,
		option_a TEXT,
		option_b TEXT,
		option_c TEXT,
		option_d TEXT,
		option_e TEXT,
		correct_answer TEXT NOT NULL,
		explanation TEXT,
		difficulty TEXT NOT NULL DEFAULT 'medium',
		qtype TEXT NOT NULL DEFAULT 'single',
		image_url TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (subject_id) REFERENCES subjects(id),
		FOREIGN KEY (topic_id) REFERENCES topics(id)
	);
	CREATE INDEX IF NOT EXISTS idx_questions_subject_topic ON questions(subject_id, topic_id);

	CREATE TABLE IF NOT EXISTS question_imports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hash TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		subject_id TEXT NOT NULL,
		topic_id TEXT,
		rows INTEGER NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		subject_id TEXT NOT NULL,
		topic_id TEXT,
		total_questions INTEGER NOT NULL,
		duration_seconds INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		submitted_at DATETIME,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		exam_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		sort_order INTEGER NOT NULL,
		PRIMARY KEY (exam_id, question_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		exam_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		selected_answer TEXT,
		is_correct INTEGER,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (exam_id, question_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS materials (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL,
		url TEXT NOT NULL,
		subject_id TEXT,
		topic_id TEXT,
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSubject stores a subject and returns its ID.
func (s *Store) CreateSubject(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO subjects (id, name) VALUES (?, ?)`, id, name)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListSubjects returns all subjects ordered by name.
func (s *Store) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []model.Subject
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// GetSubject returns a subject by ID.
func (s *Store) GetSubject(ctx context.Context, id string) (model.Subject, error) {
	var sub model.Subject
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM subjects WHERE id = ?`, id).Scan(&sub.ID, &sub.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, ErrNotFound
	}
	return sub, err
}

// CreateTopic stores a topic under a subject and returns its ID.
func (s *Store) CreateTopic(ctx context.Context, subjectID, name string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO topics (id, subject_id, name) VALUES (?, ?, ?)`, id, subjectID, name)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListTopics returns the topics of a subject ordered by name.
// An empty subjectID lists every topic.
func (s *Store) ListTopics(ctx context.Context, subjectID string) ([]model.Topic, error) {
	query := `SELECT id, subject_id, name FROM topics`
	var args []any
	if subjectID != "" {
		query += ` WHERE subject_id = ?`
		args = append(args, subjectID)
	}
	query += ` ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var topics []model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.SubjectID, &t.Name); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// GetTopic returns a topic by ID.
func (s *Store) GetTopic(ctx context.Context, id string) (model.Topic, error) {
	var t model.Topic
	err := s.db.QueryRowContext(ctx, `SELECT id, subject_id, name FROM topics WHERE id = ?`, id).
		Scan(&t.ID, &t.SubjectID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

const questionColumns = `id, subject_id, topic_id, question_text, option_a, option_b, option_c, option_d, option_e,
	correct_answer, explanation, difficulty, qtype, image_url, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner, q *model.Question) error {
	return row.Scan(&q.ID, &q.SubjectID, &q.TopicID, &q.Text,
		&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.OptionE,
		&q.CorrectAnswer, &q.Explanation, &q.Difficulty, &q.QType, &q.ImageURL, &q.CreatedAt)
}

// InsertQuestions stores all questions and the import record in one transaction.
// Either every row lands or none does. Questions without an ID get a new UUID.
func (s *Store) InsertQuestions(ctx context.Context, questions []model.Question, imp model.QuestionImport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (`+questionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.CreatedAt.IsZero() {
			q.CreatedAt = now
		}
		_, err := stmt.ExecContext(ctx, q.ID, q.SubjectID, q.TopicID, q.Text,
			q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.OptionE,
			q.CorrectAnswer, q.Explanation, q.Difficulty, q.QType, q.ImageURL, q.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i+1, err)
		}
	}

	if imp.Hash != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO question_imports (hash, filename, subject_id, topic_id, rows, imported_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			imp.Hash, imp.Filename, imp.SubjectID, imp.TopicID, len(questions), now,
		)
		if err != nil {
			return fmt.Errorf("record import: %w", err)
		}
	}

	return tx.Commit()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	var q model.Question
	err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id), &q)
	if errors.Is(err, sql.ErrNoRows) {
		return q, ErrNotFound
	}
	return q, err
}

// ListQuestions returns questions of a subject, optionally narrowed to a topic.
func (s *Store) ListQuestions(ctx context.Context, subjectID, topicID string) ([]model.Question, error) {
	query, args := questionFilter(`SELECT `+questionColumns+` FROM questions`, subjectID, topicID)
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at, id`, args...)
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

// ListQuestionIDs returns the IDs of every question matching subject and optional topic.
func (s *Store) ListQuestionIDs(ctx context.Context, subjectID, topicID string) ([]string, error) {
	query, args := questionFilter(`SELECT id FROM questions`, subjectID, topicID)
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func questionFilter(base, subjectID, topicID string) (string, []any) {
	var where []string
	var args []any
	if subjectID != "" {
		where = append(where, `subject_id = ?`)
		args = append(args, subjectID)
	}
	if topicID != "" {
		where = append(where, `topic_id = ?`)
		args = append(args, topicID)
	}
	if len(where) > 0 {
		base += ` WHERE ` + strings.Join(where, ` AND `)
	}
	return base, args
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
