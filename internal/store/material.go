package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/exampractice/internal/model"
)

const materialColumns = `id, title, description, type, url, subject_id, topic_id, created_at`

func scanMaterial(row scanner, m *model.Material) error {
	return row.Scan(&m.ID, &m.Title, &m.Description, &m.Type, &m.URL, &m.SubjectID, &m.TopicID, &m.CreatedAt)
}

// CreateMaterial stores a learning material and returns its ID.
func (s *Store) CreateMaterial(ctx context.Context, m model.Material) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO materials (`+materialColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Title, m.Description, m.Type, m.URL, m.SubjectID, m.TopicID, m.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// GetMaterial returns a material by ID.
func (s *Store) GetMaterial(ctx context.Context, id string) (model.Material, error) {
	var m model.Material
	err := scanMaterial(s.db.QueryRowContext(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = ?`, id), &m)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	return m, err
}

// ListMaterials returns materials matching the filter, newest first.
// The query matches title or description case-insensitively.
func (s *Store) ListMaterials(ctx context.Context, f model.MaterialFilter) ([]model.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE 1=1`
	var args []any
	if f.SubjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, f.SubjectID)
	}
	if f.TopicID != "" {
		query += ` AND topic_id = ?`
		args = append(args, f.TopicID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var materials []model.Material
	for rows.Next() {
		var m model.Material
		if err := scanMaterial(rows, &m); err != nil {
			return nil, err
		}
		if matchesQuery(m, f.Query) {
			materials = append(materials, m)
		}
	}
	return materials, rows.Err()
}

// SQLite's lower() only folds ASCII, so text search happens here.
func matchesQuery(m model.Material, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(m.Title), q) {
		return true
	}
	return m.Description != nil && strings.Contains(strings.ToLower(*m.Description), q)
}
