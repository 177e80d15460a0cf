package store

import (
	"context"

	"github.com/pavelanni/exampractice/internal/model"
)

// ImportExists reports whether a file with this content hash was already
// imported into the subject.
func (s *Store) ImportExists(ctx context.Context, hash, subjectID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM question_imports WHERE hash = ? AND subject_id = ?`, hash, subjectID,
	).Scan(&count)
	return count > 0, err
}

// ListImports returns the import history, newest first.
func (s *Store) ListImports(ctx context.Context) ([]model.QuestionImport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, hash, filename, subject_id, topic_id, rows, imported_at
		 FROM question_imports ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var imports []model.QuestionImport
	for rows.Next() {
		var imp model.QuestionImport
		if err := rows.Scan(&imp.ID, &imp.Hash, &imp.Filename, &imp.SubjectID, &imp.TopicID, &imp.Rows, &imp.ImportedAt); err != nil {
			return nil, err
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}
