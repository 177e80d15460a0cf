package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/exampractice/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func createTestSubject(t *testing.T, s *Store, name string) string {
	t.Helper()
	id, err := s.CreateSubject(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}
	return id
}

func createTestUser(t *testing.T, s *Store, username string, role model.UserRole) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), model.User{
		Username: username, DisplayName: username, PasswordHash: "x", Role: role, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func insertTestQuestions(t *testing.T, s *Store, subjectID string, topicID *string, texts ...string) []string {
	t.Helper()
	var qs []model.Question
	for _, text := range texts {
		qs = append(qs, model.Question{
			SubjectID:     subjectID,
			TopicID:       topicID,
			Text:          text,
			OptionA:       strPtr("yes"),
			OptionB:       strPtr("no"),
			CorrectAnswer: "A",
			Difficulty:    model.DifficultyMedium,
			QType:         model.QTypeSingle,
		})
	}
	if err := s.InsertQuestions(context.Background(), qs, model.QuestionImport{}); err != nil {
		t.Fatalf("InsertQuestions: %v", err)
	}
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

func TestSubjectsAndTopics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	anatomy := createTestSubject(t, s, "Anatomy")
	createTestSubject(t, s, "Biochemistry")

	subjects, err := s.ListSubjects(ctx)
	if err != nil {
		t.Fatalf("ListSubjects: %v", err)
	}
	if len(subjects) != 2 || subjects[0].Name != "Anatomy" {
		t.Fatalf("unexpected subjects: %+v", subjects)
	}

	topicID, err := s.CreateTopic(ctx, anatomy, "Heart")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	topic, err := s.GetTopic(ctx, topicID)
	if err != nil {
		t.Fatalf("GetTopic: %v", err)
	}
	if topic.SubjectID != anatomy || topic.Name != "Heart" {
		t.Errorf("unexpected topic: %+v", topic)
	}

	topics, err := s.ListTopics(ctx, anatomy)
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if len(topics) != 1 {
		t.Errorf("expected 1 topic, got %d", len(topics))
	}

	if _, err := s.GetSubject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQuestionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.QuestionCount(ctx)
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	subj := createTestSubject(t, s, "Physiology")
	topicID, _ := s.CreateTopic(ctx, subj, "Kidney")
	ids := insertTestQuestions(t, s, subj, nil, "Q1", "Q2")
	insertTestQuestions(t, s, subj, &topicID, "Q3")

	q, err := s.GetQuestion(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.Text != "Q1" || q.CorrectAnswer != "A" {
		t.Errorf("unexpected question: %+v", q)
	}
	if q.TopicID != nil {
		t.Errorf("expected nil topic, got %v", *q.TopicID)
	}
	if q.OptionC != nil {
		t.Errorf("expected nil option_c")
	}
	if len(q.Options()) != 2 {
		t.Errorf("expected 2 options, got %d", len(q.Options()))
	}

	if _, err := s.GetQuestion(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	tests := []struct {
		name    string
		subject string
		topic   string
		want    int
	}{
		{"subject", subj, "", 3},
		{"subject and topic", subj, topicID, 1},
		{"other subject", "other", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListQuestionIDs(ctx, tt.subject, tt.topic)
			if err != nil {
				t.Fatalf("ListQuestionIDs: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d ids, got %d", tt.want, len(got))
			}
		})
	}
}

func TestInsertQuestionsIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s, "Pharmacology")

	qs := []model.Question{
		{ID: "dup", SubjectID: subj, Text: "Q1", CorrectAnswer: "A", Difficulty: "medium", QType: "single"},
		{ID: "dup", SubjectID: subj, Text: "Q2", CorrectAnswer: "B", Difficulty: "medium", QType: "single"},
	}
	err := s.InsertQuestions(ctx, qs, model.QuestionImport{Hash: "h", SubjectID: subj})
	if err == nil {
		t.Fatal("expected duplicate key error")
	}

	count, _ := s.QuestionCount(ctx)
	if count != 0 {
		t.Errorf("expected no rows after failed import, got %d", count)
	}
	imports, _ := s.ListImports(ctx)
	if len(imports) != 0 {
		t.Errorf("expected no import record, got %d", len(imports))
	}
}

func TestImportHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s, "Histology")

	exists, err := s.ImportExists(ctx, "abc", subj)
	if err != nil {
		t.Fatalf("ImportExists: %v", err)
	}
	if exists {
		t.Fatal("expected no import yet")
	}

	qs := []model.Question{{SubjectID: subj, Text: "Q", CorrectAnswer: "A", Difficulty: "easy", QType: "single"}}
	if err := s.InsertQuestions(ctx, qs, model.QuestionImport{Hash: "abc", Filename: "bank.csv", SubjectID: subj}); err != nil {
		t.Fatalf("InsertQuestions: %v", err)
	}

	exists, _ = s.ImportExists(ctx, "abc", subj)
	if !exists {
		t.Error("expected import to be recorded")
	}
	imports, err := s.ListImports(ctx)
	if err != nil {
		t.Fatalf("ListImports: %v", err)
	}
	if len(imports) != 1 || imports[0].Rows != 1 || imports[0].Filename != "bank.csv" {
		t.Errorf("unexpected imports: %+v", imports)
	}
}

func TestExamLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID := createTestUser(t, s, "student", model.UserRoleStudent)
	subj := createTestSubject(t, s, "Anatomy")
	ids := insertTestQuestions(t, s, subj, nil, "Q1", "Q2", "Q3")
	order := []string{ids[2], ids[0], ids[1]}

	examID, err := s.CreateExam(ctx, model.Exam{
		UserID: userID, SubjectID: subj, TotalQuestions: 3, DurationSeconds: 600,
	}, order)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.Status != model.StatusInProgress {
		t.Errorf("expected in_progress, got %q", exam.Status)
	}
	if exam.SubmittedAt != nil {
		t.Error("expected nil submitted_at")
	}

	qs, err := s.ListExamQuestions(ctx, examID)
	if err != nil {
		t.Fatalf("ListExamQuestions: %v", err)
	}
	for i, q := range qs {
		if q.ID != order[i] {
			t.Errorf("position %d: got %s, want %s", i+1, q.ID, order[i])
		}
	}

	// Last write wins.
	for _, sel := range []string{"B", "A"} {
		err := s.UpsertAnswers(ctx, []model.Answer{{ExamID: examID, QuestionID: ids[0], SelectedAnswer: strPtr(sel)}})
		if err != nil {
			t.Fatalf("UpsertAnswers: %v", err)
		}
	}
	answers, err := s.ListAnswers(ctx, examID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 || *answers[0].SelectedAnswer != "A" {
		t.Fatalf("unexpected answers: %+v", answers)
	}
	if answers[0].IsCorrect != nil {
		t.Error("autosave must not set correctness")
	}

	yes, no := true, false
	final := []model.Answer{
		{ExamID: examID, QuestionID: ids[0], SelectedAnswer: strPtr("A"), IsCorrect: &yes},
		{ExamID: examID, QuestionID: ids[1], SelectedAnswer: nil, IsCorrect: &no},
		{ExamID: examID, QuestionID: ids[2], SelectedAnswer: strPtr("B"), IsCorrect: &no},
	}
	ok, err := s.SubmitExam(ctx, examID, final, time.Now().UTC())
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if !ok {
		t.Fatal("expected first submit to apply")
	}

	// A second submit is refused and changes nothing.
	ok, err = s.SubmitExam(ctx, examID, []model.Answer{{ExamID: examID, QuestionID: ids[1], SelectedAnswer: strPtr("B"), IsCorrect: &yes}}, time.Now().UTC())
	if err != nil {
		t.Fatalf("second SubmitExam: %v", err)
	}
	if ok {
		t.Error("expected second submit to be a no-op")
	}

	exam, _ = s.GetExam(ctx, examID)
	if exam.Status != model.StatusSubmitted || exam.SubmittedAt == nil {
		t.Errorf("expected submitted exam with timestamp, got %+v", exam)
	}

	rows, err := s.ListAnswerRows(ctx, examID)
	if err != nil {
		t.Fatalf("ListAnswerRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, r := range rows {
		if r.Position != i+1 || r.Question.ID != order[i] {
			t.Errorf("row %d out of order: position %d question %s", i, r.Position, r.Question.ID)
		}
	}
	if rows[1].Answer.SelectedAnswer != nil {
		t.Error("expected unanswered question to keep nil selection")
	}
	if rows[1].Question.ID != ids[0] || rows[1].Answer.IsCorrect == nil || !*rows[1].Answer.IsCorrect {
		t.Errorf("expected ids[0] at position 2 to be correct, got %+v", rows[1])
	}

	exams, err := s.ListExams(ctx, userID, "")
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 1 {
		t.Errorf("expected 1 exam, got %d", len(exams))
	}
}

func TestUsersAndAuthSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createTestUser(t, s, "teacher1", model.UserRoleTeacher)
	u, err := s.GetUserByUsername(ctx, "teacher1")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername: %v %v", u, err)
	}
	if u.Role != model.UserRoleTeacher || !u.Active {
		t.Errorf("unexpected user: %+v", u)
	}

	missing, err := s.GetUserByUsername(ctx, "ghost")
	if err != nil || missing != nil {
		t.Errorf("expected nil user, got %v %v", missing, err)
	}

	if err := s.ToggleUserActive(ctx, id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ = s.GetUserByID(ctx, id)
	if u.Active {
		t.Error("expected user to be inactive")
	}
	if err := s.ToggleUserActive(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	sess, err := s.CreateAuthSession(ctx, id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	got, err := s.GetAuthSession(ctx, sess.ID)
	if err != nil || got == nil || got.UserID != id {
		t.Fatalf("GetAuthSession: %v %v", got, err)
	}
	if err := s.DeleteAuthSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	got, _ = s.GetAuthSession(ctx, sess.ID)
	if got != nil {
		t.Error("expected session to be gone")
	}

	count, _ := s.UserCount(ctx)
	if count != 1 {
		t.Errorf("expected 1 user, got %d", count)
	}
}

func TestMaterials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	subj := createTestSubject(t, s, "Anatomy")

	older := time.Now().UTC().Add(-time.Hour)
	_, err := s.CreateMaterial(ctx, model.Material{
		Title: "Heart atlas", Type: model.MaterialImage, URL: "https://x/heart.png",
		SubjectID: &subj, CreatedAt: older,
	})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}
	newID, err := s.CreateMaterial(ctx, model.Material{
		Title: "Giải phẫu tim", Description: strPtr("Bài giảng về TIM mạch"), Type: model.MaterialLecture, URL: "https://x/tim.pdf",
	})
	if err != nil {
		t.Fatalf("CreateMaterial: %v", err)
	}

	all, err := s.ListMaterials(ctx, model.MaterialFilter{})
	if err != nil {
		t.Fatalf("ListMaterials: %v", err)
	}
	if len(all) != 2 || all[0].ID != newID {
		t.Fatalf("expected newest first, got %+v", all)
	}

	tests := []struct {
		name   string
		filter model.MaterialFilter
		want   int
	}{
		{"by subject", model.MaterialFilter{SubjectID: subj}, 1},
		{"title search", model.MaterialFilter{Query: "ATLAS"}, 1},
		{"description search unicode", model.MaterialFilter{Query: "tim mạch"}, 1},
		{"no match", model.MaterialFilter{Query: "kidney"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListMaterials(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListMaterials: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d materials, got %d", tt.want, len(got))
			}
		})
	}

	m, err := s.GetMaterial(ctx, newID)
	if err != nil {
		t.Fatalf("GetMaterial: %v", err)
	}
	if m.Description == nil || m.SubjectID != nil {
		t.Errorf("unexpected nullable fields: %+v", m)
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	userID := createTestUser(t, s, "alice", model.UserRoleStudent)
	subj := createTestSubject(t, s, "Anatomy")
	ids := insertTestQuestions(t, s, subj, nil, "Q1", "Q2")

	examID, err := s.CreateExam(ctx, model.Exam{UserID: userID, SubjectID: subj, TotalQuestions: 2, DurationSeconds: 60}, ids)
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	// An unsubmitted exam is not exported.
	if _, err := s.CreateExam(ctx, model.Exam{UserID: userID, SubjectID: subj, TotalQuestions: 2, DurationSeconds: 60}, ids); err != nil {
		t.Fatalf("CreateExam: %v", err)
	}

	yes, no := true, false
	_, err = s.SubmitExam(ctx, examID, []model.Answer{
		{ExamID: examID, QuestionID: ids[0], SelectedAnswer: strPtr("A"), IsCorrect: &yes},
		{ExamID: examID, QuestionID: ids[1], IsCorrect: &no},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}

	results, err := s.ExportResults(ctx, "")
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Username != "alice" || r.AttemptNumber != 1 || r.Correct != 1 || r.Total != 2 {
		t.Errorf("unexpected result: %+v", r)
	}
	if r.Questions[1].SelectedAnswer != "" {
		t.Errorf("expected empty selection, got %q", r.Questions[1].SelectedAnswer)
	}
}
