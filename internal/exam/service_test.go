package exam

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/exampractice/internal/model"
	"github.com/pavelanni/exampractice/internal/store"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	svc     *Service
	store   *store.Store
	clock   time.Time
	userID  int64
	subject string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	userID, err := st.CreateUser(ctx, model.User{
		Username: "lan", DisplayName: "Lan", PasswordHash: "x", Role: model.UserRoleStudent, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	subject, err := st.CreateSubject(ctx, "Physiology")
	if err != nil {
		t.Fatalf("CreateSubject: %v", err)
	}

	env := &testEnv{store: st, clock: testStart, userID: userID, subject: subject}
	env.svc = NewService(st)
	env.svc.now = func() time.Time { return env.clock }
	return env
}

// addQuestions inserts one question per correct answer and returns their IDs.
func (e *testEnv) addQuestions(t *testing.T, correct ...string) []string {
	t.Helper()
	opt := func(s string) *string { return &s }
	qs := make([]model.Question, len(correct))
	for i, c := range correct {
		qs[i] = model.Question{
			SubjectID:     e.subject,
			Text:          "Question " + string(rune('1'+i)),
			OptionA:       opt("first"),
			OptionB:       opt("second"),
			OptionC:       opt("third"),
			CorrectAnswer: c,
			Explanation:   opt("see chapter " + string(rune('1'+i))),
			Difficulty:    model.DifficultyMedium,
			QType:         model.QTypeSingle,
		}
		if strings.Contains(c, ",") {
			qs[i].QType = model.QTypeMulti
		}
	}
	if err := e.store.InsertQuestions(context.Background(), qs, model.QuestionImport{}); err != nil {
		t.Fatalf("InsertQuestions: %v", err)
	}
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

func (e *testEnv) create(t *testing.T, n, duration int) string {
	t.Helper()
	id, err := e.svc.Create(context.Background(), e.userID, CreateRequest{
		SubjectID: e.subject, TotalQuestions: n, DurationSeconds: duration,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func TestCreateInsufficientPool(t *testing.T) {
	env := newTestEnv(t)
	env.addQuestions(t, "A", "B", "C", "A", "B")

	_, err := env.svc.Create(context.Background(), env.userID, CreateRequest{
		SubjectID: env.subject, TotalQuestions: 20, DurationSeconds: 600,
	})
	var pe *PoolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PoolError, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientPool) {
		t.Error("PoolError should wrap ErrInsufficientPool")
	}
	if !strings.Contains(err.Error(), "5") || !strings.Contains(err.Error(), "20") {
		t.Errorf("message should state both counts: %q", err.Error())
	}

	exams, err := env.store.ListExams(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("ListExams: %v", err)
	}
	if len(exams) != 0 {
		t.Errorf("expected no exam rows, got %d", len(exams))
	}
}

func TestCreateSamplesInShuffledOrder(t *testing.T) {
	env := newTestEnv(t)
	env.addQuestions(t, "A", "B", "C", "A", "B", "C", "A", "B")
	env.svc.shuffle = func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}

	all, err := env.store.ListQuestionIDs(context.Background(), env.subject, "")
	if err != nil {
		t.Fatalf("ListQuestionIDs: %v", err)
	}
	slices.Reverse(all)
	want := all[:3]

	id := env.create(t, 3, 600)
	snap, err := env.svc.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Exam.Status != model.StatusInProgress {
		t.Errorf("status = %q", snap.Exam.Status)
	}
	if !snap.Exam.StartedAt.Equal(testStart) {
		t.Errorf("started_at = %v, want %v", snap.Exam.StartedAt, testStart)
	}
	var got []string
	for _, q := range snap.Questions {
		got = append(got, q.ID)
	}
	if !slices.Equal(got, want) {
		t.Errorf("questions = %v, want %v", got, want)
	}
	if snap.TimeLeft != 600 {
		t.Errorf("time left = %d, want 600", snap.TimeLeft)
	}
}

func TestCreateSampleIsUniformlyDistinct(t *testing.T) {
	env := newTestEnv(t)
	env.addQuestions(t, "A", "B", "C", "A", "B", "C")
	id := env.create(t, 6, 60)
	snap, err := env.svc.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	seen := make(map[string]bool)
	for _, q := range snap.Questions {
		if seen[q.ID] {
			t.Fatalf("question %s sampled twice", q.ID)
		}
		seen[q.ID] = true
	}
	if len(seen) != 6 {
		t.Errorf("expected 6 questions, got %d", len(seen))
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addQuestions(t, "A")
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing subject", CreateRequest{TotalQuestions: 1, DurationSeconds: 60}},
		{"subject not a uuid", CreateRequest{SubjectID: "anatomy", TotalQuestions: 1, DurationSeconds: 60}},
		{"zero questions", CreateRequest{SubjectID: env.subject, DurationSeconds: 60}},
		{"zero duration", CreateRequest{SubjectID: env.subject, TotalQuestions: 1}},
		{"topic not a uuid", CreateRequest{SubjectID: env.subject, TopicID: "x", TotalQuestions: 1, DurationSeconds: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Create(context.Background(), env.userID, tt.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestRemainingSeconds(t *testing.T) {
	tests := []struct {
		name     string
		duration int
		elapsed  time.Duration
		want     int
	}{
		{"fresh", 600, 0, 600},
		{"partial", 600, 100 * time.Second, 500},
		{"fractional second", 600, 1500 * time.Millisecond, 599},
		{"expired", 600, 650 * time.Second, 0},
		{"clock behind start", 600, -30 * time.Second, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemainingSeconds(tt.duration, testStart, testStart.Add(tt.elapsed)); got != tt.want {
				t.Errorf("RemainingSeconds = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLoadAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	env.addQuestions(t, "A", "B")
	id := env.create(t, 2, 600)

	env.clock = testStart.Add(650 * time.Second)
	snap, err := env.svc.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.TimeLeft != 0 {
		t.Errorf("time left = %d, want 0", snap.TimeLeft)
	}
}

func TestSaveAnswersAndResume(t *testing.T) {
	env := newTestEnv(t)
	ids := env.addQuestions(t, "A", "B")
	id := env.create(t, 2, 600)
	ctx := context.Background()

	if err := env.svc.SaveAnswers(ctx, id, map[string]string{ids[0]: " c ; a", ids[1]: ""}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	if err := env.svc.SaveAnswers(ctx, id, map[string]string{ids[0]: "b"}); err != nil {
		t.Fatalf("SaveAnswers overwrite: %v", err)
	}

	snap, err := env.svc.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Answers) != 1 || snap.Answers[ids[0]] != "B" {
		t.Errorf("answers = %v, want only %s=B", snap.Answers, ids[0])
	}

	err = env.svc.SaveAnswers(ctx, id, map[string]string{"not-in-exam": "A"})
	if !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}
	if err := env.svc.SaveAnswers(ctx, "missing", map[string]string{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadHidesAnswerKeyUntilSubmit(t *testing.T) {
	env := newTestEnv(t)
	ids := env.addQuestions(t, "A", "B")
	id := env.create(t, 2, 600)
	ctx := context.Background()

	snap, err := env.svc.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, q := range snap.Questions {
		if q.CorrectAnswer != "" || q.Explanation != nil {
			t.Errorf("question %s exposes its key while in progress", q.ID)
		}
		if q.OptionA == nil || q.Text == "" {
			t.Errorf("question %s lost its prompt: %+v", q.ID, q)
		}
	}

	if _, err := env.svc.Submit(ctx, id, map[string]string{ids[0]: "A"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap, err = env.svc.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load after submit: %v", err)
	}
	for _, q := range snap.Questions {
		if q.CorrectAnswer == "" || q.Explanation == nil {
			t.Errorf("question %s has no key after submit", q.ID)
		}
	}
}

func TestSubmitScoresEveryQuestion(t *testing.T) {
	env := newTestEnv(t)
	env.addQuestions(t, "A,C", "B", "A")
	id := env.create(t, 3, 600)
	ctx := context.Background()

	questions, err := env.store.ListExamQuestions(ctx, id)
	if err != nil {
		t.Fatalf("ListExamQuestions: %v", err)
	}
	byCorrect := make(map[string]string)
	for _, q := range questions {
		byCorrect[q.CorrectAnswer] = q.ID
	}

	// The single-answer "B" question is saved wrong first, then corrected at submit.
	if err := env.svc.SaveAnswers(ctx, id, map[string]string{byCorrect["B"]: "A"}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	env.clock = testStart.Add(5 * time.Minute)
	res, err := env.svc.Submit(ctx, id, map[string]string{
		byCorrect["A,C"]: "C,A",
		byCorrect["B"]:   "b",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if !res.Submitted || res.Total != 3 || res.Correct != 2 {
		t.Fatalf("result = submitted %v, %d/%d; want true, 2/3", res.Submitted, res.Correct, res.Total)
	}
	if res.Exam.Status != model.StatusSubmitted || res.Exam.SubmittedAt == nil {
		t.Errorf("exam not finalized: %+v", res.Exam)
	}
	for i, item := range res.Items {
		if item.Position != i+1 {
			t.Errorf("item %d position = %d", i, item.Position)
		}
		if item.Correct != item.StoredCorrect {
			t.Errorf("item %d: recomputed %v, stored %v", i, item.Correct, item.StoredCorrect)
		}
		if item.Question.ID == byCorrect["A"] {
			if item.SelectedAnswer != "" || item.Correct {
				t.Errorf("unanswered item should be empty and incorrect: %+v", item)
			}
		}
		if item.Question.ID == byCorrect["A,C"] && item.SelectedAnswer != "A,C" {
			t.Errorf("multi answer stored as %q, want A,C", item.SelectedAnswer)
		}
	}

	rows, err := env.store.ListAnswers(ctx, id)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("expected one answer row per question, got %d", len(rows))
	}
	for _, a := range rows {
		if a.IsCorrect == nil {
			t.Errorf("answer %s has no correctness flag", a.QuestionID)
		}
		if a.QuestionID == byCorrect["A"] && a.SelectedAnswer != nil {
			t.Errorf("unanswered question stored %q", *a.SelectedAnswer)
		}
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ids := env.addQuestions(t, "A", "B")
	id := env.create(t, 2, 600)
	ctx := context.Background()

	first, err := env.svc.Submit(ctx, id, map[string]string{ids[0]: "A", ids[1]: "B"})
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := env.svc.Submit(ctx, id, map[string]string{ids[0]: "C", ids[1]: "C"})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if first.Correct != 2 || second.Correct != 2 || second.Total != 2 {
		t.Errorf("second submit changed the result: %d/%d then %d/%d",
			first.Correct, first.Total, second.Correct, second.Total)
	}
	if !second.Exam.SubmittedAt.Equal(*first.Exam.SubmittedAt) {
		t.Error("submitted_at changed on second submit")
	}

	rows, err := env.store.ListAnswers(ctx, id)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 answer rows, got %d", len(rows))
	}

	if err := env.svc.SaveAnswers(ctx, id, map[string]string{ids[0]: "B"}); !errors.Is(err, ErrExamClosed) {
		t.Errorf("expected ErrExamClosed, got %v", err)
	}
}

func TestResultBeforeSubmit(t *testing.T) {
	env := newTestEnv(t)
	ids := env.addQuestions(t, "A")
	id := env.create(t, 1, 600)
	ctx := context.Background()

	if err := env.svc.SaveAnswers(ctx, id, map[string]string{ids[0]: "A"}); err != nil {
		t.Fatalf("SaveAnswers: %v", err)
	}
	res, err := env.svc.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Submitted || len(res.Items) != 0 {
		t.Errorf("expected not-yet-submitted result, got %+v", res)
	}

	if _, err := env.svc.Result(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
