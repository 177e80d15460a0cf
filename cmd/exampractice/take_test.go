package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/exampractice/internal/exam"
	"github.com/pavelanni/exampractice/internal/model"
)

type stubBackend struct {
	submitErr error
}

func (b stubBackend) Load(context.Context, string) (model.ExamSnapshot, error) {
	opt := func(s string) *string { return &s }
	return model.ExamSnapshot{
		Exam: model.Exam{ID: "exam-1", Status: model.StatusInProgress, DurationSeconds: 60},
		Questions: []model.Question{
			{ID: "q1", Text: "Which bone?", QType: model.QTypeSingle, OptionA: opt("femur"), OptionB: opt("ulna")},
		},
		Answers:  map[string]string{},
		TimeLeft: 1,
	}, nil
}

func (stubBackend) SaveAnswers(context.Context, string, map[string]string) error { return nil }

func (b stubBackend) Submit(context.Context, string, map[string]string) (model.ExamResult, error) {
	if b.submitErr != nil {
		return model.ExamResult{}, b.submitErr
	}
	return model.ExamResult{Submitted: true, Total: 1}, nil
}

func TestTerminalReportsTimeout(t *testing.T) {
	tests := []struct {
		name      string
		submitErr error
		wantState exam.State
		want      string
	}{
		{"submitted", nil, exam.StateSubmitted, "the exam was submitted"},
		{"submit failed", errors.New("backend unavailable"), exam.StateError, "could not be submitted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := exam.NewSession(stubBackend{submitErr: tt.submitErr}, "exam-1", exam.Options{Tick: 5 * time.Millisecond})
			t.Cleanup(sess.Close)
			ctx := context.Background()
			if err := sess.Load(ctx); err != nil {
				t.Fatalf("Load: %v", err)
			}

			in, w := io.Pipe()
			t.Cleanup(func() { w.Close() })
			var out bytes.Buffer
			term := &terminal{sess: sess, out: &out}

			finished := make(chan struct{})
			go func() {
				term.run(ctx, in)
				close(finished)
			}()
			select {
			case <-finished:
			case <-time.After(2 * time.Second):
				t.Fatal("terminal did not stop when time ran out")
			}

			if sess.State() != tt.wantState {
				t.Errorf("state = %s, want %s", sess.State(), tt.wantState)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q does not contain %q", out.String(), tt.want)
			}
		})
	}
}
