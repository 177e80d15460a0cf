package exam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/exampractice/internal/answer"
	"github.com/pavelanni/exampractice/internal/model"
)

// State is a phase of an exam session.
type State string

const (
	StateLoading    State = "loading"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateError      State = "error"
)

var (
	// ErrNotActive is returned for edits outside the active state.
	ErrNotActive = errors.New("exam session is not active")
	// ErrUnknownOption is returned when a letter is not an option of the question.
	ErrUnknownOption = errors.New("option is not offered by this question")
)

// Backend is what a session needs from the server. *Service implements it.
type Backend interface {
	Load(ctx context.Context, examID string) (model.ExamSnapshot, error)
	SaveAnswers(ctx context.Context, examID string, answers map[string]string) error
	Submit(ctx context.Context, examID string, answers map[string]string) (model.ExamResult, error)
}

// Options tunes a session. Zero values select the defaults.
type Options struct {
	// SaveDelay is the autosave debounce window. Default 500ms.
	SaveDelay time.Duration
	// Tick is the countdown interval; every tick removes one second. Default 1s.
	Tick time.Duration
	// OnTick, if set, receives the remaining seconds after each tick.
	OnTick func(left int)
}

func (o Options) withDefaults() Options {
	if o.SaveDelay <= 0 {
		o.SaveDelay = 500 * time.Millisecond
	}
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	return o
}

// Session drives one sitting of an exam. Edits are applied in memory at once
// and persisted by a debounced autosave; the countdown submits automatically
// when it reaches zero.
type Session struct {
	backend Backend
	examID  string
	opts    Options

	mu        sync.Mutex
	ctx       context.Context
	state     State
	exam      model.Exam
	questions []model.Question
	byID      map[string]model.Question
	answers   map[string]string
	saved     map[string]string
	timeLeft  int
	saveTimer *time.Timer
	saveGen   int
	result    *model.ExamResult
	err       error
	closed    bool

	done     chan struct{}
	doneOnce sync.Once
	wg       sync.WaitGroup
}

// NewSession returns a session in the loading state. Call Load to start it.
func NewSession(backend Backend, examID string, opts Options) *Session {
	return &Session{
		backend: backend,
		examID:  examID,
		opts:    opts.withDefaults(),
		state:   StateLoading,
		done:    make(chan struct{}),
	}
}

// Load fetches the exam, its questions and saved answers. An exam that was
// already submitted goes straight to StateSubmitted; otherwise the session
// becomes active and the countdown starts from the server-computed time left.
// ctx is used for every later autosave and automatic submit.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLoading {
		s.mu.Unlock()
		return fmt.Errorf("load: session is %s", s.state)
	}
	s.ctx = ctx
	s.mu.Unlock()

	snap, err := s.backend.Load(ctx, s.examID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		s.err = err
		s.finishLocked()
		return fmt.Errorf("load exam: %w", err)
	}

	s.exam = snap.Exam
	s.questions = snap.Questions
	s.byID = make(map[string]model.Question, len(snap.Questions))
	for _, q := range snap.Questions {
		s.byID[q.ID] = q
	}
	s.answers = maps.Clone(snap.Answers)
	if s.answers == nil {
		s.answers = make(map[string]string)
	}
	s.saved = nonEmpty(s.answers)
	s.timeLeft = snap.TimeLeft

	if snap.Exam.Status == model.StatusSubmitted {
		s.state = StateSubmitted
		s.finishLocked()
		return nil
	}

	s.state = StateActive
	s.wg.Add(1)
	go s.countdown()
	return nil
}

// Select replaces the answer of a single-choice question.
func (s *Session) Select(questionID, letter string) error {
	return s.edit(questionID, letter, func(_ string) string { return answer.Canonical(letter) })
}

// Toggle adds or removes letter from a multi-choice answer.
func (s *Session) Toggle(questionID, letter string) error {
	return s.edit(questionID, letter, func(cur string) string { return answer.Toggle(cur, letter) })
}

// Choose selects letter the way the question type wants: toggle for multi,
// replace otherwise.
func (s *Session) Choose(questionID, letter string) error {
	s.mu.Lock()
	q, ok := s.byID[questionID]
	s.mu.Unlock()
	if ok && q.QType == model.QTypeMulti {
		return s.Toggle(questionID, letter)
	}
	return s.Select(questionID, letter)
}

// Clear removes the answer of a question.
func (s *Session) Clear(questionID string) error {
	return s.edit(questionID, "", func(string) string { return "" })
}

func (s *Session) edit(questionID, letter string, apply func(cur string) string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.closed {
		return ErrNotActive
	}
	q, ok := s.byID[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	if letter != "" {
		letters := answer.Letters(q)
		if len(letters) > 0 && !slices.Contains(letters, answer.Normalize(letter)) {
			return fmt.Errorf("%w: %s", ErrUnknownOption, letter)
		}
	}
	s.answers[questionID] = apply(s.answers[questionID])
	s.scheduleSaveLocked()
	return nil
}

func (s *Session) scheduleSaveLocked() {
	if maps.Equal(nonEmpty(s.answers), s.saved) {
		return
	}
	s.saveGen++
	gen := s.saveGen
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = time.AfterFunc(s.opts.SaveDelay, func() { s.flush(gen) })
}

func (s *Session) cancelSaveLocked() {
	s.saveGen++
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
}

func (s *Session) flush(gen int) {
	s.mu.Lock()
	if gen != s.saveGen || s.state != StateActive || s.closed {
		s.mu.Unlock()
		return
	}
	payload := nonEmpty(s.answers)
	if maps.Equal(payload, s.saved) {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.backend.SaveAnswers(ctx, s.examID, payload); err != nil {
		slog.Warn("autosave failed", "exam_id", s.examID, "error", err)
		return
	}

	s.mu.Lock()
	s.saved = payload
	s.mu.Unlock()
}

func (s *Session) countdown() {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.Tick)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
		}

		s.mu.Lock()
		if s.state != StateActive {
			s.mu.Unlock()
			continue
		}
		if s.timeLeft > 0 {
			s.timeLeft--
		}
		left := s.timeLeft
		ctx := s.ctx
		s.mu.Unlock()

		if s.opts.OnTick != nil {
			s.opts.OnTick(left)
		}
		// A no-op submit means a manual one is in flight. If that one fails
		// the session is active again and the next tick retries.
		if left == 0 {
			if _, err := s.submit(ctx, true); err != nil {
				if errors.Is(err, ErrNotActive) {
					return
				}
				slog.Error("automatic submit failed", "exam_id", s.examID, "error", err)
			}
		}
	}
}

// Submit scores and finalizes the exam. A call made while another submit is
// in flight is a no-op returning (nil, nil). On failure the session stays
// active so the student can retry.
func (s *Session) Submit(ctx context.Context) (*model.ExamResult, error) {
	return s.submit(ctx, false)
}

func (s *Session) submit(ctx context.Context, auto bool) (*model.ExamResult, error) {
	s.mu.Lock()
	switch {
	case s.state == StateSubmitting:
		s.mu.Unlock()
		return nil, nil
	case s.state == StateSubmitted:
		r := s.result
		s.mu.Unlock()
		return r, nil
	case s.state != StateActive || s.closed:
		s.mu.Unlock()
		return nil, ErrNotActive
	}
	s.state = StateSubmitting
	s.cancelSaveLocked()
	answers := maps.Clone(s.answers)
	s.mu.Unlock()

	res, err := s.backend.Submit(ctx, s.examID, answers)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if auto {
			s.state = StateError
			s.err = err
			s.finishLocked()
		} else {
			s.state = StateActive
			s.scheduleSaveLocked()
		}
		return nil, fmt.Errorf("submit exam: %w", err)
	}
	s.state = StateSubmitted
	s.result = &res
	s.finishLocked()
	return &res, nil
}

func (s *Session) finishLocked() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Close stops the countdown and abandons any pending autosave.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancelSaveLocked()
	s.finishLocked()
	s.mu.Unlock()
	s.wg.Wait()
}

// Done is closed when the session reaches submitted or error, or is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session to StateError.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Result returns the submitted result, or nil.
func (s *Session) Result() *model.ExamResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Exam returns the loaded exam row.
func (s *Session) Exam() model.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}

// Questions returns the exam questions in sort order.
func (s *Session) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.questions)
}

// TimeLeft returns the remaining seconds.
func (s *Session) TimeLeft() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeft
}

// Answer returns the in-memory answer of a question.
func (s *Session) Answer(questionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[questionID]
}

// Saved returns the last answer set known to be persisted.
func (s *Session) Saved() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.saved)
}

func nonEmpty(answers map[string]string) map[string]string {
	out := make(map[string]string, len(answers))
	for k, v := range answers {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
