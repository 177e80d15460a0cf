package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/exampractice/internal/answer"
	"github.com/pavelanni/exampractice/internal/exam"
	"github.com/pavelanni/exampractice/internal/model"
	"github.com/pavelanni/exampractice/internal/store"
)

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Sit an exam in the terminal",
		Long: `Sit a timed exam in the terminal. Answers are saved as you go and the
exam is submitted automatically when time runs out.

Commands at the prompt:
  a, b, ...   choose an option (toggles on multi-answer questions)
  n, p        next or previous question
  g N         go to question N
  x           clear the answer of the current question
  t           show the time left
  s           submit
  q           quit without submitting (the exam can be resumed with --exam)`,
		RunE: runTake,
	}
	f := cmd.Flags()
	f.String("db", "exampractice.db", "SQLite database path")
	f.StringP("username", "u", "", "Username (required)")
	f.String("password", "", "Password (or set EXAMPRACTICE_PASSWORD)")
	f.StringP("subject", "s", "", "Subject name or ID for a new exam")
	f.StringP("topic", "t", "", "Topic name or ID for a new exam")
	f.IntP("num-questions", "n", 20, "Number of questions in a new exam")
	f.Int("minutes", 30, "Time limit of a new exam in minutes")
	f.String("exam", "", "Resume this exam instead of creating a new one")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func runTake(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()
	out := cmd.OutOrStdout()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	user, err := db.GetUserByUsername(ctx, v.GetString("username"))
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.Active ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(v.GetString("password"))) != nil {
		return errors.New("invalid username or password")
	}

	svc := exam.NewService(db)
	examID := v.GetString("exam")
	if examID == "" {
		subjectID, err := resolveSubject(ctx, db, v.GetString("subject"), false)
		if err != nil {
			return err
		}
		req := exam.CreateRequest{
			SubjectID:       subjectID,
			TotalQuestions:  v.GetInt("num-questions"),
			DurationSeconds: v.GetInt("minutes") * 60,
		}
		if name := v.GetString("topic"); name != "" {
			if req.TopicID, err = resolveTopic(ctx, db, subjectID, name); err != nil {
				return err
			}
		}
		if examID, err = svc.Create(ctx, user.ID, req); err != nil {
			return err
		}
		fmt.Fprintf(out, "Exam %s created.\n", examID)
	} else {
		e, err := svc.Get(ctx, examID)
		if err != nil {
			return err
		}
		if e.UserID != user.ID {
			return errors.New("this exam belongs to another user")
		}
	}

	sess := exam.NewSession(svc, examID, exam.Options{
		OnTick: func(left int) {
			if left == 60 || left == 10 {
				fmt.Fprintf(out, "\n%s left.\n> ", formatSeconds(left))
			}
		},
	})
	defer sess.Close()
	if err := sess.Load(ctx); err != nil {
		return err
	}

	t := &terminal{sess: sess, out: out}
	if sess.State() == exam.StateSubmitted {
		fmt.Fprintln(out, "This exam was already submitted.")
	} else {
		t.run(ctx, cmd.InOrStdin())
	}

	if res := sess.Result(); res != nil {
		printResult(out, *res)
	} else if err := sess.Err(); err != nil {
		return err
	} else if sess.State() == exam.StateSubmitted {
		res, err := svc.Result(ctx, examID)
		if err != nil {
			return err
		}
		printResult(out, res)
	} else {
		fmt.Fprintf(out, "Answers saved. Resume with --exam %s\n", examID)
	}
	return nil
}

type terminal struct {
	sess    *exam.Session
	out     io.Writer
	current int
}

// run reads commands until the exam is submitted, the user quits, or
// input ends.
func (t *terminal) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	fmt.Fprintf(t.out, "%d questions, %s left. Type ? for help.\n", len(t.sess.Questions()), formatSeconds(t.sess.TimeLeft()))
	t.show()
	for {
		select {
		case <-t.sess.Done():
			if t.sess.State() == exam.StateSubmitted {
				fmt.Fprintln(t.out, "\nTime is up, the exam was submitted.")
			} else {
				fmt.Fprintln(t.out, "\nTime is up, but the exam could not be submitted.")
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if done := t.handle(ctx, strings.TrimSpace(line)); done {
				return
			}
		}
	}
}

func (t *terminal) handle(ctx context.Context, line string) bool {
	questions := t.sess.Questions()
	q := questions[t.current]
	cmd, arg, _ := strings.Cut(strings.ToLower(line), " ")

	switch cmd {
	case "":
	case "?", "h", "help":
		fmt.Fprintln(t.out, "a-e choose, n next, p previous, g N go to, x clear, t time, s submit, q quit")
	case "n":
		if t.current < len(questions)-1 {
			t.current++
		}
		t.show()
		return false
	case "p":
		if t.current > 0 {
			t.current--
		}
		t.show()
		return false
	case "g":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 1 || n > len(questions) {
			fmt.Fprintf(t.out, "Enter a question number from 1 to %d.\n", len(questions))
			break
		}
		t.current = n - 1
		t.show()
		return false
	case "x":
		t.report(t.sess.Clear(q.ID))
	case "t":
		fmt.Fprintf(t.out, "%s left.\n", formatSeconds(t.sess.TimeLeft()))
	case "s":
		res, err := t.sess.Submit(ctx)
		if err != nil {
			fmt.Fprintf(t.out, "Submit failed: %v\n", err)
			break
		}
		return res != nil
	case "q":
		return true
	default:
		var err error
		for _, letter := range strings.FieldsFunc(line, isSeparator) {
			if err = t.sess.Choose(q.ID, answer.Normalize(letter)); err != nil {
				break
			}
		}
		t.report(err)
	}
	fmt.Fprint(t.out, "> ")
	return false
}

func (t *terminal) report(err error) {
	switch {
	case errors.Is(err, exam.ErrUnknownOption):
		fmt.Fprintln(t.out, "That option is not offered by this question.")
	case errors.Is(err, exam.ErrNotActive):
		fmt.Fprintln(t.out, "The exam is no longer active.")
	case err != nil:
		fmt.Fprintln(t.out, err)
	default:
		q := t.sess.Questions()[t.current]
		fmt.Fprintf(t.out, "Answer: %s\n", orDash(t.sess.Answer(q.ID)))
	}
}

func (t *terminal) show() {
	questions := t.sess.Questions()
	q := questions[t.current]
	fmt.Fprintf(t.out, "\nQuestion %d/%d", t.current+1, len(questions))
	if q.QType == model.QTypeMulti {
		fmt.Fprint(t.out, " (choose all that apply)")
	}
	fmt.Fprintf(t.out, "\n%s\n", q.Text)
	for _, opt := range q.Options() {
		fmt.Fprintf(t.out, "  %s. %s\n", opt.Key, opt.Text)
	}
	fmt.Fprintf(t.out, "Answer: %s\n> ", orDash(t.sess.Answer(q.ID)))
}

func printResult(w io.Writer, res model.ExamResult) {
	if !res.Submitted {
		fmt.Fprintln(w, "This exam has not been submitted yet.")
		return
	}
	fmt.Fprintf(w, "\nScore: %d of %d correct\n", res.Correct, res.Total)
	for _, item := range res.Items {
		mark := "x"
		if item.Correct {
			mark = "ok"
		}
		fmt.Fprintf(w, "%3d. [%s] yours %s, correct %s\n", item.Position, mark, orDash(item.SelectedAnswer), item.CorrectAnswer)
	}
}

func isSeparator(r rune) bool {
	return r == ' ' || r == ',' || r == ';'
}

func formatSeconds(s int) string {
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
