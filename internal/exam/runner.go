package exam

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pavelanni/dialoglog/internal/dialog"
	"github.com/pavelanni/dialoglog/internal/i18n"
	"github.com/pavelanni/dialoglog/internal/logfile"
	"github.com/pavelanni/dialoglog/internal/model"
)

// LLM is the language-model surface the runner needs. *Client implements it.
type LLM interface {
	GenerateQuestion(ctx context.Context, topic model.TopicInfo, number, total int, history []EvaluationSummary) (*GeneratedQuestion, error)
	EvaluateAnswer(ctx context.Context, q model.Question, answer string) (*EvaluationResult, error)
	Recommendations(ctx context.Context, topic model.TopicInfo, history []EvaluationSummary) ([]string, error)
}

// errStopped reports that the student closed the input stream.
var errStopped = errors.New("input closed")

// Config carries everything one session run needs.
type Config struct {
	StudentName string
	Exam        model.ExamConfig
	LogDir      string
	Checkpoint  bool
}

// Runner drives one interactive exam session: it asks LLM-generated
// questions, records the student's answers and their evaluations, and
// writes the session's dialog log.
type Runner struct {
	llm          LLM
	rec          *dialog.Recorder
	cfg          Config
	in           *bufio.Scanner
	out          io.Writer
	checkpointed bool
}

// NewRunner starts a fresh session.
func NewRunner(llm LLM, cfg Config, in io.Reader, out io.Writer) *Runner {
	return &Runner{
		llm: llm,
		rec: dialog.NewRecorder(cfg.StudentName, cfg.Exam),
		cfg: cfg,
		in:  bufio.NewScanner(in),
		out: out,
	}
}

// ResumeRunner continues the in-progress session checkpointed at path.
// The file's directory stays the log directory, and checkpointing remains
// on so the sealed record replaces the checkpoint.
func ResumeRunner(llm LLM, path string, in io.Reader, out io.Writer) (*Runner, error) {
	rec, err := logfile.Read(path)
	if err != nil {
		return nil, err
	}
	r, err := dialog.Resume(rec)
	if err != nil {
		return nil, err
	}
	return &Runner{
		llm: llm,
		rec: r,
		cfg: Config{
			StudentName: rec.SessionInfo.StudentName,
			Exam:        rec.ExamConfig,
			LogDir:      filepath.Dir(path),
			Checkpoint:  true,
		},
		in:           bufio.NewScanner(in),
		out:          out,
		checkpointed: true,
	}, nil
}

// SessionID returns the identifier of the session being recorded.
func (r *Runner) SessionID() string { return r.rec.SessionID() }

// Run conducts the session until all questions are asked, the input is
// closed, or the context is canceled. It returns the path of the written
// dialog log; a log is written even when the session ends early.
func (r *Runner) Run(ctx context.Context) (string, error) {
	if r.rec.QuestionCount() > 0 {
		r.say(i18n.Td(ctx, "ResumeNotice", map[string]any{
			"ID":     r.rec.SessionID(),
			"Number": r.rec.QuestionCount(),
		}))
	} else {
		ti := r.cfg.Exam.TopicInfo
		welcome := i18n.Td(ctx, "ExamWelcome", map[string]any{
			"Name":       r.cfg.StudentName,
			"Topic":      ti.Name,
			"Subject":    ti.Subject,
			"Difficulty": ti.Difficulty,
		})
		r.say(welcome)
		r.record(model.RoleAssistant, model.MessageText, welcome)
		r.say(i18n.Tp(ctx, "QuestionsPlanned", r.cfg.Exam.MaxQuestions))
		r.checkpoint(ctx)
	}

	for r.rec.QuestionCount() < r.cfg.Exam.MaxQuestions {
		if ctx.Err() != nil {
			return r.abort(ctx)
		}
		err := r.askOne(ctx)
		switch {
		case err == nil:
		case errors.Is(err, errStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return r.abort(ctx)
		default:
			// Without a next question the session cannot continue.
			// Seal what was recorded so nothing is lost.
			path, aerr := r.abort(ctx)
			if aerr != nil {
				return "", errors.Join(err, aerr)
			}
			return path, err
		}
	}
	return r.finish(ctx)
}

// askOne runs a single question-answer-evaluation exchange.
func (r *Runner) askOne(ctx context.Context) error {
	number := r.rec.QuestionCount() + 1
	total := r.cfg.Exam.MaxQuestions

	gq, err := r.llm.GenerateQuestion(ctx, r.cfg.Exam.TopicInfo, number, total, r.summaries())
	if err != nil {
		return fmt.Errorf("generate question %d: %w", number, err)
	}
	q := model.Question{
		Text:         gq.Question,
		TopicLevel:   gq.TopicLevel,
		QuestionType: gq.QuestionType,
	}
	if gq.KeyPoints != "" {
		q.Metadata = map[string]any{"key_points": gq.KeyPoints}
	}
	if _, err := r.rec.AddQuestion(q); err != nil {
		return err
	}
	r.record(model.RoleAssistant, model.MessageQuestion, gq.Question)

	r.say("")
	r.say(i18n.Td(ctx, "QuestionHeader", map[string]any{"Number": number, "Total": total}))
	r.say(gq.Question)
	fmt.Fprint(r.out, i18n.T(ctx, "AnswerPrompt"))

	answer, ok := r.readLine()
	if !ok {
		return errStopped
	}
	if strings.TrimSpace(answer) == "" {
		skipped := i18n.T(ctx, "AnswerSkipped")
		r.say(skipped)
		r.record(model.RoleAssistant, model.MessageText, skipped)
		r.checkpoint(ctx)
		return nil
	}

	if err := r.rec.AddAnswer(answer); err != nil {
		return err
	}
	r.record(model.RoleUser, model.MessageText, answer)

	res, err := r.llm.EvaluateAnswer(ctx, q, answer)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The answer is kept; the entry just stays ungraded.
		slog.Warn("evaluation failed", "question", number, "error", err)
		note := i18n.T(ctx, "EvaluationUnavailable")
		r.say(note)
		r.record(model.RoleAssistant, model.MessageText, note)
		r.checkpoint(ctx)
		return nil
	}
	if err := r.rec.AddEvaluation(model.Evaluation{
		TotalScore:     res.TotalScore,
		CriteriaScores: res.CriteriaScores,
		Strengths:      res.Strengths,
		Weaknesses:     res.Weaknesses,
	}); err != nil {
		return err
	}
	evalMsg := i18n.Td(ctx, "EvaluationMessage", map[string]any{
		"Score":      formatScore(res.TotalScore),
		"Strengths":  res.Strengths,
		"Weaknesses": res.Weaknesses,
	})
	r.say(evalMsg)
	r.record(model.RoleAssistant, model.MessageEvaluation, evalMsg)
	r.checkpoint(ctx)
	return nil
}

// finish asks for recommendations, seals the session as completed and
// writes the final log.
func (r *Runner) finish(ctx context.Context) (string, error) {
	recs, err := r.llm.Recommendations(ctx, r.cfg.Exam.TopicInfo, r.summaries())
	if err != nil || len(recs) == 0 {
		if err != nil {
			slog.Warn("recommendations failed", "error", err)
		}
		recs = []string{i18n.T(ctx, "DefaultRecommendation")}
	}

	// The completion message carries the grade, so grade the entries the
	// same way sealing will.
	gi := dialog.GradeInfoFor(ctx, model.ComputeStatistics(r.rec.Evaluations()))
	done := i18n.Td(ctx, "ExamCompleted", map[string]any{
		"Grade":      gi.Grade,
		"Percentage": gi.Percentage,
		"Points":     gi.Points,
	})
	r.record(model.RoleAssistant, model.MessageText, done)

	final, err := r.rec.Complete(ctx, recs)
	if err != nil {
		return "", err
	}
	path, err := r.write(final)
	if err != nil {
		return "", err
	}

	r.say("")
	r.say(done)
	r.say(i18n.T(ctx, "RecommendationsHeader"))
	for i, rec := range recs {
		r.say(fmt.Sprintf("  %d. %s", i+1, rec))
	}
	return path, nil
}

// abort seals the session as aborted and writes the log with everything
// recorded so far.
func (r *Runner) abort(ctx context.Context) (string, error) {
	msg := i18n.T(ctx, "ExamAborted")
	r.record(model.RoleAssistant, model.MessageText, msg)
	final, err := r.rec.Abort(ctx)
	if err != nil {
		return "", err
	}
	path, err := r.write(final)
	if err != nil {
		return "", err
	}
	r.say("")
	r.say(msg)
	return path, nil
}

func (r *Runner) write(rec *model.DialogLog) (string, error) {
	var opts []logfile.WriteOption
	if r.checkpointed {
		opts = append(opts, logfile.WithReplace())
	}
	path, err := logfile.Write(r.cfg.LogDir, rec, opts...)
	if err != nil {
		return "", err
	}
	slog.Info("dialog log written", "path", path, "session", rec.SessionInfo.SessionID, "status", rec.SessionInfo.Status)
	return path, nil
}

// checkpoint persists the in-progress record so an interrupted session can
// be resumed. Failures are logged and the session carries on.
func (r *Runner) checkpoint(ctx context.Context) {
	if !r.cfg.Checkpoint {
		return
	}
	snap := r.rec.Snapshot(ctx)
	if _, err := logfile.Write(r.cfg.LogDir, snap, logfile.WithReplace()); err != nil {
		slog.Warn("checkpoint write failed", "session", snap.SessionInfo.SessionID, "error", err)
		return
	}
	r.checkpointed = true
}

// summaries collects the evaluation characteristics of the entries graded
// so far. Answer texts never leave the record.
func (r *Runner) summaries() []EvaluationSummary {
	var out []EvaluationSummary
	for _, qa := range r.rec.Evaluations() {
		if qa.Evaluation == nil {
			continue
		}
		out = append(out, EvaluationSummary{
			QuestionNumber: qa.Question.QuestionNumber,
			TopicLevel:     qa.Question.TopicLevel,
			QuestionType:   qa.Question.QuestionType,
			TotalScore:     qa.Evaluation.TotalScore,
			Weaknesses:     qa.Evaluation.Weaknesses,
		})
	}
	return out
}

func (r *Runner) readLine() (string, bool) {
	if !r.in.Scan() {
		return "", false
	}
	return r.in.Text(), true
}

func (r *Runner) say(s string) {
	fmt.Fprintln(r.out, s)
}

func (r *Runner) record(role model.Role, typ model.MessageType, content string) {
	if err := r.rec.AddMessage(role, typ, content); err != nil {
		slog.Warn("transcript message dropped", "error", err)
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
