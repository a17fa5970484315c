// Package dialog records exam dialog sessions and derives reports and
// aggregate statistics from them.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/pavelanni/dialoglog/internal/model"
)

// ErrSealed is returned by mutating calls after a session has been
// completed or aborted.
var ErrSealed = errors.New("session already sealed")

// Recorder builds the dialog log record for one exam session. It owns the
// record lifecycle: transcript messages and question entries are appended
// while the session is in progress, the current question is answered and
// evaluated in order, and the record is sealed exactly once, either as
// completed with a final report or as aborted.
type Recorder struct {
	mu  sync.Mutex
	rec model.DialogLog
	now func() time.Time
}

// NewRecorder starts recording a new session for the given student and
// exam configuration.
func NewRecorder(studentName string, cfg model.ExamConfig) *Recorder {
	r := &Recorder{now: time.Now}
	start := r.now()
	r.rec = model.DialogLog{
		SessionInfo: model.SessionInfo{
			SessionID:   model.NewSessionID(),
			StudentName: studentName,
			StartTime:   start,
			Status:      model.StatusInProgress,
		},
		ExamConfig:          cfg,
		Messages:            []model.Message{},
		QuestionsAndAnswers: []model.QAEntry{},
	}
	return r
}

// Resume continues recording a session read back from a checkpoint file.
// Only in-progress sessions can be resumed; the recorder takes ownership
// of rec.
func Resume(rec *model.DialogLog) (*Recorder, error) {
	if rec.SessionInfo.Status != model.StatusInProgress {
		return nil, fmt.Errorf("session %s is %s: only in-progress sessions can be resumed",
			rec.SessionInfo.SessionID, rec.SessionInfo.Status)
	}
	r := &Recorder{now: time.Now, rec: *rec}
	if r.rec.Messages == nil {
		r.rec.Messages = []model.Message{}
	}
	if r.rec.QuestionsAndAnswers == nil {
		r.rec.QuestionsAndAnswers = []model.QAEntry{}
	}
	return r, nil
}

// SessionID returns the 8-character session identifier.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.SessionInfo.SessionID
}

// Config returns the exam configuration the session was started with.
func (r *Recorder) Config() model.ExamConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.ExamConfig
}

// QuestionCount returns the number of questions asked so far.
func (r *Recorder) QuestionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rec.QuestionsAndAnswers)
}

// Evaluations returns a copy of the evaluations recorded so far, keyed by
// question, for building follow-up questions from earlier performance.
func (r *Recorder) Evaluations() []model.QAEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyEntries(r.rec.QuestionsAndAnswers)
}

// AddMessage appends a transcript message stamped with the current time.
func (r *Recorder) AddMessage(role model.Role, typ model.MessageType, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealedLocked() {
		return ErrSealed
	}
	r.rec.Messages = append(r.rec.Messages, model.Message{
		Timestamp: r.now(),
		Role:      role,
		Content:   content,
		Type:      typ,
	})
	return nil
}

// AddQuestion opens the next question entry. The question number is
// assigned by the recorder and returned; a zero timestamp is filled with
// the current time.
func (r *Recorder) AddQuestion(q model.Question) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealedLocked() {
		return 0, ErrSealed
	}
	if q.Text == "" {
		return 0, errors.New("empty question text")
	}
	q.QuestionNumber = len(r.rec.QuestionsAndAnswers) + 1
	if q.Timestamp.IsZero() {
		q.Timestamp = r.now()
	}
	r.rec.QuestionsAndAnswers = append(r.rec.QuestionsAndAnswers, model.QAEntry{Question: q})
	return q.QuestionNumber, nil
}

// AddAnswer records the student's answer to the current question.
func (r *Recorder) AddAnswer(content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealedLocked() {
		return ErrSealed
	}
	cur := r.currentLocked()
	if cur == nil {
		return errors.New("no question to answer")
	}
	if cur.Answer != nil {
		return fmt.Errorf("question %d already answered", cur.Question.QuestionNumber)
	}
	cur.Answer = &model.Answer{Timestamp: r.now(), Content: content}
	return nil
}

// AddEvaluation records the grading of the current question's answer.
// Scores outside 0..10 are rejected outright rather than persisted.
func (r *Recorder) AddEvaluation(ev model.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealedLocked() {
		return ErrSealed
	}
	if ev.TotalScore < 0 || ev.TotalScore > model.MaxQuestionScore {
		return fmt.Errorf("total score %g outside 0..%d", ev.TotalScore, model.MaxQuestionScore)
	}
	for name, score := range ev.CriteriaScores {
		if score < 0 || score > model.MaxQuestionScore {
			return fmt.Errorf("criteria score %s=%g outside 0..%d", name, score, model.MaxQuestionScore)
		}
	}
	cur := r.currentLocked()
	if cur == nil {
		return errors.New("no question to evaluate")
	}
	if cur.Answer == nil {
		return fmt.Errorf("question %d has no answer to evaluate", cur.Question.QuestionNumber)
	}
	if cur.Evaluation != nil {
		return fmt.Errorf("question %d already evaluated", cur.Question.QuestionNumber)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	cur.Evaluation = &ev
	return nil
}

// Snapshot returns a deep copy of the record as it stands, with the
// duration fields and statistics refreshed. Snapshots of an in-progress
// session are what the checkpoint file is written from.
func (r *Recorder) Snapshot(ctx context.Context) *model.DialogLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealedLocked() {
		dur := r.now().Sub(r.rec.SessionInfo.StartTime).Seconds()
		if dur < 0 {
			dur = 0
		}
		r.rec.SessionInfo.DurationSeconds = dur
		r.rec.SessionInfo.DurationFormatted = FormatDuration(ctx, dur)
		r.rec.Statistics = model.ComputeStatistics(r.rec.QuestionsAndAnswers)
	}
	return r.snapshotLocked()
}

// Complete seals the session as completed, attaching the final report with
// the computed grade and the given recommendations. It returns the sealed
// record, ready to be written.
func (r *Recorder) Complete(ctx context.Context, recommendations []string) (*model.DialogLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealedLocked() {
		return nil, ErrSealed
	}
	r.sealLocked(ctx, model.StatusCompleted)
	if recommendations == nil {
		recommendations = []string{}
	}
	r.rec.FinalReport = &model.FinalReport{
		Timestamp: *r.rec.SessionInfo.EndTime,
		ReportData: model.ReportData{
			GradeInfo:       GradeInfoFor(ctx, r.rec.Statistics),
			Recommendations: recommendations,
		},
	}
	return r.snapshotLocked(), nil
}

// Abort seals the session as aborted. Everything recorded so far is kept;
// no final report is produced.
func (r *Recorder) Abort(ctx context.Context) (*model.DialogLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealedLocked() {
		return nil, ErrSealed
	}
	r.sealLocked(ctx, model.StatusAborted)
	return r.snapshotLocked(), nil
}

func (r *Recorder) sealedLocked() bool {
	return r.rec.SessionInfo.Status != model.StatusInProgress
}

func (r *Recorder) currentLocked() *model.QAEntry {
	if len(r.rec.QuestionsAndAnswers) == 0 {
		return nil
	}
	return &r.rec.QuestionsAndAnswers[len(r.rec.QuestionsAndAnswers)-1]
}

func (r *Recorder) sealLocked(ctx context.Context, status model.SessionStatus) {
	end := r.now()
	dur := end.Sub(r.rec.SessionInfo.StartTime).Seconds()
	if dur < 0 {
		dur = 0
	}
	r.rec.SessionInfo.EndTime = &end
	r.rec.SessionInfo.Status = status
	r.rec.SessionInfo.DurationSeconds = dur
	r.rec.SessionInfo.DurationFormatted = FormatDuration(ctx, dur)
	r.rec.Statistics = model.ComputeStatistics(r.rec.QuestionsAndAnswers)
}

func (r *Recorder) snapshotLocked() *model.DialogLog {
	cp := r.rec
	if r.rec.SessionInfo.EndTime != nil {
		end := *r.rec.SessionInfo.EndTime
		cp.SessionInfo.EndTime = &end
	}
	cp.Messages = make([]model.Message, len(r.rec.Messages))
	for i, msg := range r.rec.Messages {
		msg.Metadata = maps.Clone(msg.Metadata)
		cp.Messages[i] = msg
	}
	cp.QuestionsAndAnswers = copyEntries(r.rec.QuestionsAndAnswers)
	if r.rec.FinalReport != nil {
		fr := *r.rec.FinalReport
		fr.ReportData.Recommendations = append([]string{}, r.rec.FinalReport.ReportData.Recommendations...)
		cp.FinalReport = &fr
	}
	if r.rec.Statistics.AverageScore != nil {
		avg := *r.rec.Statistics.AverageScore
		cp.Statistics.AverageScore = &avg
	}
	return &cp
}

func copyEntries(entries []model.QAEntry) []model.QAEntry {
	out := make([]model.QAEntry, len(entries))
	for i, qa := range entries {
		qa.Question.Metadata = maps.Clone(qa.Question.Metadata)
		if qa.Answer != nil {
			a := *qa.Answer
			qa.Answer = &a
		}
		if qa.Evaluation != nil {
			e := *qa.Evaluation
			e.CriteriaScores = maps.Clone(e.CriteriaScores)
			e.Metadata = maps.Clone(e.Metadata)
			qa.Evaluation = &e
		}
		out[i] = qa
	}
	return out
}
