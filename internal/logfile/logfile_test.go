package logfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/pavelanni/dialoglog/internal/model"
)

func qaEntry(n int, ts time.Time, score float64) model.QAEntry {
	return model.QAEntry{
		Question: model.Question{
			Timestamp:      ts,
			QuestionNumber: n,
			Text:           fmt.Sprintf("Question %d?", n),
			TopicLevel:     "basics",
			QuestionType:   "initial",
		},
		Answer: &model.Answer{Timestamp: ts.Add(time.Minute), Content: fmt.Sprintf("Answer %d", n)},
		Evaluation: &model.Evaluation{
			Timestamp:      ts.Add(2 * time.Minute),
			TotalScore:     score,
			CriteriaScores: map[string]float64{"correctness": score, "completeness": score, "understanding": score},
			Strengths:      "clear reasoning",
			Weaknesses:     "too brief",
		},
	}
}

// completedRecord builds a sealed three-question session scored 8, 7 and 9.
func completedRecord() *model.DialogLog {
	start := time.Date(2025, 1, 15, 14, 30, 5, 0, time.UTC)
	end := start.Add(42 * time.Minute)
	avg := 8.0
	return &model.DialogLog{
		SessionInfo: model.SessionInfo{
			SessionID:         "a1b2c3d4",
			StudentName:       "Alice",
			StartTime:         start,
			EndTime:           &end,
			Status:            model.StatusCompleted,
			DurationSeconds:   end.Sub(start).Seconds(),
			DurationFormatted: "42 min",
		},
		ExamConfig: model.ExamConfig{
			TopicInfo: model.TopicInfo{
				Name:       "Concurrency",
				Subject:    "Operating systems",
				Difficulty: "medium",
				Type:       model.TopicPredefined,
			},
			MaxQuestions: 3,
		},
		Messages: []model.Message{
			{Timestamp: start, Role: model.RoleAssistant, Content: "Welcome!", Type: model.MessageText},
			{Timestamp: start.Add(time.Second), Role: model.RoleAssistant, Content: "Question 1?", Type: model.MessageQuestion},
			{Timestamp: start.Add(time.Minute), Role: model.RoleUser, Content: "Answer 1", Type: model.MessageText},
		},
		QuestionsAndAnswers: []model.QAEntry{
			qaEntry(1, start.Add(time.Second), 8),
			qaEntry(2, start.Add(5*time.Minute), 7),
			qaEntry(3, start.Add(10*time.Minute), 9),
		},
		FinalReport: &model.FinalReport{
			Timestamp: end,
			ReportData: model.ReportData{
				GradeInfo: model.GradeInfo{
					Grade:       "good",
					Percentage:  80.0,
					Points:      "24.0/30",
					Description: "Good understanding with minor gaps",
				},
				Recommendations: []string{"Review mutex semantics"},
			},
		},
		Statistics: model.Statistics{
			TotalQuestions:   3,
			TotalAnswers:     3,
			AverageScore:     &avg,
			TotalScore:       24,
			MaxPossibleScore: 30,
		},
	}
}

// inProgressRecord builds a checkpoint of a session with one unanswered question.
func inProgressRecord() *model.DialogLog {
	start := time.Date(2025, 1, 15, 14, 30, 5, 0, time.UTC)
	return &model.DialogLog{
		SessionInfo: model.SessionInfo{
			SessionID:   "a1b2c3d4",
			StudentName: "Alice",
			StartTime:   start,
			Status:      model.StatusInProgress,
		},
		ExamConfig: model.ExamConfig{
			TopicInfo:    model.TopicInfo{Name: "Concurrency", Subject: "Operating systems"},
			MaxQuestions: 3,
		},
		Messages: []model.Message{},
		QuestionsAndAnswers: []model.QAEntry{
			{Question: model.Question{Timestamp: start, QuestionNumber: 1, Text: "Question 1?"}},
		},
		Statistics: model.Statistics{TotalQuestions: 1},
	}
}

func TestFilename(t *testing.T) {
	rec := completedRecord()
	got := Filename(rec)
	want := "dialog_20250115_143005_a1b2c3d4.json"
	if got != want {
		t.Errorf("Filename() = %q, want %q", got, want)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec := completedRecord()

	path, err := Write(dir, rec)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if filepath.Base(path) != Filename(rec) {
		t.Errorf("Write() path = %q, want base %q", path, Filename(rec))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if !strings.HasPrefix(string(data), "{\n  ") {
		t.Errorf("file is not pretty-printed, starts with %q", data[:10])
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, rec)
	}
}

func TestWriteInProgressCheckpoint(t *testing.T) {
	dir := t.TempDir()
	rec := inProgressRecord()

	path, err := Write(dir, rec)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	// The same session writes to the same file after every exchange.
	rec.QuestionsAndAnswers[0].Answer = &model.Answer{Timestamp: rec.SessionInfo.StartTime.Add(time.Minute), Content: "Answer 1"}
	rec.Statistics = model.ComputeStatistics(rec.QuestionsAndAnswers)
	path2, err := Write(dir, rec, WithReplace())
	if err != nil {
		t.Fatalf("Write(WithReplace) error: %v", err)
	}
	if path2 != path {
		t.Errorf("checkpoint path changed: %q then %q", path, path2)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got.Statistics.TotalAnswers != 1 {
		t.Errorf("got %d answers after checkpoint replace, want 1", got.Statistics.TotalAnswers)
	}
}

func TestWriteRefusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	rec := completedRecord()

	if _, err := Write(dir, rec); err != nil {
		t.Fatalf("first Write() error: %v", err)
	}
	_, err := Write(dir, rec)
	if err == nil {
		t.Fatal("second Write() succeeded, want refusal")
	}
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("second Write() error = %T, want *WriteError", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries after refused write, want 1 (no temp leftovers)", len(entries))
	}
}

func TestWriteRejectsInvalidRecord(t *testing.T) {
	dir := t.TempDir()
	rec := completedRecord()
	rec.Statistics.TotalScore = 99

	_, err := Write(dir, rec)
	if err == nil {
		t.Fatal("Write() accepted inconsistent statistics")
	}
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("error = %T, want *WriteError", err)
	}
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error does not wrap *SchemaError: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory has %d entries after rejected write, want 0", len(entries))
	}
}

func TestReadParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(doc map[string]json.RawMessage)
		content string
	}{
		{name: "not json", content: "dialog log in plain text\n"},
		{name: "truncated json", content: `{"session_info": {"session_id": "a1b2c3d4"`},
		{
			name:   "statistics absent",
			mutate: func(doc map[string]json.RawMessage) { delete(doc, "statistics") },
		},
		{
			name:   "exam config absent",
			mutate: func(doc map[string]json.RawMessage) { delete(doc, "exam_config") },
		},
		{
			name: "session id absent",
			mutate: func(doc map[string]json.RawMessage) {
				doc["session_info"] = json.RawMessage(`{"start_time": "2025-01-15T14:30:05Z", "status": "in_progress"}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := tt.content
			if tt.mutate != nil {
				data, err := json.Marshal(completedRecord())
				if err != nil {
					t.Fatalf("marshal fixture: %v", err)
				}
				var doc map[string]json.RawMessage
				if err := json.Unmarshal(data, &doc); err != nil {
					t.Fatalf("unmarshal fixture: %v", err)
				}
				tt.mutate(doc)
				mutated, err := json.Marshal(doc)
				if err != nil {
					t.Fatalf("marshal mutated fixture: %v", err)
				}
				content = string(mutated)
			}

			path := filepath.Join(t.TempDir(), "dialog_20250115_143005_a1b2c3d4.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}

			_, err := Read(path)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Read() error = %v (%T), want *ParseError", err, err)
			}
			if pe.Path != path {
				t.Errorf("ParseError.Path = %q, want %q", pe.Path, path)
			}
		})
	}
}

func TestValidateSchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(rec *model.DialogLog)
		field  string
	}{
		{
			name:   "short session id",
			mutate: func(rec *model.DialogLog) { rec.SessionInfo.SessionID = "abc" },
			field:  "session_info.session_id",
		},
		{
			name:   "unknown status",
			mutate: func(rec *model.DialogLog) { rec.SessionInfo.Status = "paused" },
			field:  "session_info.status",
		},
		{
			name: "end time while in progress",
			mutate: func(rec *model.DialogLog) {
				end := *rec.SessionInfo.EndTime
				*rec = *inProgressRecord()
				rec.SessionInfo.EndTime = &end
			},
			field: "session_info.end_time",
		},
		{
			name: "completed without end time",
			mutate: func(rec *model.DialogLog) {
				rec.SessionInfo.EndTime = nil
			},
			field: "session_info.end_time",
		},
		{
			name:   "completed without final report",
			mutate: func(rec *model.DialogLog) { rec.FinalReport = nil },
			field:  "final_report",
		},
		{
			name: "final report on aborted session",
			mutate: func(rec *model.DialogLog) {
				rec.SessionInfo.Status = model.StatusAborted
			},
			field: "final_report",
		},
		{
			name:   "unknown message role",
			mutate: func(rec *model.DialogLog) { rec.Messages[0].Role = "system" },
			field:  "messages[0].role",
		},
		{
			name:   "unknown message type",
			mutate: func(rec *model.DialogLog) { rec.Messages[1].Type = "hint" },
			field:  "messages[1].type",
		},
		{
			name: "question number gap",
			mutate: func(rec *model.DialogLog) {
				rec.QuestionsAndAnswers[2].Question.QuestionNumber = 4
			},
			field: "questions_and_answers[2].question.question_number",
		},
		{
			name: "duplicate question number",
			mutate: func(rec *model.DialogLog) {
				rec.QuestionsAndAnswers[1].Question.QuestionNumber = 1
			},
			field: "questions_and_answers[1].question.question_number",
		},
		{
			name: "numbering starts at zero",
			mutate: func(rec *model.DialogLog) {
				for i := range rec.QuestionsAndAnswers {
					rec.QuestionsAndAnswers[i].Question.QuestionNumber = i
				}
			},
			field: "questions_and_answers[0].question.question_number",
		},
		{
			name: "evaluation without answer",
			mutate: func(rec *model.DialogLog) {
				rec.QuestionsAndAnswers[1].Answer = nil
				rec.Statistics.TotalAnswers = 2
				rec.Statistics.MaxPossibleScore = 20
			},
			field: "questions_and_answers[1].evaluation",
		},
		{
			name: "score above maximum",
			mutate: func(rec *model.DialogLog) {
				rec.QuestionsAndAnswers[0].Evaluation.TotalScore = 11
			},
			field: "questions_and_answers[0].evaluation.total_score",
		},
		{
			name: "negative criteria score",
			mutate: func(rec *model.DialogLog) {
				rec.QuestionsAndAnswers[0].Evaluation.CriteriaScores["correctness"] = -1
			},
			field: "questions_and_answers[0].evaluation.criteria_scores.correctness",
		},
		{
			name:   "question count mismatch",
			mutate: func(rec *model.DialogLog) { rec.Statistics.TotalQuestions = 5 },
			field:  "statistics.total_questions",
		},
		{
			name:   "answer count mismatch",
			mutate: func(rec *model.DialogLog) { rec.Statistics.TotalAnswers = 2 },
			field:  "statistics.total_answers",
		},
		{
			name:   "total score mismatch",
			mutate: func(rec *model.DialogLog) { rec.Statistics.TotalScore = 25 },
			field:  "statistics.total_score",
		},
		{
			name:   "max possible score mismatch",
			mutate: func(rec *model.DialogLog) { rec.Statistics.MaxPossibleScore = 40 },
			field:  "statistics.max_possible_score",
		},
		{
			// The sample document in circulation carries average_score 7.8
			// next to total_score 24 over 3 answers; 24/3 is 8.0, so the
			// average must be flagged rather than taken at face value.
			name: "average inconsistent with total",
			mutate: func(rec *model.DialogLog) {
				avg := 7.8
				rec.Statistics.AverageScore = &avg
			},
			field: "statistics.average_score",
		},
		{
			name: "average present without answers",
			mutate: func(rec *model.DialogLog) {
				*rec = *inProgressRecord()
				avg := 0.0
				rec.Statistics.AverageScore = &avg
			},
			field: "statistics.average_score",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := completedRecord()
			tt.mutate(rec)

			err := Validate(rec)
			if err == nil {
				t.Fatal("Validate() accepted an inconsistent record")
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("Validate() error = %v (%T), want *SchemaError", err, err)
			}
			if se.Field != tt.field {
				t.Errorf("SchemaError.Field = %q, want %q", se.Field, tt.field)
			}
		})
	}
}

func TestValidateAcceptsWellFormedRecords(t *testing.T) {
	tests := []struct {
		name string
		rec  *model.DialogLog
	}{
		{name: "completed", rec: completedRecord()},
		{name: "in progress checkpoint", rec: inProgressRecord()},
		{
			name: "aborted without report",
			rec: func() *model.DialogLog {
				rec := completedRecord()
				rec.SessionInfo.Status = model.StatusAborted
				rec.FinalReport = nil
				return rec
			}(),
		},
		{
			name: "skipped answer leaves entry unevaluated",
			rec: func() *model.DialogLog {
				rec := completedRecord()
				rec.QuestionsAndAnswers[1].Answer = nil
				rec.QuestionsAndAnswers[1].Evaluation = nil
				rec.Statistics = model.ComputeStatistics(rec.QuestionsAndAnswers)
				return rec
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.rec); err != nil {
				t.Errorf("Validate() error: %v", err)
			}
		})
	}
}

func TestReadReportsSchemaErrorWithPath(t *testing.T) {
	dir := t.TempDir()
	rec := completedRecord()
	path, err := Write(dir, rec)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	broken := strings.Replace(string(data), `"average_score": 8,`, `"average_score": 7.8,`, 1)
	if broken == string(data) {
		t.Fatal("fixture did not contain the expected average_score field")
	}
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Read(path)
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("Read() error = %v (%T), want *SchemaError", err, err)
	}
	if se.Path != path {
		t.Errorf("SchemaError.Path = %q, want %q", se.Path, path)
	}
	if se.Field != "statistics.average_score" {
		t.Errorf("SchemaError.Field = %q, want statistics.average_score", se.Field)
	}
}
