package logfile

import (
	"fmt"
	"math"

	"github.com/pavelanni/dialoglog/internal/model"
)

// Validate checks that rec is a complete, internally consistent dialog log
// record: all required fields are set and every consistency rule holds.
// Inconsistencies are reported as *SchemaError.
func Validate(rec *model.DialogLog) error {
	if err := requiredFields(rec); err != nil {
		return err
	}
	return invariants(rec)
}

func requiredFields(rec *model.DialogLog) error {
	si := rec.SessionInfo
	if si.SessionID == "" {
		return fmt.Errorf("required field %q absent", "session_info.session_id")
	}
	if si.StartTime.IsZero() {
		return fmt.Errorf("required field %q absent", "session_info.start_time")
	}
	if si.Status == "" {
		return fmt.Errorf("required field %q absent", "session_info.status")
	}
	ti := rec.ExamConfig.TopicInfo
	if ti.Name == "" {
		return fmt.Errorf("required field %q absent", "exam_config.topic_info.name")
	}
	if ti.Subject == "" {
		return fmt.Errorf("required field %q absent", "exam_config.topic_info.subject")
	}
	if rec.ExamConfig.MaxQuestions < 1 {
		return fmt.Errorf("required field %q absent or not positive", "exam_config.max_questions")
	}
	return nil
}

func invariants(rec *model.DialogLog) error {
	si := rec.SessionInfo
	if len(si.SessionID) != 8 {
		return &SchemaError{Field: "session_info.session_id", Reason: fmt.Sprintf("must be 8 characters, got %d", len(si.SessionID))}
	}
	switch si.Status {
	case model.StatusInProgress, model.StatusCompleted, model.StatusAborted:
	default:
		return &SchemaError{Field: "session_info.status", Reason: fmt.Sprintf("unknown status %q", si.Status)}
	}
	if si.DurationSeconds < 0 {
		return &SchemaError{Field: "session_info.duration_seconds", Reason: "must not be negative"}
	}
	if si.Status == model.StatusInProgress {
		if si.EndTime != nil {
			return &SchemaError{Field: "session_info.end_time", Reason: "set while session is still in progress"}
		}
	} else {
		if si.EndTime == nil {
			return &SchemaError{Field: "session_info.end_time", Reason: fmt.Sprintf("absent for %s session", si.Status)}
		}
		if si.EndTime.Before(si.StartTime) {
			return &SchemaError{Field: "session_info.end_time", Reason: "precedes start_time"}
		}
	}
	if si.Status == model.StatusCompleted && rec.FinalReport == nil {
		return &SchemaError{Field: "final_report", Reason: "absent for completed session"}
	}
	if si.Status != model.StatusCompleted && rec.FinalReport != nil {
		return &SchemaError{Field: "final_report", Reason: fmt.Sprintf("present for %s session", si.Status)}
	}

	for i, msg := range rec.Messages {
		switch msg.Role {
		case model.RoleAssistant, model.RoleUser:
		default:
			return &SchemaError{Field: fmt.Sprintf("messages[%d].role", i), Reason: fmt.Sprintf("unknown role %q", msg.Role)}
		}
		switch msg.Type {
		case model.MessageText, model.MessageQuestion, model.MessageEvaluation:
		default:
			return &SchemaError{Field: fmt.Sprintf("messages[%d].type", i), Reason: fmt.Sprintf("unknown message type %q", msg.Type)}
		}
	}

	for i, qa := range rec.QuestionsAndAnswers {
		field := fmt.Sprintf("questions_and_answers[%d]", i)
		if qa.Question.QuestionNumber != i+1 {
			return &SchemaError{
				Field:  field + ".question.question_number",
				Reason: fmt.Sprintf("got %d, want %d: numbers must run 1..N without gaps", qa.Question.QuestionNumber, i+1),
			}
		}
		if qa.Question.Text == "" {
			return &SchemaError{Field: field + ".question.question", Reason: "empty question text"}
		}
		if qa.Evaluation != nil {
			if qa.Answer == nil {
				return &SchemaError{Field: field + ".evaluation", Reason: "evaluation present without an answer"}
			}
			if err := checkScore(field+".evaluation.total_score", qa.Evaluation.TotalScore); err != nil {
				return err
			}
			for name, score := range qa.Evaluation.CriteriaScores {
				if err := checkScore(fmt.Sprintf("%s.evaluation.criteria_scores.%s", field, name), score); err != nil {
					return err
				}
			}
		}
	}

	want := model.ComputeStatistics(rec.QuestionsAndAnswers)
	got := rec.Statistics
	if got.TotalQuestions != want.TotalQuestions {
		return &SchemaError{
			Field:  "statistics.total_questions",
			Reason: fmt.Sprintf("got %d, want %d (number of recorded questions)", got.TotalQuestions, want.TotalQuestions),
		}
	}
	if got.TotalAnswers != want.TotalAnswers {
		return &SchemaError{
			Field:  "statistics.total_answers",
			Reason: fmt.Sprintf("got %d, want %d (number of recorded answers)", got.TotalAnswers, want.TotalAnswers),
		}
	}
	if math.Abs(got.TotalScore-want.TotalScore) > model.ScoreTolerance {
		return &SchemaError{
			Field:  "statistics.total_score",
			Reason: fmt.Sprintf("got %g, want %g (sum of evaluation scores)", got.TotalScore, want.TotalScore),
		}
	}
	if math.Abs(got.MaxPossibleScore-want.MaxPossibleScore) > model.ScoreTolerance {
		return &SchemaError{
			Field:  "statistics.max_possible_score",
			Reason: fmt.Sprintf("got %g, want %g (%d per answered question)", got.MaxPossibleScore, want.MaxPossibleScore, model.MaxQuestionScore),
		}
	}
	switch {
	case want.AverageScore == nil && got.AverageScore != nil:
		return &SchemaError{Field: "statistics.average_score", Reason: "present although nothing was answered"}
	case want.AverageScore != nil && got.AverageScore == nil:
		return &SchemaError{Field: "statistics.average_score", Reason: "absent although answers were recorded"}
	case want.AverageScore != nil && math.Abs(*got.AverageScore-*want.AverageScore) > model.ScoreTolerance:
		return &SchemaError{
			Field:  "statistics.average_score",
			Reason: fmt.Sprintf("got %g, want %g (total_score / total_answers)", *got.AverageScore, *want.AverageScore),
		}
	}
	return nil
}

func checkScore(field string, score float64) error {
	if score < 0 || score > model.MaxQuestionScore {
		return &SchemaError{Field: field, Reason: fmt.Sprintf("score %g outside 0..%d", score, model.MaxQuestionScore)}
	}
	return nil
}
