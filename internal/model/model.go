package model

import (
	"time"

	"github.com/google/uuid"
)

// MaxQuestionScore is the maximum score a single question evaluation can award.
const MaxQuestionScore = 10

// SessionStatus represents the status of an exam dialog session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAborted    SessionStatus = "aborted"
)

// Role represents a dialog message author.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// MessageType classifies a dialog message.
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageQuestion   MessageType = "question"
	MessageEvaluation MessageType = "evaluation"
)

// TopicType tells whether the exam topic came from the predefined catalog
// or was entered by the user.
type TopicType string

const (
	TopicPredefined TopicType = "predefined"
	TopicCustom     TopicType = "custom"
)

// SessionInfo holds the identity and timing of one exam dialog session.
type SessionInfo struct {
	SessionID         string        `json:"session_id"`
	StudentName       string        `json:"student_name"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	Status            SessionStatus `json:"status"`
	DurationSeconds   float64       `json:"duration_seconds"`
	DurationFormatted string        `json:"duration_formatted"`
}

// TopicInfo describes the exam topic.
type TopicInfo struct {
	Name       string    `json:"name"`
	Subject    string    `json:"subject"`
	Difficulty string    `json:"difficulty"`
	Type       TopicType `json:"type"`
}

// ExamConfig holds the exam parameters the session was started with.
type ExamConfig struct {
	TopicInfo         TopicInfo `json:"topic_info"`
	MaxQuestions      int       `json:"max_questions"`
	UseThemeStructure bool      `json:"use_theme_structure"`
}

// Message is a single entry in the dialog transcript.
type Message struct {
	Timestamp time.Time      `json:"timestamp"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Type      MessageType    `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Question is the question part of a QA entry.
type Question struct {
	Timestamp      time.Time      `json:"timestamp"`
	QuestionNumber int            `json:"question_number"`
	Text           string         `json:"question"`
	TopicLevel     string         `json:"topic_level"`
	QuestionType   string         `json:"question_type"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Answer is the student's answer to a question. Absent when the student
// did not respond.
type Answer struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Evaluation is the graded assessment of one answer. Absent until grading.
type Evaluation struct {
	Timestamp      time.Time          `json:"timestamp"`
	TotalScore     float64            `json:"total_score"`
	CriteriaScores map[string]float64 `json:"criteria_scores"`
	Strengths      string             `json:"strengths"`
	Weaknesses     string             `json:"weaknesses"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
}

// QAEntry groups one question with its answer and evaluation.
type QAEntry struct {
	Question   Question    `json:"question"`
	Answer     *Answer     `json:"answer,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

// GradeInfo is the final grade summary.
type GradeInfo struct {
	Grade       string  `json:"grade"`
	Percentage  float64 `json:"percentage"`
	Points      string  `json:"points"`
	Description string  `json:"description"`
}

// ReportData is the payload of the final report.
type ReportData struct {
	GradeInfo       GradeInfo `json:"grade_info"`
	Recommendations []string  `json:"recommendations"`
}

// FinalReport is produced when a session completes. A record carries it
// if and only if the session status is completed.
type FinalReport struct {
	Timestamp  time.Time  `json:"timestamp"`
	ReportData ReportData `json:"report_data"`
}

// Statistics summarizes the QA entries of a record. All fields are derived
// from questions_and_answers and must stay consistent with it.
type Statistics struct {
	TotalQuestions   int      `json:"total_questions"`
	TotalAnswers     int      `json:"total_answers"`
	AverageScore     *float64 `json:"average_score,omitempty"`
	TotalScore       float64  `json:"total_score"`
	MaxPossibleScore float64  `json:"max_possible_score"`
}

// DialogLog is the top-level record persisted for one exam dialog session,
// one JSON document per session.
type DialogLog struct {
	SessionInfo         SessionInfo  `json:"session_info"`
	ExamConfig          ExamConfig   `json:"exam_config"`
	Messages            []Message    `json:"messages"`
	QuestionsAndAnswers []QAEntry    `json:"questions_and_answers"`
	FinalReport         *FinalReport `json:"final_report,omitempty"`
	Statistics          Statistics   `json:"statistics"`
}

// NewSessionID generates an 8-character session identifier.
func NewSessionID() string {
	return uuid.New().String()[:8]
}
