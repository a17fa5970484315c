package model

import "time"

// AggregateReport is the top-level JSON structure produced when statistics
// are collected across many dialog logs, either by scanning a directory of
// log files or by querying the archive database.
type AggregateReport struct {
	GeneratedAt        time.Time      `json:"generated_at"`
	Sessions           int            `json:"sessions"`
	CompletedSessions  int            `json:"completed_sessions"`
	AbortedSessions    int            `json:"aborted_sessions"`
	InProgressSessions int            `json:"in_progress_sessions"`
	TotalQuestions     int            `json:"total_questions"`
	TotalAnswers       int            `json:"total_answers"`
	TotalScore         float64        `json:"total_score"`
	MaxPossibleScore   float64        `json:"max_possible_score"`
	AverageScore       *float64       `json:"average_score,omitempty"`
	AveragePercentage  *float64       `json:"average_percentage,omitempty"`
	GradeCounts        map[string]int `json:"grade_counts"`
	Subjects           []SubjectStats `json:"subjects"`
}

// SubjectStats aggregates the sessions that examined one subject.
type SubjectStats struct {
	Subject      string   `json:"subject"`
	Sessions     int      `json:"sessions"`
	TotalAnswers int      `json:"total_answers"`
	AverageScore *float64 `json:"average_score,omitempty"`
}
