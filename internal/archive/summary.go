package archive

import (
	"fmt"
	"time"

	"github.com/pavelanni/dialoglog/internal/model"
)

// Summary computes the cross-session aggregate report from the archive.
// The shape matches what scanning the log files directly produces, so both
// paths feed the same consumers.
func (s *Store) Summary() (*model.AggregateReport, error) {
	rep := &model.AggregateReport{
		GeneratedAt: time.Now(),
		GradeCounts: map[string]int{},
		Subjects:    []model.SubjectStats{},
	}

	err := s.db.QueryRow(
		`SELECT COUNT(*),
			COALESCE(SUM(CASE status WHEN 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE status WHEN 'aborted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE status WHEN 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(total_questions), 0),
			COALESCE(SUM(total_answers), 0),
			COALESCE(SUM(total_score), 0),
			COALESCE(SUM(max_possible_score), 0)
		 FROM sessions`,
	).Scan(&rep.Sessions, &rep.CompletedSessions, &rep.AbortedSessions, &rep.InProgressSessions,
		&rep.TotalQuestions, &rep.TotalAnswers, &rep.TotalScore, &rep.MaxPossibleScore)
	if err != nil {
		return nil, fmt.Errorf("aggregate sessions: %w", err)
	}
	if rep.TotalAnswers > 0 {
		avg := rep.TotalScore / float64(rep.TotalAnswers)
		rep.AverageScore = &avg
	}
	if rep.MaxPossibleScore > 0 {
		pct := rep.TotalScore / rep.MaxPossibleScore * 100
		rep.AveragePercentage = &pct
	}

	rows, err := s.db.Query(
		`SELECT grade_band, COUNT(*) FROM sessions WHERE grade_band != '' GROUP BY grade_band`,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate grades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var band string
		var count int
		if err := rows.Scan(&band, &count); err != nil {
			return nil, err
		}
		rep.GradeCounts[band] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subjects, err := s.db.Query(
		`SELECT subject, COUNT(*), COALESCE(SUM(total_answers), 0), COALESCE(SUM(total_score), 0)
		 FROM sessions GROUP BY subject ORDER BY subject`,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate subjects: %w", err)
	}
	defer subjects.Close()
	for subjects.Next() {
		var ss model.SubjectStats
		var score float64
		if err := subjects.Scan(&ss.Subject, &ss.Sessions, &ss.TotalAnswers, &score); err != nil {
			return nil, err
		}
		if ss.TotalAnswers > 0 {
			avg := score / float64(ss.TotalAnswers)
			ss.AverageScore = &avg
		}
		rep.Subjects = append(rep.Subjects, ss)
	}
	return rep, subjects.Err()
}
