package model

// ScoreTolerance is the absolute tolerance used when comparing stored
// floating-point statistics against values recomputed from the entries.
// Everything is derived from sums of small scores, so anything beyond
// rounding noise indicates a genuinely inconsistent record.
const ScoreTolerance = 1e-6

// ComputeStatistics derives the statistics block from the
// question-and-answer entries. AverageScore is set only when at least one
// answer was given; a session with no answers has no meaningful average.
func ComputeStatistics(qas []QAEntry) Statistics {
	stats := Statistics{TotalQuestions: len(qas)}
	for _, qa := range qas {
		if qa.Answer != nil {
			stats.TotalAnswers++
		}
		if qa.Evaluation != nil {
			stats.TotalScore += qa.Evaluation.TotalScore
		}
	}
	stats.MaxPossibleScore = float64(stats.TotalAnswers * MaxQuestionScore)
	if stats.TotalAnswers > 0 {
		avg := stats.TotalScore / float64(stats.TotalAnswers)
		stats.AverageScore = &avg
	}
	return stats
}

// Percentage returns the score as a share of the maximum possible score,
// in the range 0..100. It returns 0 when nothing was answered.
func (s Statistics) Percentage() float64 {
	if s.MaxPossibleScore <= 0 {
		return 0
	}
	return s.TotalScore / s.MaxPossibleScore * 100
}
