package dialog

import (
	"sort"
	"time"

	"github.com/pavelanni/dialoglog/internal/model"
)

// Aggregate folds many dialog log records into one cross-session report.
// Grades are counted for completed sessions only; sessions that never had
// anything scored count under the undetermined band.
func Aggregate(records []*model.DialogLog, generatedAt time.Time) *model.AggregateReport {
	rep := &model.AggregateReport{
		GeneratedAt: generatedAt,
		GradeCounts: map[string]int{},
		Subjects:    []model.SubjectStats{},
	}

	type subjectAcc struct {
		sessions int
		answers  int
		score    float64
	}
	subjects := map[string]*subjectAcc{}

	for _, rec := range records {
		rep.Sessions++
		switch rec.SessionInfo.Status {
		case model.StatusCompleted:
			rep.CompletedSessions++
		case model.StatusAborted:
			rep.AbortedSessions++
		default:
			rep.InProgressSessions++
		}

		st := rec.Statistics
		rep.TotalQuestions += st.TotalQuestions
		rep.TotalAnswers += st.TotalAnswers
		rep.TotalScore += st.TotalScore
		rep.MaxPossibleScore += st.MaxPossibleScore

		if rec.SessionInfo.Status == model.StatusCompleted {
			band := BandUndetermined
			if st.MaxPossibleScore > 0 {
				band = GradeBand(st.Percentage())
			}
			rep.GradeCounts[band]++
		}

		subject := rec.ExamConfig.TopicInfo.Subject
		acc := subjects[subject]
		if acc == nil {
			acc = &subjectAcc{}
			subjects[subject] = acc
		}
		acc.sessions++
		acc.answers += st.TotalAnswers
		acc.score += st.TotalScore
	}

	if rep.TotalAnswers > 0 {
		avg := rep.TotalScore / float64(rep.TotalAnswers)
		rep.AverageScore = &avg
	}
	if rep.MaxPossibleScore > 0 {
		pct := rep.TotalScore / rep.MaxPossibleScore * 100
		rep.AveragePercentage = &pct
	}

	names := make([]string, 0, len(subjects))
	for name := range subjects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		acc := subjects[name]
		ss := model.SubjectStats{
			Subject:      name,
			Sessions:     acc.sessions,
			TotalAnswers: acc.answers,
		}
		if acc.answers > 0 {
			avg := acc.score / float64(acc.answers)
			ss.AverageScore = &avg
		}
		rep.Subjects = append(rep.Subjects, ss)
	}
	return rep
}
