package dialog

import (
	"context"
	"fmt"
	"math"

	"github.com/pavelanni/dialoglog/internal/i18n"
	"github.com/pavelanni/dialoglog/internal/model"
)

// Grade band keys. Records persist the localized label for display, while
// the archive and aggregate reports key on these stable identifiers.
const (
	BandExcellent      = "excellent"
	BandGood           = "good"
	BandSatisfactory   = "satisfactory"
	BandUnsatisfactory = "unsatisfactory"
	BandCritical       = "critical"
	BandUndetermined   = "undetermined"
)

var bandMessages = map[string]string{
	BandExcellent:      "GradeExcellent",
	BandGood:           "GradeGood",
	BandSatisfactory:   "GradeSatisfactory",
	BandUnsatisfactory: "GradeUnsatisfactory",
	BandCritical:       "GradeCritical",
	BandUndetermined:   "GradeUndetermined",
}

// GradeBand maps a score percentage to its grade band. The percentage is
// rounded to one decimal first, matching how reports display it, so a
// session graded 89.97% lands in the same band its report shows.
func GradeBand(percentage float64) string {
	percentage = round1(percentage)
	switch {
	case percentage >= 90:
		return BandExcellent
	case percentage >= 75:
		return BandGood
	case percentage >= 60:
		return BandSatisfactory
	case percentage >= 40:
		return BandUnsatisfactory
	default:
		return BandCritical
	}
}

// GradeLabel returns the localized display label for a grade band.
func GradeLabel(ctx context.Context, band string) string {
	id, ok := bandMessages[band]
	if !ok {
		id = "GradeUndetermined"
	}
	return i18n.T(ctx, id)
}

// GradeInfoFor grades the earned points against the maximum possible and
// fills in the localized label and description. A session where nothing
// could be scored gets the undetermined grade.
func GradeInfoFor(ctx context.Context, stats model.Statistics) model.GradeInfo {
	if stats.MaxPossibleScore <= 0 {
		return model.GradeInfo{
			Grade:       i18n.T(ctx, "GradeUndetermined"),
			Percentage:  0,
			Points:      formatPoints(0, 0),
			Description: i18n.T(ctx, "GradeUndeterminedDesc"),
		}
	}
	pct := round1(stats.Percentage())
	band := GradeBand(pct)
	return model.GradeInfo{
		Grade:       i18n.T(ctx, bandMessages[band]),
		Percentage:  pct,
		Points:      formatPoints(stats.TotalScore, stats.MaxPossibleScore),
		Description: i18n.T(ctx, bandMessages[band]+"Desc"),
	}
}

func formatPoints(earned, possible float64) string {
	if possible <= 0 {
		return "0/0"
	}
	return fmt.Sprintf("%.1f/%.0f", earned, possible)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// FormatDuration renders elapsed seconds the way session records show it:
// seconds under a minute, whole minutes under an hour, hours and minutes
// beyond that.
func FormatDuration(ctx context.Context, seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	minutes := total / 60
	switch {
	case minutes < 1:
		return i18n.Td(ctx, "DurationSeconds", map[string]any{"Seconds": total})
	case minutes < 60:
		return i18n.Td(ctx, "DurationMinutes", map[string]any{"Minutes": minutes})
	default:
		return i18n.Td(ctx, "DurationHoursMinutes", map[string]any{
			"Hours":   minutes / 60,
			"Minutes": minutes % 60,
		})
	}
}
