// Package progress derives practice statistics from stored exercise results.
package progress

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"speakwell/internal/domain"
)

const (
	// DefaultHistoryLimit is the number of results shown in the history view.
	DefaultHistoryLimit = 20
	// WeakAreaWindow is how many recent results are considered for weak areas.
	WeakAreaWindow = 50
	// WeakAreaThreshold is the average score under which an exercise type is weak.
	WeakAreaThreshold = 70.0
	// ProgressWindow is how many recent results feed the daily progress chart.
	ProgressWindow = 100
	// DefaultProgressDays bounds the daily progress chart.
	DefaultProgressDays = 30

	dateLayout = "2006-01-02"
)

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ExerciseType returns the stored type or "general" when it is missing.
func ExerciseType(record domain.ExerciseRecord) string {
	if t := strings.TrimSpace(record.ExerciseType); t != "" {
		return t
	}
	return "general"
}

// UpdateStats folds one new result into the running user summary.
func UpdateStats(prev domain.UserStats, record domain.ExerciseRecord, at time.Time) domain.UserStats {
	total := prev.TotalSessions + 1
	sum := prev.AverageScore*float64(prev.TotalSessions) + record.Score

	issues := append([]string(nil), prev.SpeechIssues...)
	if t := strings.TrimSpace(record.ExerciseType); t != "" && !lo.Contains(issues, t) {
		issues = append(issues, t)
	}

	return domain.UserStats{
		TotalSessions: total,
		AverageScore:  Round1(sum / float64(total)),
		SpeechIssues:  issues,
		LastPractice:  at.UTC(),
	}
}

// WeakAreas returns exercise types whose average score is under the threshold,
// lowest first. Only the first WeakAreaWindow records are used, so callers pass
// results newest first.
func WeakAreas(records []domain.ExerciseRecord) []domain.WeakArea {
	if len(records) > WeakAreaWindow {
		records = records[:WeakAreaWindow]
	}

	byType := lo.GroupBy(records, ExerciseType)
	areas := lo.MapToSlice(byType, func(t string, group []domain.ExerciseRecord) domain.WeakArea {
		return domain.WeakArea{Type: t, AverageScore: averageScore(group)}
	})
	areas = lo.Filter(areas, func(area domain.WeakArea, _ int) bool {
		return area.AverageScore < WeakAreaThreshold
	})
	for i := range areas {
		areas[i].AverageScore = Round1(areas[i].AverageScore)
	}

	slices.SortFunc(areas, func(a, b domain.WeakArea) int {
		if c := cmp.Compare(a.AverageScore, b.AverageScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
	return areas
}

// Daily groups results by UTC calendar day, oldest first. Only the first
// ProgressWindow records are used and, when days > 0, only days within the
// last `days` days of now.
func Daily(records []domain.ExerciseRecord, days int, now time.Time) []domain.DailyProgress {
	if len(records) > ProgressWindow {
		records = records[:ProgressWindow]
	}

	records = lo.Filter(records, func(r domain.ExerciseRecord, _ int) bool {
		return !r.Timestamp.IsZero()
	})
	if days > 0 {
		cutoff := now.UTC().AddDate(0, 0, -days).Format(dateLayout)
		records = lo.Filter(records, func(r domain.ExerciseRecord, _ int) bool {
			return r.Timestamp.UTC().Format(dateLayout) > cutoff
		})
	}

	byDay := lo.GroupBy(records, func(r domain.ExerciseRecord) string {
		return r.Timestamp.UTC().Format(dateLayout)
	})
	daily := lo.MapToSlice(byDay, func(day string, group []domain.ExerciseRecord) domain.DailyProgress {
		return domain.DailyProgress{
			Date:         day,
			AverageScore: Round1(averageScore(group)),
			Sessions:     len(group),
		}
	})

	slices.SortFunc(daily, func(a, b domain.DailyProgress) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return daily
}

// NewestFirst sorts records by timestamp, newest first, and truncates to limit when limit > 0.
func NewestFirst(records []domain.ExerciseRecord, limit int) []domain.ExerciseRecord {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.ExerciseRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func averageScore(records []domain.ExerciseRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	total := lo.SumBy(records, func(r domain.ExerciseRecord) float64 { return r.Score })
	return total / float64(len(records))
}
