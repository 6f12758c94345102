package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"speakwell/internal/domain"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func printHistory(out io.Writer, records []domain.ExerciseRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "No practice results yet.")
		return err
	}
	tw := newTable(out)
	fmt.Fprintln(tw, "WHEN\tTYPE\tSCORE\tEXERCISE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04"),
			firstNonEmpty(r.ExerciseType, "general"),
			r.Score,
			truncate(r.ExerciseText, 48),
		)
	}
	return tw.Flush()
}

func printWeakAreas(out io.Writer, areas []domain.WeakArea) error {
	if len(areas) == 0 {
		_, err := fmt.Fprintln(out, "No weak areas. Keep it up!")
		return err
	}
	tw := newTable(out)
	fmt.Fprintln(tw, "TYPE\tAVERAGE")
	for _, a := range areas {
		fmt.Fprintf(tw, "%s\t%.1f\n", a.Type, a.AverageScore)
	}
	return tw.Flush()
}

func printProgress(out io.Writer, stats domain.UserStats, daily []domain.DailyProgress) error {
	fmt.Fprintf(out, "Sessions: %d  Average: %.1f", stats.TotalSessions, stats.AverageScore)
	if !stats.LastPractice.IsZero() {
		fmt.Fprintf(out, "  Last practice: %s", stats.LastPractice.Local().Format(time.DateOnly))
	}
	fmt.Fprintln(out)
	if len(daily) == 0 {
		_, err := fmt.Fprintln(out, "No practice in this period.")
		return err
	}
	tw := newTable(out)
	fmt.Fprintln(tw, "DATE\tSESSIONS\tAVERAGE\t")
	for _, d := range daily {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%s\n", d.Date, d.Sessions, d.AverageScore, bar(d.AverageScore))
	}
	return tw.Flush()
}

func printPhysioProgress(out io.Writer, report domain.ProgressReport) error {
	fmt.Fprintf(out, "Total reps: %d  Total time: %s\n",
		report.TotalReps, formatSeconds(report.TotalDurationSeconds))
	if report.LastUpdated != "" {
		fmt.Fprintf(out, "Last updated: %s\n", report.LastUpdated)
	}
	if len(report.SessionHistory) == 0 {
		return nil
	}
	tw := newTable(out)
	fmt.Fprintln(tw, "DATE\tREPS\tDURATION")
	for _, s := range report.SessionHistory {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Date, s.Reps, formatSeconds(s.DurationSeconds))
	}
	return tw.Flush()
}

func formatSeconds(seconds float64) string {
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

// bar renders a 0-100 score as up to 20 blocks.
func bar(score float64) string {
	n := int(score / 5)
	if n < 0 {
		n = 0
	}
	if n > 20 {
		n = 20
	}
	return strings.Repeat("#", n)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
