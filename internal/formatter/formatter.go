// package formatter renders run summaries, quality reports, and history
// exports for terminal display and file output (CSV, JSON).
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/spindle/internal/models"
	"github.com/desertthunder/spindle/internal/shared"
	"github.com/desertthunder/spindle/internal/tasks"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// FormatRunSummary renders one pipeline run for the terminal.
func FormatRunSummary(summary *tasks.RunSummary) string {
	var b strings.Builder

	header := fmt.Sprintf("Run %s", summary.RunID)
	if summary.State == tasks.StateFailed {
		b.WriteString(failStyle.Render(header + " FAILED"))
	} else {
		b.WriteString(titleStyle.Render(header + " " + summary.State.String()))
	}
	b.WriteString("\n")

	writeField(&b, "Started", summary.StartedAt.Format(time.RFC3339))
	writeField(&b, "Duration", summary.Duration().Round(time.Millisecond).String())
	writeField(&b, "Extracted", fmt.Sprintf("%d top tracks, %d recent plays", summary.Extracted.TopTracks, summary.Extracted.Recent))
	writeField(&b, "Dropped", strconv.Itoa(summary.Dropped))
	writeField(&b, "Retries", strconv.Itoa(summary.Retries))

	if summary.Load != nil {
		writeField(&b, "Written", strconv.FormatInt(summary.Load.TotalWritten(), 10))
		for _, g := range summary.Load.Groups {
			line := fmt.Sprintf("  %s: %d/%d", g.Group, g.Written, g.Attempted)
			if g.Error != "" {
				line += " " + failStyle.Render("failed: "+g.Error)
			} else if g.Retried {
				line += subtleStyle.Render(" (retried)")
			}
			b.WriteString(line + "\n")
		}
	}

	if summary.Failure != "" {
		writeField(&b, "Failure", summary.Failure)
	}

	if summary.Quality != nil {
		b.WriteString(FormatQualityReport(summary.Quality))
	}

	return b.String()
}

// FormatQualityReport renders post-load check results for the terminal.
func FormatQualityReport(report *tasks.QualityReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Quality checks") + "\n")
	for _, c := range report.Checks {
		if c.Passed {
			b.WriteString(fmt.Sprintf("  %s %s (%d)\n", passStyle.Render("pass"), c.Name, c.Value))
		} else {
			b.WriteString(fmt.Sprintf("  %s %s: %s\n", failStyle.Render("FAIL"), c.Name, c.Message))
		}
	}
	return b.String()
}

// FormatRankings renders a top-track snapshot as a numbered list.
func FormatRankings(timeRange models.TimeRange, rankings []models.TopTrackRanking) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Top tracks (%s)", timeRange)) + "\n")
	if len(rankings) == 0 {
		b.WriteString(subtleStyle.Render("  no snapshot recorded") + "\n")
		return b.String()
	}
	for _, r := range rankings {
		b.WriteString(fmt.Sprintf("  %2d. %s\n", r.Rank, r.TrackID))
	}
	b.WriteString(subtleStyle.Render("  retrieved "+rankings[0].RetrievedAt.Format(time.RFC3339)) + "\n")
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render(label+":"), value))
}

// HistoryToCSV converts listening events to CSV with columns user_id,
// track_id, played_at, context_type.
func HistoryToCSV(events []models.ListeningEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"user_id", "track_id", "played_at", "context_type"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, event := range events {
		record := []string{
			event.UserID,
			event.TrackID,
			event.PlayedAt.UTC().Format(time.RFC3339),
			event.ContextType,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteHistoryExport writes listening events to a CSV file. The filename
// defaults to history_{userID}.csv.
func WriteHistoryExport(events []models.ListeningEvent, userID, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("history_%s.csv", userID)
	}

	data, err := HistoryToCSV(events)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return filepath, nil
}

// SummaryToJSON generates a pretty-printed JSON rendition of a run summary.
func SummaryToJSON(summary *tasks.RunSummary) ([]byte, error) {
	return shared.MarshalJSON(summary, true)
}
