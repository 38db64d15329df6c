package reporting

import (
	"fmt"
	"strings"
	"time"

	"token-call-tracker/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Call Performance Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	if r.Run != nil {
		sb.WriteString("## Run Summary\n\n")
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Run ID | %s |\n", r.Run.RunID))
		sb.WriteString(fmt.Sprintf("| Mode | %s |\n", r.Run.Mode))
		sb.WriteString(fmt.Sprintf("| Dispatched | %d |\n", r.Run.Dispatched))
		sb.WriteString(fmt.Sprintf("| Updated | %d |\n", r.Run.Updated))
		sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.Run.Failed))
		sb.WriteString(fmt.Sprintf("| Skipped | %d |\n", r.Run.Skipped))
		if r.Run.Cancelled > 0 {
			sb.WriteString(fmt.Sprintf("| Cancelled | %d |\n", r.Run.Cancelled))
		}
		sb.WriteString(fmt.Sprintf("| Duration | %s |\n", r.Run.Duration.Round(time.Millisecond)))
		sb.WriteString("\n")
	}

	o := r.Overview
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Open Positions | %d |\n", o.OpenPositions))
	sb.WriteString(fmt.Sprintf("| Tracked | %d |\n", o.Tracked))
	sb.WriteString(fmt.Sprintf("| Alive | %d |\n", o.Alive))
	sb.WriteString(fmt.Sprintf("| Dead | %d |\n", o.Dead))
	sb.WriteString(fmt.Sprintf("| Rugs | %d |\n", o.Rugs))
	sb.WriteString(fmt.Sprintf("| Avg Max Gain | %s |\n", formatPct(o.AvgMaxGain)))
	sb.WriteString(fmt.Sprintf("| Best Gain | %s |\n", formatPct(o.BestGain)))
	sb.WriteString(fmt.Sprintf("| Worst Loss | %s |\n", formatPct(o.WorstLoss)))
	sb.WriteString(fmt.Sprintf("| Dead Letters | %d |\n", r.DeadLetters))
	sb.WriteString("\n")

	sb.WriteString("## Sources\n\n")
	if len(r.Sources) > 0 {
		sb.WriteString("| Source | Tier | Calls | Traded | WinRate | AvgMaxGain | RugRate | HitRate |\n")
		sb.WriteString("|--------|------|-------|--------|---------|------------|---------|---------|\n")
		for _, s := range r.Sources {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %.2f | %.2f%% | %.2f | %.2f |\n",
				s.Source, s.Tier, s.TotalCalls, s.CallsTraded,
				s.WinRate, s.AvgMaxGain, s.RugRate, s.HitRate))
		}
	} else {
		sb.WriteString("No source stats available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderDeadLetters renders dead-letter entries as a Markdown table.
func RenderDeadLetters(entries []*domain.DeadLetterEntry) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## Dead Letters (%d)\n\n", len(entries)))
	if len(entries) == 0 {
		sb.WriteString("Queue is empty.\n")
		return sb.String()
	}

	sb.WriteString("| ID | Position | Token | Class | Retries | Last Failure | Reason |\n")
	sb.WriteString("|----|----------|-------|-------|---------|--------------|--------|\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %d | %s | %s |\n",
			e.ID, e.PositionID, e.Token, e.Class, e.RetryCount,
			time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339),
			strings.ReplaceAll(e.Reason, "|", "/")))
	}
	return sb.String()
}

func formatPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v)
}
