package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the per-source table as CSV string.
func RenderCSV(rows []SourceRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("source,tier,total_calls,calls_traded,win_rate,avg_max_gain,rug_rate,hit_rate,last_updated\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%.6f,%.6f,%.6f,%.6f,%d\n",
			csvField(r.Source),
			r.Tier,
			r.TotalCalls,
			r.CallsTraded,
			r.WinRate,
			r.AvgMaxGain,
			r.RugRate,
			r.HitRate,
			r.LastUpdated,
		))
	}

	return sb.String()
}

func csvField(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
