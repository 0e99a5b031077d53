package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/costdb/internal/model"
)

// FormatReport renders a human-readable summary of a run.
func FormatReport(in model.RunInput, res *Result) string {
	var b strings.Builder

	b.WriteString("# Cost Analytics Run\n")
	if res.RunID != "" {
		fmt.Fprintf(&b, "Run ID: %s\n", res.RunID)
	}
	fmt.Fprintf(&b, "Raw input: %s\n", in.RawPath)
	if in.StandardizedPath != "" {
		fmt.Fprintf(&b, "Standardized input: %s\n", in.StandardizedPath)
	}
	fmt.Fprintf(&b, "Output dir: %s\n\n", in.OutputDir)

	s := res.Summary
	if s == nil {
		s = &model.RunSummary{}
	}

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Raw rows: %d\n", s.RawRows)
	fmt.Fprintf(&b, "- Dropped rows: %d\n", s.DroppedRows)
	fmt.Fprintf(&b, "- Clean rows: %d\n", s.CleanRows)
	fmt.Fprintf(&b, "- Canonical items: %d (%.2f%% reduction)\n", s.CanonicalItems, s.ReductionPercent)
	fmt.Fprintf(&b, "- Cost groups: %d\n", s.Aggregates)
	fmt.Fprintf(&b, "- Anomalies flagged: %d\n\n", s.Flagged)

	b.WriteString("## Phases\n")
	for _, p := range s.Phases {
		fmt.Fprintf(&b, "- %s: %s (%dms, %d rows)\n", p.Name, p.Status, p.Duration, p.Rows)
		if p.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", p.Error)
		}
	}
	b.WriteString("\n")

	if len(res.Rejected) > 0 {
		b.WriteString("## Rejected Rows\n")
		reasons := rejectionReasons(res.Rejected)
		keys := make([]string, 0, len(reasons))
		for k := range reasons {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %d\n", k, reasons[k])
		}
		b.WriteString("\n")
	}

	if res.Outputs != nil && len(res.Outputs.Anomalies) > 0 {
		b.WriteString("## Anomalies\n")
		for _, a := range res.Outputs.Anomalies {
			fmt.Fprintf(&b, "- %s (%s): %s, expected %s: %s\n",
				a.POID, a.ItemCode, formatPrice(a.UnitPrice), formatPrice(a.ExpectedPrice), a.AnomalyReason)
		}
		b.WriteString("\n")
	}

	if len(res.Files) > 0 {
		b.WriteString("## Files\n")
		for _, f := range res.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	return b.String()
}

func formatPrice(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
