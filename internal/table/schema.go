// Package table validates, decodes and encodes the pipeline's tabular
// inputs and outputs.
package table

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/model"
)

// Validate compares a header row to a required column set. Missing lists
// required columns absent from header, in required order. Extra lists
// header columns that are neither required nor optional, sorted.
func Validate(header, required []string, optional ...string) (missing, extra []string) {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = struct{}{}
	}
	known := make(map[string]struct{}, len(required)+len(optional))
	for _, c := range required {
		known[c] = struct{}{}
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	for _, c := range optional {
		known[c] = struct{}{}
	}
	for h := range have {
		if _, ok := known[h]; !ok {
			extra = append(extra, h)
		}
	}
	sort.Strings(extra)
	return missing, extra
}

// CheckSchema validates header and returns the column index of every
// required and present optional column. Missing required columns fail with
// *model.SchemaError; extra columns are logged and ignored.
func CheckSchema(table string, header, required []string, optional ...string) (map[string]int, error) {
	missing, extra := Validate(header, required, optional...)
	if len(missing) > 0 {
		return nil, &model.SchemaError{Table: table, Missing: missing, Extra: extra}
	}
	if len(extra) > 0 {
		zap.L().Warn("table: ignoring extra columns",
			zap.String("table", table),
			zap.Strings("columns", extra),
		)
	}

	idx := make(map[string]int, len(required)+len(optional))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, seen := idx[h]; !seen {
			idx[h] = i
		}
	}
	return idx, nil
}

// cell returns the raw value of col in row, or "" when the column is absent
// or the row is short.
func cell(row []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
