package table

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/costdb/internal/model"
)

// Output file names inside the output directory.
const (
	StandardizedItemsFile = "standardized_items.csv"
	CostAnalyticsFile     = "cost_analytics.csv"
	AnomaliesFile         = "anomalies.csv"
	WorkbookFile          = "costdb_outputs.xlsx"
)

// StandardizedItemRows renders items with a header row in the fixed column order.
func StandardizedItemRows(items []model.StandardizedItem) [][]string {
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, model.StandardizedItemColumns)
	for _, it := range items {
		rows = append(rows, []string{
			it.POID,
			it.ItemDescription,
			it.CanonicalItemName,
			it.ItemCode,
			it.Category,
			formatFloat(it.ConfidenceScore),
		})
	}
	return rows
}

// CostAnalyticsRows renders aggregates with a header row in the fixed column order.
func CostAnalyticsRows(aggs []model.CostAggregate) [][]string {
	rows := make([][]string, 0, len(aggs)+1)
	rows = append(rows, model.CostAnalyticsColumns)
	for _, a := range aggs {
		rows = append(rows, []string{
			a.ItemCode,
			a.CanonicalItemName,
			a.Region,
			a.Supplier,
			formatFloat(a.AvgPrice),
			formatFloat(a.MedianPrice),
			formatFloat(a.MinPrice),
			formatFloat(a.MaxPrice),
			formatFloat(a.PriceStd),
			string(a.TrendDirection),
		})
	}
	return rows
}

// AnomalyRows renders anomalies with a header row in the fixed column
// order. The header is present even when there are no anomalies.
func AnomalyRows(anomalies []model.AnomalyRecord) [][]string {
	rows := make([][]string, 0, len(anomalies)+1)
	rows = append(rows, model.AnomalyColumns)
	for _, a := range anomalies {
		rows = append(rows, []string{
			a.POID,
			a.ItemCode,
			formatFloat(a.UnitPrice),
			formatFloat(a.ExpectedPrice),
			formatBool(a.AnomalyFlag),
			a.AnomalyReason,
		})
	}
	return rows
}

// EncodeCSV renders rows as CSV.
func EncodeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, eris.Wrap(err, "table: encode csv")
	}
	return buf.Bytes(), nil
}

// WriteCSV replaces path with rows. Readers see either the old or the new
// file, never a partial one.
func WriteCSV(path string, rows [][]string) error {
	data, err := EncodeCSV(rows)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// WriteOutputs encodes all three output tables, then writes them into dir.
// Nothing is written if any table fails to encode. It returns the paths
// written, in table order.
func WriteOutputs(dir string, out *model.Outputs) ([]string, error) {
	files := []struct {
		name string
		rows [][]string
	}{
		{StandardizedItemsFile, StandardizedItemRows(out.StandardizedItems)},
		{CostAnalyticsFile, CostAnalyticsRows(out.CostAnalytics)},
		{AnomaliesFile, AnomalyRows(out.Anomalies)},
	}

	encoded := make([][]byte, len(files))
	for i, f := range files {
		data, err := EncodeCSV(f.rows)
		if err != nil {
			return nil, eris.Wrapf(err, "table: encode %s", f.name)
		}
		encoded[i] = data
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "table: create output dir %s", dir)
	}

	paths := make([]string, 0, len(files))
	for i, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeAtomic(path, encoded[i]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteWorkbook writes all three tables as sheets of one XLSX workbook.
func WriteWorkbook(path string, out *model.Outputs) error {
	f := xlsx.NewFile()
	sheets := []struct {
		name string
		rows [][]string
	}{
		{model.TableStandardizedItems, StandardizedItemRows(out.StandardizedItems)},
		{model.TableCostAnalytics, CostAnalyticsRows(out.CostAnalytics)},
		{model.TableAnomalies, AnomalyRows(out.Anomalies)},
	}
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.name)
		if err != nil {
			return eris.Wrapf(err, "table: add sheet %s", s.name)
		}
		for _, r := range s.rows {
			row := sheet.AddRow()
			for _, v := range r {
				row.AddCell().SetString(v)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return eris.Wrap(err, "table: encode workbook")
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "table: create temp file for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrapf(err, "table: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "table: close %s", path)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return eris.Wrapf(err, "table: chmod %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "table: rename into %s", path)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatBool matches the capitalized booleans the dashboard already parses.
func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
