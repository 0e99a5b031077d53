package table

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cast"

	"github.com/sells-group/costdb/internal/fetcher"
	"github.com/sells-group/costdb/internal/model"
)

// DecodeRawPurchaseOrders converts rows (header first) into purchase
// orders. Values stay as text; blank rows are skipped.
func DecodeRawPurchaseOrders(rows [][]string) ([]model.RawPurchaseOrder, error) {
	header, body := split(rows)
	idx, err := CheckSchema(model.TableRawPurchaseOrders, header, model.RawPurchaseOrderColumns)
	if err != nil {
		return nil, err
	}

	out := make([]model.RawPurchaseOrder, 0, len(body))
	for _, row := range body {
		if isBlankRow(row) {
			continue
		}
		out = append(out, model.RawPurchaseOrder{
			POID:            cell(row, idx, model.ColPOID),
			ItemDescription: cell(row, idx, model.ColItemDescription),
			UnitPrice:       cell(row, idx, model.ColUnitPrice),
			Quantity:        cell(row, idx, model.ColQuantity),
			Unit:            cell(row, idx, model.ColUnit),
			PODate:          cell(row, idx, model.ColPODate),
			Region:          cell(row, idx, model.ColRegion),
			Department:      cell(row, idx, model.ColDepartment),
			Supplier:        cell(row, idx, model.ColSupplier),
		})
	}
	return out, nil
}

// DecodeStandardizedItems converts an externally supplied standardized item
// table. The category column is optional and defaults to UNKNOWN. A
// confidence score that is not a number in [0, 1] fails validation.
func DecodeStandardizedItems(rows [][]string) ([]model.StandardizedItem, error) {
	header, body := split(rows)
	idx, err := CheckSchema(model.TableStandardizedItems, header, model.StandardizedItemInputColumns,
		model.ColCategory, model.ColItemDescription)
	if err != nil {
		return nil, err
	}
	_, hasCategory := idx[model.ColCategory]

	out := make([]model.StandardizedItem, 0, len(body))
	for _, row := range body {
		if isBlankRow(row) {
			continue
		}
		poID := strings.TrimSpace(cell(row, idx, model.ColPOID))
		raw := strings.TrimSpace(cell(row, idx, model.ColConfidenceScore))
		score, err := cast.ToFloat64E(raw)
		if raw == "" || err != nil || math.IsNaN(score) || score < 0 || score > 1 {
			return nil, &model.ValidationError{
				Table:  model.TableStandardizedItems,
				Key:    poID,
				Reason: "confidence_score must be a number between 0 and 1, got " + strconv.Quote(raw),
			}
		}

		category := model.DefaultCategory
		if hasCategory {
			if c := strings.TrimSpace(cell(row, idx, model.ColCategory)); c != "" {
				category = c
			}
		}
		out = append(out, model.StandardizedItem{
			POID:              poID,
			ItemDescription:   cell(row, idx, model.ColItemDescription),
			CanonicalItemName: strings.TrimSpace(cell(row, idx, model.ColCanonicalItemName)),
			ItemCode:          strings.TrimSpace(cell(row, idx, model.ColItemCode)),
			Category:          category,
			ConfidenceScore:   score,
		})
	}
	return out, nil
}

// LoadRawPurchaseOrders reads and decodes the raw purchase order table at
// location.
func LoadRawPurchaseOrders(ctx context.Context, f fetcher.Fetcher, location string) ([]model.RawPurchaseOrder, error) {
	rows, err := fetcher.ReadRows(ctx, f, location)
	if err != nil {
		return nil, eris.Wrap(err, "table: load raw purchase orders")
	}
	return DecodeRawPurchaseOrders(rows)
}

// LoadStandardizedItems reads and decodes a standardized item table at
// location.
func LoadStandardizedItems(ctx context.Context, f fetcher.Fetcher, location string) ([]model.StandardizedItem, error) {
	rows, err := fetcher.ReadRows(ctx, f, location)
	if err != nil {
		return nil, eris.Wrap(err, "table: load standardized items")
	}
	return DecodeStandardizedItems(rows)
}

func split(rows [][]string) (header []string, body [][]string) {
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], rows[1:]
}
