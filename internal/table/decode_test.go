package table

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/costdb/internal/fetcher"
	"github.com/sells-group/costdb/internal/model"
)

var rawHeader = []string{"po_id", "item_description", "unit_price", "quantity", "unit", "po_date", "region", "department", "supplier"}

func TestDecodeRawPurchaseOrders(t *testing.T) {
	t.Parallel()

	rows := [][]string{
		append([]string{"buyer_note"}, rawHeader...),
		{"urgent", "PO-1", "CS Pipe 100mm", "-5", "3", "m", "2024-01-15", "North", "Maintenance", "Acme"},
		{"", "", "", "", "", "", "", "", "", ""},
		{"", "PO-2", "Gate valve"},
	}

	got, err := DecodeRawPurchaseOrders(rows)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.RawPurchaseOrder{
		POID:            "PO-1",
		ItemDescription: "CS Pipe 100mm",
		UnitPrice:       "-5",
		Quantity:        "3",
		Unit:            "m",
		PODate:          "2024-01-15",
		Region:          "North",
		Department:      "Maintenance",
		Supplier:        "Acme",
	}, got[0])

	// Short rows leave trailing fields empty.
	assert.Equal(t, "PO-2", got[1].POID)
	assert.Equal(t, "Gate valve", got[1].ItemDescription)
	assert.Empty(t, got[1].Supplier)
}

func TestDecodeRawPurchaseOrders_MissingColumns(t *testing.T) {
	t.Parallel()

	_, err := DecodeRawPurchaseOrders([][]string{{"po_id", "item_description", "unit_price"}})
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.TableRawPurchaseOrders, se.Table)
	assert.Equal(t, []string{"quantity", "unit", "po_date", "region", "department", "supplier"}, se.Missing)

	_, err = DecodeRawPurchaseOrders(nil)
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Missing, len(model.RawPurchaseOrderColumns))
}

func TestDecodeStandardizedItems(t *testing.T) {
	t.Parallel()

	got, err := DecodeStandardizedItems([][]string{
		{"po_id", "item_code", "canonical_item_name", "confidence_score"},
		{"PO-1", "PIPE_1", "carbon steel pipe", "0.85"},
		{"PO-2", "PIPE_1", "carbon steel pipe", " 1 "},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.DefaultCategory, got[0].Category)
	assert.Equal(t, 0.85, got[0].ConfidenceScore)
	assert.Equal(t, 1.0, got[1].ConfidenceScore)

	got, err = DecodeStandardizedItems([][]string{
		{"po_id", "item_description", "canonical_item_name", "item_code", "category", "confidence_score"},
		{"PO-1", "CS Pipe", "carbon steel pipe", "PIPE_1", "Pipe", "0.75"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pipe", got[0].Category)
	assert.Equal(t, "CS Pipe", got[0].ItemDescription)
}

func TestDecodeStandardizedItems_TrimsKeys(t *testing.T) {
	t.Parallel()

	got, err := DecodeStandardizedItems([][]string{
		{"po_id", "item_code", "canonical_item_name", "category", "confidence_score"},
		{" PO-1 ", " PIPE_1 ", " carbon steel pipe ", " Pipe ", "0.85"},
		{"PO-2", "PIPE_1", "carbon steel pipe", "  ", "0.85"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "PO-1", got[0].POID)
	assert.Equal(t, "PIPE_1", got[0].ItemCode)
	assert.Equal(t, "carbon steel pipe", got[0].CanonicalItemName)
	assert.Equal(t, "Pipe", got[0].Category)
	assert.Equal(t, model.DefaultCategory, got[1].Category)
}

func TestDecodeStandardizedItems_Errors(t *testing.T) {
	t.Parallel()

	_, err := DecodeStandardizedItems([][]string{{"po_id", "item_code"}})
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"canonical_item_name", "confidence_score"}, se.Missing)

	for _, score := range []string{"", "high", "1.5", "-0.1", "NaN"} {
		_, err := DecodeStandardizedItems([][]string{
			{"po_id", "item_code", "canonical_item_name", "confidence_score"},
			{"PO-7", "X", "x", score},
		})
		var ve *model.ValidationError
		require.True(t, errors.As(err, &ve), "score %q", score)
		assert.Equal(t, "PO-7", ve.Key)
	}
}

func TestLoadRawPurchaseOrders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "purchase_orders_raw.csv")
	content := "po_id,item_description,unit_price,quantity,unit,po_date,region,department,supplier\n" +
		"PO-1,\"Pipe, CS 100mm\",120.5,3,m,2024-01-15,North,Maintenance,Acme\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := LoadRawPurchaseOrders(context.Background(), fetcher.LocalFetcher{}, path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Pipe, CS 100mm", got[0].ItemDescription)

	_, err = LoadRawPurchaseOrders(context.Background(), fetcher.LocalFetcher{}, filepath.Join(dir, "missing.csv"))
	var missing *model.MissingInputError
	require.True(t, errors.As(err, &missing))
}

func TestLoadStandardizedItems(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "standardized_items.csv")
	require.NoError(t, os.WriteFile(path, []byte("po_id,item_code,canonical_item_name,confidence_score\nPO-1,A,a,0.95\n"), 0o644))

	got, err := LoadStandardizedItems(context.Background(), fetcher.LocalFetcher{}, path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].ItemCode)
}
