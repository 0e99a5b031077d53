package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/costdb/internal/model"
)

func rawOrder(id, price, qty, date string) model.RawPurchaseOrder {
	return model.RawPurchaseOrder{
		POID:            id,
		ItemDescription: "CS Pipe 100mm",
		UnitPrice:       price,
		Quantity:        qty,
		Unit:            " m ",
		PODate:          date,
		Region:          " North ",
		Department:      "Maintenance",
		Supplier:        "Acme ",
	}
}

func stdItem(id, code string) model.StandardizedItem {
	return model.StandardizedItem{
		POID:              id,
		ItemCode:          code,
		CanonicalItemName: "carbon steel pipe 100mm ",
		Category:          "Pipe",
		ConfidenceScore:   0.85,
	}
}

func TestFilterValid(t *testing.T) {
	t.Parallel()

	orders := []model.RawPurchaseOrder{
		rawOrder("PO-1", "-5", "3", "2024-01-15"),
		rawOrder("PO-2", "120.50", "3", "2024-01-15"),
		rawOrder("PO-3", "abc", "3", "2024-01-15"),
		rawOrder("PO-4", "0", "3", "2024-01-15"),
		rawOrder("PO-5", "NaN", "3", "2024-01-15"),
		rawOrder("PO-6", "99", "", "2024-01-15"),
		rawOrder("PO-7", "99", "2", "not a date"),
		rawOrder("PO-8", " 99 ", "2.5", "01/31/2024"),
		rawOrder("PO-9", "Inf", "2", "2024-01-15"),
	}

	valid, rejected := FilterValid(orders, nil)

	ids := make([]string, len(valid))
	for i, o := range valid {
		ids[i] = o.POID
	}
	assert.Equal(t, []string{"PO-2", "PO-8"}, ids)
	assert.Equal(t, []Rejection{
		{POID: "PO-1", Reason: "non-positive unit_price"},
		{POID: "PO-3", Reason: "non-numeric unit_price"},
		{POID: "PO-4", Reason: "non-positive unit_price"},
		{POID: "PO-5", Reason: "non-numeric unit_price"},
		{POID: "PO-6", Reason: "non-numeric quantity"},
		{POID: "PO-7", Reason: "unparseable po_date"},
		{POID: "PO-9", Reason: "non-numeric unit_price"},
	}, rejected)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		layouts []string
		want    time.Time
		ok      bool
	}{
		{in: "2024-03-05", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "03/05/2024", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "05-Mar-2024", want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "2024-03-05 10:30:00", want: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC), ok: true},
		{in: "2024-02-30"},
		{in: ""},
		{in: "yesterday"},
		{in: "05.03.2024", layouts: []string{"02.01.2006"}, want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "2024-03-05", layouts: []string{"02.01.2006"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := parseDate(tt.in, tt.layouts)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %v", got)
			}
		})
	}
}

func TestCleanAndMerge(t *testing.T) {
	t.Parallel()

	raw := []model.RawPurchaseOrder{
		rawOrder("PO-1", "-5", "3", "2024-01-15"),
		rawOrder(" PO-2 ", "120.50", "3", "2024-01-15"),
		rawOrder("PO-3", "130", "1", "2024-02-01"),
		rawOrder("PO-4", "140", "1", "2024-02-01"),
	}
	items := []model.StandardizedItem{
		stdItem("PO-1", "PIPE_1"),
		stdItem("PO-2", " PIPE_1 "),
		{POID: "PO-3", ItemCode: "PIPE_1", CanonicalItemName: "carbon steel pipe 100mm", ConfidenceScore: 0.85},
		stdItem("PO-9", "PIPE_1"),
	}

	got, err := CleanAndMerge(raw, items, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "PO-2", first.POID)
	assert.Equal(t, "PIPE_1", first.ItemCode)
	assert.Equal(t, "carbon steel pipe 100mm", first.CanonicalItemName)
	assert.Equal(t, "Pipe", first.Category)
	assert.Equal(t, 120.5, first.UnitPrice)
	assert.Equal(t, 3.0, first.Quantity)
	assert.Equal(t, "m", first.Unit)
	assert.Equal(t, "North", first.Region)
	assert.Equal(t, "Acme", first.Supplier)
	assert.Equal(t, 0.85, first.ConfidenceScore)
	assert.True(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC).Equal(first.PODate))

	assert.Equal(t, "PO-3", got[1].POID)
	assert.Equal(t, model.DefaultCategory, got[1].Category)

	for _, r := range got {
		assert.NotEqual(t, "PO-1", r.POID)
		assert.NotEqual(t, "PO-4", r.POID)
	}
}

func TestCleanAndMerge_DuplicateStandardizedPOID(t *testing.T) {
	t.Parallel()

	raw := []model.RawPurchaseOrder{rawOrder("PO-1", "10", "1", "2024-01-15")}
	items := []model.StandardizedItem{stdItem("PO-1", "A"), stdItem("PO-1 ", "B")}

	got, err := CleanAndMerge(raw, items, nil)
	require.Error(t, err)
	assert.Nil(t, got)

	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.TableStandardizedItems, ve.Table)
	assert.Equal(t, "PO-1", ve.Key)
}

func TestCleanAndMerge_DuplicateRawPOID(t *testing.T) {
	t.Parallel()

	raw := []model.RawPurchaseOrder{
		rawOrder("PO-1", "10", "1", "2024-01-15"),
		rawOrder("PO-1", "12", "1", "2024-01-16"),
	}
	items := []model.StandardizedItem{stdItem("PO-1", "A")}

	_, err := CleanAndMerge(raw, items, nil)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.TableRawPurchaseOrders, ve.Table)
}

func TestCheckUniqueOrders(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckUniqueOrders([]model.RawPurchaseOrder{
		rawOrder("PO-1", "10", "1", "2024-01-15"),
		rawOrder("PO-2", "10", "1", "2024-01-15"),
	}))

	err := CheckUniqueOrders([]model.RawPurchaseOrder{
		rawOrder("PO-1", "-5", "1", "2024-01-15"),
		rawOrder(" PO-1 ", "10", "1", "2024-01-15"),
	})
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.TableRawPurchaseOrders, ve.Table)
	assert.Equal(t, "PO-1", ve.Key)
}

func TestCleanAndMerge_NoMatches(t *testing.T) {
	t.Parallel()

	got, err := CleanAndMerge(
		[]model.RawPurchaseOrder{rawOrder("PO-1", "10", "1", "2024-01-15")},
		[]model.StandardizedItem{stdItem("PO-2", "A")},
		nil,
	)
	require.NoError(t, err)
	assert.Empty(t, got)
}
