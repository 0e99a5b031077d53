package fetcher

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "po_id,unit_price\nPO-1,120.5\nPO-2,99\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"po_id", "unit_price"}, rows[0])
	assert.Equal(t, []string{"PO-1", "120.5"}, rows[1])
	assert.Equal(t, []string{"PO-2", "99"}, rows[2])
}

func TestStreamCSV_SniffsSemicolon(t *testing.T) {
	input := "po_id;unit_price;region\nPO-1;\"1,5\";North\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"PO-1", "1,5", "North"}, rows[1])
}

func TestStreamCSV_ExplicitDelimiter(t *testing.T) {
	input := "po_id|region\nPO-1|North\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{Delimiter: '|'})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"po_id", "region"}, {"PO-1", "North"}}, rows)
}

func TestStreamCSV_TrimSpaceAndLazyQuotes(t *testing.T) {
	input := " po_id , item_description \nPO-1,2\" valve \"gate\"\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		TrimSpace:  true,
		LazyQuotes: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"po_id", "item_description"}, rows[0])
	assert.Equal(t, "PO-1", rows[1][0])
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name string
		head string
		want rune
	}{
		{"comma", "po_id,unit_price,region\n", ','},
		{"semicolon", "po_id;unit_price;region", ';'},
		{"tab", "po_id\tunit_price\n1;2;3;4", '\t'},
		{"quoted commas ignored", "\"a,b,c\";x;y\n", ';'},
		{"single column", "po_id\n", ','},
		{"empty", "", ','},
		{"tie prefers comma", "a,b;c\n", ','},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffDelimiter([]byte(tt.head)))
		})
	}
}

func TestReadCSV_StripsBOM(t *testing.T) {
	input := "\xEF\xBB\xBFpo_id,unit\nPO-1,m\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "po_id", rows[0][0])
}

func TestReadCSV_ShortInput(t *testing.T) {
	rows, err := ReadCSV(context.Background(), strings.NewReader("a"), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}}, rows)

	rows, err = ReadCSV(context.Background(), strings.NewReader(""), CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadCSV_ReadError(t *testing.T) {
	r := &failingReader{data: "po_id,unit\nPO-1,m\n", failAt: 12, failErr: io.ErrClosedPipe}

	_, err := ReadCSV(context.Background(), r, CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestReadCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

// failingReader returns failErr after serving failAt bytes of data.
type failingReader struct {
	data    string
	pos     int
	failAt  int
	failErr error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.pos >= r.failAt {
		return 0, r.failErr
	}
	end := r.failAt
	if end > len(r.data) {
		end = len(r.data)
	}
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	return n, nil
}
