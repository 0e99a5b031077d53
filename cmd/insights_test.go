package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/fetcher"
)

func TestInsightText(t *testing.T) {
	f := fetcher.New(config.FTPConfig{})
	ctx := context.Background()

	text, err := insightText(ctx, f, "", []string{"gate", "valve", "2 inch"})
	require.NoError(t, err)
	assert.Equal(t, "gate valve 2 inch", text)

	_, err = insightText(ctx, f, "", nil)
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("need ISO 68 oil\nfor maintenance"), 0o644))
	text, err = insightText(ctx, f, path, []string{"ignored"})
	require.NoError(t, err)
	assert.Equal(t, "need ISO 68 oil\nfor maintenance", text)

	_, err = insightText(ctx, f, filepath.Join(t.TempDir(), "missing.txt"), nil)
	require.Error(t, err)
}

func TestWriteBullets(t *testing.T) {
	var buf bytes.Buffer
	writeBullets(&buf, []string{"Items detected: Pipe", "Sizes: 100 mm"})
	assert.Equal(t, "- Items detected: Pipe\n- Sizes: 100 mm\n", buf.String())

	buf.Reset()
	writeBullets(&buf, nil)
	assert.Equal(t, "No insights found.\n", buf.String())
}
