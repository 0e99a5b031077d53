package model

import (
	"errors"
	"os"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaError_Message(t *testing.T) {
	t.Parallel()
	err := &SchemaError{Table: "purchase_orders_raw", Missing: []string{"po_date", "unit_price"}}
	assert.Equal(t, "purchase_orders_raw is missing columns: [po_date, unit_price]", err.Error())
}

func TestValidationError_Message(t *testing.T) {
	t.Parallel()

	withKey := &ValidationError{Table: "standardized_items", Key: "PO-7", Reason: "duplicate po_id"}
	assert.Equal(t, `standardized_items: duplicate po_id (key "PO-7")`, withKey.Error())

	noKey := &ValidationError{Table: "merge", Reason: "no join key"}
	assert.Equal(t, "merge: no join key", noKey.Error())
}

func TestMissingInputError_Unwrap(t *testing.T) {
	t.Parallel()
	err := &MissingInputError{Source: "data/raw.csv", Err: os.ErrNotExist}
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "data/raw.csv")
}

func TestTypedErrors_SurviveErisWrap(t *testing.T) {
	t.Parallel()

	wrapped := eris.Wrap(&EmptyResultError{Stage: "clean"}, "pipeline: clean")

	var empty *EmptyResultError
	require.True(t, errors.As(wrapped, &empty))
	assert.Equal(t, "clean", empty.Stage)

	var schema *SchemaError
	assert.False(t, errors.As(wrapped, &schema))
}
