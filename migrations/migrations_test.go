package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialSchemaKeepsFieldPositionsUnique(t *testing.T) {
	raw, err := fs.ReadFile(Files, "0001_init.sql")
	require.NoError(t, err)

	assert.Contains(t, string(raw), "UNIQUE INDEX IF NOT EXISTS review_fields_form_position_key ON review_fields (form_id, position)")
}
