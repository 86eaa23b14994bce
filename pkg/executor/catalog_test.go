package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_ValidateRejectsMissingRequiredSetting(t *testing.T) {
	g, err := Parse(`
input: source
nodes:
  - id: source
    type: fixed_source
`)
	require.NoError(t, err)

	cat := NewCatalog(CatalogEntry{
		Type:         "fixed_source",
		IsInput:      true,
		RequiredKeys: []string{"items"},
	})

	err = cat.Validate(g)
	assert.Error(t, err)
}

func TestCatalog_ValidateRejectsInputTypeMismatch(t *testing.T) {
	g, err := Parse(`
input: source
nodes:
  - id: source
    type: noop
`)
	require.NoError(t, err)

	cat := NewCatalog(CatalogEntry{Type: "noop", IsInput: false})

	err = cat.Validate(g)
	assert.Error(t, err)
}

func TestCatalog_ValidateAcceptsUnlistedTypes(t *testing.T) {
	g, err := Parse(`
input: source
nodes:
  - id: source
    type: some_future_type
`)
	require.NoError(t, err)

	cat := NewCatalog()
	assert.NoError(t, cat.Validate(g))
}
