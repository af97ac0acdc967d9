package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReference(t *testing.T) {
	ref, err := GenerateReference(24)
	require.NoError(t, err)
	assert.Len(t, ref, 24)
	for _, r := range ref {
		assert.True(t, strings.ContainsRune(referenceAlphabet, r), "unexpected rune %q", r)
	}

	def, err := NewReference()
	require.NoError(t, err)
	assert.Len(t, def, ReferenceLength)
	assert.NotEqual(t, ref[:ReferenceLength], def)
}
