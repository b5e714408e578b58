package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashKey(t *testing.T) {
	h := HashKey("ps_secret")
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashKey("ps_secret"))
	assert.NotEqual(t, h, HashKey("ps_secret2"))
}

func TestGenerateRawKey(t *testing.T) {
	a, err := generateRawKey()
	require.NoError(t, err)
	b, err := generateRawKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "ps_"))
	assert.Len(t, a, len("ps_")+64)
	assert.NotEqual(t, a, b)
}
