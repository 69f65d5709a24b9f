package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheck(t *testing.T) {
	h, err := Hash("secret")
	require.NoError(t, err)
	assert.NotEqual(t, "secret", h)
	assert.True(t, Check(h, "secret"))
	assert.False(t, Check(h, "Secret"))
	assert.False(t, Check("", ""))

	_, err = Hash("abc")
	assert.ErrorIs(t, err, ErrTooShort)
}
