package pending

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToken(t *testing.T) {
	urlSafe := regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := NewToken()
		require.NoError(t, err)
		assert.Len(t, token, 43)
		assert.True(t, urlSafe.MatchString(token), token)
		assert.False(t, seen[token], "token repeated")
		seen[token] = true
	}
}
