package throttle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMemberShape(t *testing.T) {
	m, err := generateMember(1700000000123)
	require.NoError(t, err)

	ts, salt, ok := parseMember(m)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000123), ts)
	assert.Len(t, salt, saltLen)
	for _, r := range salt {
		assert.True(t, strings.ContainsRune(saltAlphabet, r))
	}
}

func TestGenerateMemberUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		m, err := generateMember(1700000000123)
		require.NoError(t, err)
		assert.False(t, seen[m], "member collided: %s", m)
		seen[m] = true
	}
}

func TestParseMemberRejectsMalformed(t *testing.T) {
	_, _, ok := parseMember("no-colon-here")
	assert.False(t, ok)

	_, _, ok = parseMember("a:b:c")
	assert.False(t, ok)

	_, _, ok = parseMember("notanumber:abc123")
	assert.False(t, ok)
}

func TestParseMemberRoundTrip(t *testing.T) {
	m, err := generateMember(42)
	require.NoError(t, err)
	ts, salt, ok := parseMember(m)
	require.True(t, ok)
	assert.Equal(t, int64(42), ts)
	assert.NotEmpty(t, salt)
}
