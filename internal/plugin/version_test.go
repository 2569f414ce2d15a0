package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiver-ml/quiver/internal/errdefs"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 1, Minor: 2, Patch: 3}, v)

	v, err = ParseVersion("10.0.1-rc2")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 10, Minor: 0, Patch: 1, Build: "rc2"}, v)
	assert.Equal(t, "10.0.1-rc2", v.String())
}

func TestParseVersionRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "1.2", "1.2.3.4", "a.b.c", "1.-2.3"} {
		_, err := ParseVersion(s)
		assert.ErrorIs(t, err, errdefs.ErrInvalidArgument, "input %q", s)
	}
}

func TestCompareTotalOrder(t *testing.T) {
	mk := func(s string) Version {
		v, err := ParseVersion(s)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, 0, mk("1.0.0").Compare(mk("1.0.0")))
	assert.Equal(t, 1, mk("1.0.1").Compare(mk("1.0.0")))
	assert.Equal(t, -1, mk("1.0.0").Compare(mk("1.0.1")))
	assert.Equal(t, 1, mk("2.0.0").Compare(mk("1.9.9")))
	assert.Equal(t, -1, mk("1.2.0").Compare(mk("1.10.0")))

	// Build tags do not participate in ordering.
	assert.Equal(t, 0, mk("1.0.0-alpha").Compare(mk("1.0.0-beta")))
}
