package phonenum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"+989120000001":   "+989120000001",
		"09120000001":     "+989120000001",
		"00989120000001":  "+989120000001",
		"0049301234567":   "+49301234567",
		"+49 30 1234567":  "+49301234567",
		"0912-000-0001":   "+989120000001",
	}
	for in, want := range cases {
		got, err := Normalize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, in := range []string{"09120000001", "+989120000001", "00989120000001"} {
		once, err := Normalize(in)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "+98x12", "12"} {
		_, err := Normalize(in)
		assert.ErrorIs(t, err, ErrMalformed, in)
	}
}
