package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fields = map[string]bool{
	"created_at": true,
	"total_cost": true,
	"status":     true,
}

func TestOrderBy(t *testing.T) {
	clauses, err := OrderBy("-created_at,total_cost", fields)
	require.NoError(t, err)
	assert.Equal(t, []string{"created_at DESC", "total_cost ASC"}, clauses)
}

func TestOrderByEmpty(t *testing.T) {
	clauses, err := OrderBy("  ", fields)
	require.NoError(t, err)
	assert.Nil(t, clauses)
}

func TestOrderByUnknownField(t *testing.T) {
	_, err := OrderBy("secret", fields)
	assert.ErrorIs(t, err, ErrBadOrderField)

	_, err = OrderBy("-", fields)
	assert.ErrorIs(t, err, ErrBadOrderField)
}

func TestNormalized(t *testing.T) {
	p := Page{Limit: 0, Offset: -3}.normalized()
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, 0, p.Offset)

	p = Page{Limit: 9999}.normalized()
	assert.Equal(t, MaxLimit, p.Limit)
}
