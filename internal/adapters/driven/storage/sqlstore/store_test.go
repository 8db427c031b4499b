package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	numbered := &Store{dialect: Dialect{Numbered: true}}
	assert.Equal(t, "SELECT 1 FROM t WHERE a = $1 AND b IN ($2, $3)",
		numbered.rebind("SELECT 1 FROM t WHERE a = ? AND b IN (?, ?)"))

	plain := &Store{dialect: Dialect{}}
	assert.Equal(t, "a = ?", plain.rebind("a = ?"))
}

func TestIsUnique_NilFunc(t *testing.T) {
	s := &Store{}
	assert.False(t, s.isUnique(assert.AnError))
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("x").Valid)

	assert.False(t, nullInt(nil).Valid)
	n := 7
	assert.Equal(t, int64(7), nullInt(&n).Int64)
}
