package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLength(t *testing.T) {
	id := New()
	assert.Len(t, id, 26)
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewSortable(t *testing.T) {
	// Monotonic entropy keeps ids within the same millisecond ordered,
	// so consecutive ids always sort in generation order.
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Less(t, prev, next)
		prev = next
	}
}
