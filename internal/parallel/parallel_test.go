package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForCoversRangeExactlyOnce(t *testing.T) {
	for _, n := range []int{0, 1, 63, 64, 1000} {
		var hits atomic.Int64
		seen := make([]atomic.Bool, n)
		For(n, Config{Workers: 4, MinBatch: 16}, func(i int) {
			hits.Add(1)
			assert.False(t, seen[i].Swap(true), "index %d visited twice", i)
		})
		assert.Equal(t, int64(n), hits.Load(), "n=%d", n)
	}
}

func TestForSequentialBelowMinBatch(t *testing.T) {
	// Below the batch floor the order is the caller's order.
	var order []int
	For(8, Config{Workers: 8, MinBatch: 64}, func(i int) {
		order = append(order, i)
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Positive(t, cfg.Workers)
	assert.Positive(t, cfg.MinBatch)
}
