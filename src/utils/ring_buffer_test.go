package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferWrapsOldestFirst(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		rb.Append(i)
	}
	assert.Equal(t, 3, rb.Size())
	assert.Equal(t, []int{3, 4, 5}, rb.GetAll())
	assert.Equal(t, []int{4, 5}, rb.GetLatest(2))
	assert.Equal(t, []int{3, 4, 5}, rb.GetLatest(10))
}

func TestRingBufferClear(t *testing.T) {
	rb := NewRingBuffer[string](2)
	rb.Append("a")
	rb.Clear()
	assert.Zero(t, rb.Size())
	assert.Empty(t, rb.GetAll())
	assert.Equal(t, 2, rb.Capacity())
}
