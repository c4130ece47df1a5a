package device

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_RoundTrip(t *testing.T) {
	dev := newSerialDevice(t)
	q := NewQueue(dev)
	defer q.Release()

	host := []float64{1, 2, 3, 4, 5, 6}
	buf := must.M1(AllocFrom(dev, host))
	defer buf.Free()
	assert.Equal(t, 6, buf.Len())

	got := make([]float64, 6)
	require.NoError(t, Read(q, buf, 0, got))
	assert.Equal(t, host, got)

	t.Run("Offset", func(t *testing.T) {
		require.NoError(t, Write(q, buf, 2, []float64{30, 40}))
		tail := make([]float64, 3)
		require.NoError(t, Read(q, buf, 3, tail))
		assert.Equal(t, []float64{40, 5, 6}, tail)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		assert.Error(t, Write(q, buf, 5, []float64{1, 2}))
		assert.Error(t, Read(q, buf, -1, make([]float64, 1)))
	})
}

func TestBuffer_Int64(t *testing.T) {
	dev := newSerialDevice(t)
	q := NewQueue(dev)
	defer q.Release()

	buf := must.M1(Alloc[int64](dev, 4))
	defer buf.Free()
	require.NoError(t, Write(q, buf, 0, []int64{-1, 0, 1 << 40, 7}))
	got := make([]int64, 4)
	require.NoError(t, Read(q, buf, 0, got))
	assert.Equal(t, []int64{-1, 0, 1 << 40, 7}, got)
}

func TestBuffer_Empty(t *testing.T) {
	dev := newSerialDevice(t)
	q := NewQueue(dev)
	defer q.Release()

	buf := must.M1(Alloc[float32](dev, 0))
	assert.Equal(t, 0, buf.Len())
	assert.Nil(t, buf.occaMemory())
	assert.NoError(t, Write(q, buf, 0, nil))
	buf.Free()
}

func TestBuffer_WrongQueue(t *testing.T) {
	dev := newSerialDevice(t)
	other := newSerialDevice(t)
	q := NewQueue(other)
	defer q.Release()

	buf := must.M1(Alloc[float64](dev, 2))
	defer buf.Free()
	assert.Error(t, Write(q, buf, 0, []float64{1, 2}))
}
