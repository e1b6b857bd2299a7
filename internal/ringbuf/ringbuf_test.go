package ringbuf

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{name: "terminal sized buffer", capacity: 1024},
		{name: "single byte buffer", capacity: 1},
		{name: "zero capacity is rejected", capacity: 0, wantErr: true},
		{name: "negative capacity is rejected", capacity: -8, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.capacity)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCapacity)
				assert.Nil(t, b)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.capacity, b.Cap())
			assert.Equal(t, 0, b.Len())
			assert.Equal(t, tt.capacity, b.Free())
			assert.True(t, b.IsEmpty())
			assert.False(t, b.IsFull())
		})
	}
}

func TestBuffer_FIFO(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)

	assert.Equal(t, 5, b.Write([]byte("hello")))
	assert.Equal(t, 6, b.Write([]byte(" world")))
	assert.Equal(t, 11, b.Len())

	out := make([]byte, 3)
	assert.Equal(t, 3, b.Read(out))
	assert.Equal(t, "hel", string(out))

	out = make([]byte, 32)
	n := b.Read(out)
	assert.Equal(t, "lo world", string(out[:n]))
	assert.True(t, b.IsEmpty())
}

func TestBuffer_WrapAround(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)

	// move the cursors close to the end of the backing store
	require.Equal(t, 6, b.Write([]byte("abcdef")))
	out := make([]byte, 6)
	require.Equal(t, 6, b.Read(out))

	assert.Equal(t, 8, b.Write([]byte("01234567")))
	assert.True(t, b.IsFull())

	out = make([]byte, 8)
	assert.Equal(t, 8, b.Read(out))
	assert.Equal(t, "01234567", string(out))
	assert.True(t, b.IsEmpty())
}

func TestBuffer_TruncatingWrite(t *testing.T) {
	t.Run("write larger than capacity stores capacity", func(t *testing.T) {
		b, err := New(1024)
		require.NoError(t, err)

		data := bytes.Repeat([]byte{'x'}, 2000)
		assert.Equal(t, 1024, b.Write(data))
		assert.True(t, b.IsFull())
		assert.Equal(t, 0, b.Free())
	})

	t.Run("write into full buffer stores nothing", func(t *testing.T) {
		b, err := New(4)
		require.NoError(t, err)

		require.Equal(t, 4, b.Write([]byte("full")))
		assert.Equal(t, 0, b.Write([]byte("more")))

		out := make([]byte, 4)
		assert.Equal(t, 4, b.Read(out))
		assert.Equal(t, "full", string(out), "unread data must not be overwritten")
	})

	t.Run("partial write stores exactly the free space", func(t *testing.T) {
		b, err := New(10)
		require.NoError(t, err)

		require.Equal(t, 7, b.Write([]byte("1234567")))
		assert.Equal(t, 3, b.Write([]byte("89ABCDEF")))

		out := make([]byte, 10)
		assert.Equal(t, 10, b.Read(out))
		assert.Equal(t, "123456789A", string(out))
	})
}

func TestBuffer_EmptyAndFullPredicates(t *testing.T) {
	b, err := New(3)
	require.NoError(t, err)

	for i := 0; i <= 3; i++ {
		assert.Equal(t, i == 0, b.IsEmpty(), "after %d bytes", i)
		assert.Equal(t, i == 3, b.IsFull(), "after %d bytes", i)
		assert.False(t, b.IsEmpty() && b.IsFull())
		if i < 3 {
			require.Equal(t, 1, b.Write([]byte{byte(i)}))
		}
	}
}

func TestBuffer_ZeroLengthTransfers(t *testing.T) {
	b, err := New(4)
	require.NoError(t, err)

	assert.Equal(t, 0, b.Write(nil))
	assert.Equal(t, 0, b.Read(make([]byte, 0)))
	assert.Equal(t, 0, b.Read(make([]byte, 4)), "reading an empty buffer yields 0")
}

func TestBuffer_Destroy(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)
	require.Equal(t, 4, b.Write([]byte("data")))

	b.Destroy()
	assert.True(t, b.Destroyed())
	assert.True(t, b.IsEmpty())
	assert.False(t, b.IsFull())
	assert.Equal(t, 0, b.Write([]byte("x")))
	assert.Equal(t, 0, b.Read(make([]byte, 8)))

	// a second Destroy is harmless
	b.Destroy()
}

// Random interleavings of writes and reads must replay the accepted bytes in
// order, whatever the chunk sizes.
func TestBuffer_FIFOLawRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		capacity := 1 + rng.Intn(64)
		b, err := New(capacity)
		require.NoError(t, err)

		var accepted, delivered []byte
		for step := 0; step < 200; step++ {
			if rng.Intn(2) == 0 {
				chunk := make([]byte, rng.Intn(capacity+8))
				rng.Read(chunk)
				free := b.Free()
				n := b.Write(chunk)
				require.Equal(t, min(len(chunk), free), n)
				accepted = append(accepted, chunk[:n]...)
			} else {
				out := make([]byte, rng.Intn(capacity+8))
				held := b.Len()
				n := b.Read(out)
				require.Equal(t, min(len(out), held), n)
				delivered = append(delivered, out[:n]...)
			}
			require.LessOrEqual(t, b.Len(), capacity)
		}

		rest := make([]byte, capacity)
		n := b.Read(rest)
		delivered = append(delivered, rest[:n]...)

		assert.Equal(t, accepted, delivered, "round %d (capacity %d)", round, capacity)
	}
}
