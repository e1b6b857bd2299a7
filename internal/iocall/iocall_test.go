package iocall

import (
	"testing"

	"github.com/srg/kterm/internal/kerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("get size has no payload", func(t *testing.T) {
		req, err := Decode(OpGetSize, nil)
		require.NoError(t, err)
		assert.Equal(t, GetSizeRequest{}, req)
		assert.Equal(t, OpGetSize, req.Op())
	})

	t.Run("set size decodes little endian int32 pair", func(t *testing.T) {
		payload := []byte{100, 0, 0, 0, 40, 0, 0, 0}
		req, err := Decode(OpSetSize, payload)
		require.NoError(t, err)
		assert.Equal(t, SetSizeRequest{Size: SizeArgs{Width: 100, Height: 40}}, req)
	})

	t.Run("set size keeps negative values for the device to judge", func(t *testing.T) {
		op, payload := SetSize(-1, 25)
		req, err := Decode(op, payload)
		require.NoError(t, err)
		assert.Equal(t, int32(-1), req.(SetSizeRequest).Size.Width)
	})

	t.Run("short set size payload is invalid", func(t *testing.T) {
		req, err := Decode(OpSetSize, []byte{1, 2, 3})
		assert.ErrorIs(t, err, kerr.ErrInvalidArgument)
		assert.Nil(t, req)
	})

	t.Run("unknown opcode passes through", func(t *testing.T) {
		req, err := Decode(Op(0x5401), []byte{9})
		require.NoError(t, err)
		assert.Equal(t, UnknownRequest{Code: 0x5401, Payload: []byte{9}}, req)
		assert.Equal(t, Op(0x5401), req.Op())
	})
}

func TestReply_Encode(t *testing.T) {
	assert.Nil(t, Reply{}.Encode())

	data := Reply{Size: &SizeArgs{Width: 80, Height: 25}}.Encode()
	require.Len(t, data, SizeArgsLen)

	var args SizeArgs
	require.NoError(t, args.UnmarshalBinary(data))
	assert.Equal(t, SizeArgs{Width: 80, Height: 25}, args)
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "GET_SIZE", OpGetSize.String())
	assert.Equal(t, "SET_SIZE", OpSetSize.String())
	assert.Equal(t, "OP(7)", Op(7).String())
}
