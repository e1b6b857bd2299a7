// Package iocall decodes the out-of-band control requests a handle can send
// to its device.
//
// User space hands the kernel an opcode and an opaque argument block. The
// block is decoded once, here, into a typed Request, so devices switch on Go
// types and never reinterpret raw bytes themselves.
//
// Wire layout of the size argument block (little endian):
//
//	offset 0: width  int32
//	offset 4: height int32
package iocall

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/kterm/internal/kerr"
)

// Op is a control request opcode.
type Op uint32

const (
	OpGetSize Op = iota // out: SizeArgs
	OpSetSize           // in: SizeArgs
)

func (o Op) String() string {
	switch o {
	case OpGetSize:
		return "GET_SIZE"
	case OpSetSize:
		return "SET_SIZE"
	default:
		return fmt.Sprintf("OP(%d)", uint32(o))
	}
}

// SizeArgsLen is the encoded length of SizeArgs.
const SizeArgsLen = 8

// SizeArgs carries terminal geometry in both directions.
type SizeArgs struct {
	Width  int32 `json:"width"`
	Height int32 `json:"height"`
}

func (a SizeArgs) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SizeArgsLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(a.Width))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(a.Height))
	return buf, nil
}

func (a *SizeArgs) UnmarshalBinary(data []byte) error {
	if len(data) < SizeArgsLen {
		return fmt.Errorf("%w: size arguments need %d bytes, got %d", kerr.ErrInvalidArgument, SizeArgsLen, len(data))
	}
	a.Width = int32(binary.LittleEndian.Uint32(data[0:4]))
	a.Height = int32(binary.LittleEndian.Uint32(data[4:8]))
	return nil
}

// Request is a decoded control request.
type Request interface {
	Op() Op
}

// GetSizeRequest asks for the current geometry.
type GetSizeRequest struct{}

// SetSizeRequest replaces the current geometry.
type SetSizeRequest struct {
	Size SizeArgs
}

// UnknownRequest wraps an opcode no decoder knows about. It is still handed
// to the device, which decides how to refuse it.
type UnknownRequest struct {
	Code    Op
	Payload []byte
}

func (GetSizeRequest) Op() Op   { return OpGetSize }
func (SetSizeRequest) Op() Op   { return OpSetSize }
func (r UnknownRequest) Op() Op { return r.Code }

// Reply is what a device returns for a control request. Fields a request
// does not produce stay nil.
type Reply struct {
	Size *SizeArgs
}

// Encode returns the reply's output block, or nil when the request had no
// output.
func (r Reply) Encode() []byte {
	if r.Size == nil {
		return nil
	}
	data, _ := r.Size.MarshalBinary()
	return data
}

// Decode turns a raw opcode and argument block into a Request. Malformed
// blocks for known opcodes fail with kerr.ErrInvalidArgument; unknown
// opcodes are not an error at this stage.
func Decode(op Op, payload []byte) (Request, error) {
	switch op {
	case OpGetSize:
		return GetSizeRequest{}, nil
	case OpSetSize:
		var args SizeArgs
		if err := args.UnmarshalBinary(payload); err != nil {
			return nil, err
		}
		return SetSizeRequest{Size: args}, nil
	default:
		return UnknownRequest{Code: op, Payload: payload}, nil
	}
}

// SetSize builds an encoded SET_SIZE request, mostly for callers that speak
// the raw interface.
func SetSize(width, height int32) (Op, []byte) {
	data, _ := SizeArgs{Width: width, Height: height}.MarshalBinary()
	return OpSetSize, data
}
