// Package memfile implements the regular-file device: an in-memory byte
// slice addressed by the handle's offset.
package memfile

import (
	"fmt"

	"github.com/srg/kterm/internal/iocall"
	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/node"
)

// File is the device behind a regular-file node. It is always ready in both
// directions and reads past the end return 0 bytes.
type File struct {
	data []byte
}

var _ node.Device = (*File)(nil)

// New creates a file holding a copy of data.
func New(data []byte) *File {
	return &File{data: append([]byte(nil), data...)}
}

func (f *File) CanRead(node.Access) bool  { return true }
func (f *File) CanWrite(node.Access) bool { return true }

func (f *File) Read(a node.Access, p []byte) (int, error) {
	if a.Offset < 0 {
		return 0, fmt.Errorf("%w: offset %d", kerr.ErrInvalidArgument, a.Offset)
	}
	if a.Offset >= int64(len(f.data)) {
		return 0, nil
	}
	return copy(p, f.data[a.Offset:]), nil
}

// Write stores p at the handle offset, growing the file and zero-filling any
// gap.
func (f *File) Write(a node.Access, p []byte) (int, error) {
	if a.Offset < 0 {
		return 0, fmt.Errorf("%w: offset %d", kerr.ErrInvalidArgument, a.Offset)
	}
	end := a.Offset + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	return copy(f.data[a.Offset:], p), nil
}

func (f *File) Call(_ node.Access, req iocall.Request) (iocall.Reply, error) {
	return iocall.Reply{}, fmt.Errorf("%w: %s on a regular file", kerr.ErrInappropriateCall, req.Op())
}

func (f *File) Size(node.Access) int {
	return len(f.data)
}

func (f *File) Destroy() {
	f.data = nil
}

// Bytes returns a copy of the current contents. Call it under the node lock,
// see node.Node.Inspect.
func (f *File) Bytes() []byte {
	return append([]byte(nil), f.data...)
}
