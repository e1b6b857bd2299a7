// Package fdtable maps small integer descriptors to open node handles for a
// single task.
package fdtable

import (
	"errors"
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/kterm/internal/kerr"
	"github.com/srg/kterm/internal/node"
)

// Entry describes one installed descriptor.
type Entry struct {
	FD    int    `json:"fd"`
	Node  string `json:"node"`
	Side  string `json:"side"`
	Flags string `json:"flags"`
}

// Table hands out the lowest free descriptor and remembers install order, so
// CloseAll tears handles down in the order they were opened.
type Table struct {
	mu      sync.Mutex
	handles *orderedmap.OrderedMap[int, *node.Handle]
}

func New() *Table {
	return &Table{handles: orderedmap.New[int, *node.Handle]()}
}

// Install registers h and returns its descriptor.
func (t *Table) Install(h *node.Handle) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := 0
	for {
		if _, used := t.handles.Get(fd); !used {
			break
		}
		fd++
	}
	t.handles.Set(fd, h)
	return fd
}

func (t *Table) Get(fd int) (*node.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handles.Get(fd)
	if !ok {
		return nil, fmt.Errorf("%w: fd %d", kerr.ErrBadHandle, fd)
	}
	return h, nil
}

// Close removes fd from the table and closes its handle.
func (t *Table) Close(fd int) error {
	t.mu.Lock()
	h, ok := t.handles.Delete(fd)
	t.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: fd %d", kerr.ErrBadHandle, fd)
	}
	return h.Close()
}

// CloseAll closes every handle in install order and empties the table. All
// close errors are returned joined.
func (t *Table) CloseAll() error {
	t.mu.Lock()
	var handles []*node.Handle
	for pair := t.handles.Oldest(); pair != nil; pair = pair.Next() {
		handles = append(handles, pair.Value)
	}
	t.handles = orderedmap.New[int, *node.Handle]()
	t.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", h.Node().Name(), err))
		}
	}
	return errors.Join(errs...)
}

// List describes the installed descriptors in install order.
func (t *Table) List() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries := make([]Entry, 0, t.handles.Len())
	for pair := t.handles.Oldest(); pair != nil; pair = pair.Next() {
		h := pair.Value
		entries = append(entries, Entry{
			FD:    pair.Key,
			Node:  h.Node().Name(),
			Side:  h.Side().String(),
			Flags: h.Flags().String(),
		})
	}
	return entries
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handles.Len()
}
