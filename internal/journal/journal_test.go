package journal

import (
	"sync"
	"testing"

	"github.com/srg/kterm/internal/memfile"
	"github.com/srg/kterm/internal/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)

	_, err = New(MaxSize + 1)
	assert.Error(t, err)

	j, err := New(100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, j.Cap(), uint32(100)) // may be rounded to a power of two
}

func TestJournal_RecordAndDrain(t *testing.T) {
	j, err := New(16)
	require.NoError(t, err)

	n := node.New(node.KindFile, memfile.New(nil), &node.Options{Name: "motd", OnEvent: func(ev node.Event) {
		require.NoError(t, j.Record(ev))
	}})
	h, err := n.Open(node.OpenRead)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	n.Unlink()

	events := j.Drain()
	types := make([]node.EventType, 0, len(events))
	for _, ev := range events {
		assert.Equal(t, "motd", ev.Name)
		assert.Equal(t, n.ID(), ev.NodeID)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []node.EventType{
		node.EventCreated,
		node.EventOpened,
		node.EventClosed,
		node.EventDestroyed,
	}, types)

	assert.Empty(t, j.Drain(), "drain empties the journal")
	assert.Equal(t, int64(4), j.Recorded())
}

func TestJournal_OverwritesOldest(t *testing.T) {
	j, err := New(4)
	require.NoError(t, err)

	total := int(j.Cap()) * 3
	for i := 0; i < total; i++ {
		require.NoError(t, j.Record(node.Event{Type: node.EventOpened, Name: string(rune('a' + i%26))}))
	}

	events := j.Drain()
	assert.NotEmpty(t, events)
	assert.LessOrEqual(t, len(events), int(j.Cap()))
	assert.Equal(t, string(rune('a'+(total-1)%26)), events[len(events)-1].Name, "newest event survives")
	assert.Equal(t, int64(total), j.Metrics().Recorded)
	assert.Zero(t, j.Metrics().Errors)
}

func TestJournal_ConcurrentRecorders(t *testing.T) {
	j, err := New(1024)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = j.Record(node.Event{Type: node.EventResized})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), j.Recorded())
	assert.Len(t, j.Drain(), 400)
}
