package capture

import (
	"testing"

	"github.com/googlesky/netsniff/internal/flow"
	"github.com/stretchr/testify/require"
)

func TestQueueDropsOnFull(t *testing.T) {
	q := newQueue(2)
	q.offer(flow.PacketRecord{Length: 1})
	q.offer(flow.PacketRecord{Length: 2})
	q.offer(flow.PacketRecord{Length: 3}) // queue full, dropped

	require.Equal(t, uint64(1), q.dropCount())
	require.Len(t, q.ch, 2)
}

func TestQueueDefaultDepth(t *testing.T) {
	q := newQueue(0)
	require.Equal(t, DefaultQueueDepth, cap(q.ch))
}
