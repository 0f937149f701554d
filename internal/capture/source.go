// Package capture implements the CaptureSource collaborator contract
// : one producer goroutine per interface feeding parsed
// flow.PacketRecord values into a bounded, drop-on-full queue. The raw
// packet-acquisition and OS-interface-statistics layers are themselves
// out of the core's scope ( "Out of scope"); this package is the
// real collaborator that satisfies the contract, grounded on the
// teacher's platform package (netlink/proc fallback chain, AF_PACKET
// parser) and gchux-pcap-sidecar's gopacket/pcap usage.
package capture

import (
	"sync/atomic"

	"github.com/googlesky/netsniff/internal/flow"
)

// DefaultQueueDepth is the bounded queue capacity per interface
// ("bounded queue of configurable depth (default 10000)").
const DefaultQueueDepth = 10000

// Source is the contract every packet-acquisition collaborator
// implements: start producing on an interface, stream records out over
// a channel, and report how many packets were dropped for a full queue.
type Source interface {
	// Start begins producing PacketRecord values. It must return
	// promptly; capture happens on internal goroutines.
	Start() error
	// Stop halts production. Safe to call more than once.
	Stop()
	// Packets returns the channel packets are delivered on. Closed
	// after Stop completes and the producer goroutine exits.
	Packets() <-chan flow.PacketRecord
	// Dropped returns the number of packets discarded because the
	// bounded queue was full.
	Dropped() uint64
}

// queue is the bounded-channel-plus-drop-counter primitive the concrete
// PcapSource uses, matching its "drop-on-full" policy: the
// source increments a dropped counter and discards rather than blocking
// the capture thread.
type queue struct {
	ch chan flow.PacketRecord
	dropped uint64
}

func newQueue(depth int) *queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &queue{ch: make(chan flow.PacketRecord, depth)}
}

// offer attempts a non-blocking send, incrementing the drop counter on
// a full queue instead of blocking the producer.
func (q *queue) offer(p flow.PacketRecord) {
	select {
	case q.ch <- p:
	default:
		atomic.AddUint64(&q.dropped, 1)
	}
}

func (q *queue) dropCount() uint64 { return atomic.LoadUint64(&q.dropped) }
