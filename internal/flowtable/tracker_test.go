package flowtable

import (
	"testing"

	"github.com/googlesky/netsniff/internal/flow"
	"github.com/stretchr/testify/require"
)

func tcpPacket(ts float64, srcIP string, srcPort uint16, dstIP string, dstPort uint16, flags flow.TCPFlags, seq uint32) flow.PacketRecord {
	return flow.PacketRecord{
		Timestamp: ts,
		Interface: "eth0",
		SrcIP:     srcIP,
		DstIP:     dstIP,
		HasPorts:  true,
		SrcPort:   srcPort,
		DstPort:   dstPort,
		Protocol:  flow.ProtoTCP,
		Length:    60,
		Flags:     flags,
		Seq:       seq,
	}
}

// S1 — Retransmit detection.
func TestScenarioRetransmitDetection(t *testing.T) {
	tr := New()

	r1 := tr.Process(tcpPacket(0.000, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 1000))
	require.Equal(t, EventNewFlow, r1.Event)

	r2 := tr.Process(tcpPacket(0.050, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 2000))
	require.Equal(t, EventNone, r2.Event)

	r3 := tr.Process(tcpPacket(0.150, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 1000))
	require.Equal(t, EventRetransmit, r3.Event)
	require.True(t, r3.IsRetransmit)
	require.Equal(t, uint64(1), r3.Flow.Retransmits)
	require.InDelta(t, 0.150, r3.RTT, 1e-9)
}

// S2 — SYN/SYN-ACK RTT and state transitions.
func TestScenarioHandshakeRTT(t *testing.T) {
	tr := New()

	r1 := tr.Process(tcpPacket(1.000, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagSYN, 1))
	require.Equal(t, flow.StateSynSent, r1.Flow.TCP.State)

	r2 := tr.Process(tcpPacket(1.040, "10.0.0.2", 80, "10.0.0.1", 5000, flow.FlagSYN|flow.FlagACK, 5000))
	require.Equal(t, EventRTTSample, r2.Event)
	require.Equal(t, flow.StateSynReceived, r2.Flow.TCP.State)
	require.InDelta(t, 0.040, r2.RTT, 1e-9)

	r3 := tr.Process(tcpPacket(1.045, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 2))
	require.Equal(t, flow.StateEstablished, r3.Flow.TCP.State)
	require.InDelta(t, 40.0, r3.Flow.AvgRTTMS(), 1e-6)
}

// S3 — Bidirectional key canonicalization.
func TestScenarioBidirectionalCanonicalization(t *testing.T) {
	tr := New()

	r1 := tr.Process(tcpPacket(0, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 1))
	r2 := tr.Process(tcpPacket(1, "10.0.0.2", 80, "10.0.0.1", 5000, flow.FlagACK, 1))

	require.Same(t, r1.Flow, r2.Flow)
	require.Equal(t, uint64(1), r1.Flow.PacketsSent)
	require.Equal(t, uint64(1), r1.Flow.PacketsReceived)
	require.Equal(t, 1, tr.FlowCount())
}

func TestEvictionKeepsTableAtCapacity(t *testing.T) {
	tr := New(WithMaxFlows(10))
	for i := 0; i < 50; i++ {
		ts := float64(i)
		port := uint16(1000 + i)
		tr.Process(tcpPacket(ts, "10.0.0.1", port, "10.0.0.2", 80, flow.FlagACK, 1))
		require.LessOrEqual(t, tr.FlowCount(), 10)
	}
}

func TestSweepExpiredRemovesIdleFlows(t *testing.T) {
	tr := New(WithFlowTimeout(10))
	tr.Process(tcpPacket(0, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 1))
	require.Equal(t, 1, tr.FlowCount())

	removed := tr.SweepExpired(5) // within timeout
	require.Equal(t, 0, removed)

	removed = tr.SweepExpired(20) // past timeout
	require.Equal(t, 1, removed)
	require.Equal(t, 0, tr.FlowCount())
}

func TestDuplicateAckStubNeverIncrementsCounter(t *testing.T) {
	tr := New()
	r := tr.Process(tcpPacket(0, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 1))
	require.Equal(t, uint64(0), r.Flow.DuplicateAcks)
}

func TestPseudoFlowAlwaysCountsAsSent(t *testing.T) {
	tr := New()
	p := flow.PacketRecord{Timestamp: 0, SrcIP: "10.0.0.1", DstIP: "10.0.0.2", Protocol: flow.ProtoICMP, Length: 64}
	r1 := tr.Process(p)
	p.Timestamp = 1
	r2 := tr.Process(p)
	require.Same(t, r1.Flow, r2.Flow)
	require.Equal(t, uint64(2), r2.Flow.PacketsSent)
	require.Equal(t, uint64(0), r2.Flow.PacketsReceived)
}

// Lookup/AllFlows/ActiveFlows/TCPConnections return flow.View value
// copies, not pointers into the locked map.
func TestAccessorsReturnValueCopiesNotLiveReferences(t *testing.T) {
	tr := New()
	r := tr.Process(tcpPacket(0, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 1))
	key := r.Flow.Key

	view, ok := tr.Lookup(key)
	require.True(t, ok)
	require.Equal(t, uint64(1), view.TotalPackets())

	// Mutate the live flow further; the already-returned View must not
	// change underneath the caller.
	tr.Process(tcpPacket(1, "10.0.0.1", 5000, "10.0.0.2", 80, flow.FlagACK, 2))
	require.Equal(t, uint64(1), view.TotalPackets(), "view must be frozen at the time of Lookup")

	all := tr.AllFlows()
	require.Len(t, all, 1)
	require.Equal(t, key, all[0].Key)

	active := tr.ActiveFlows(1, 10)
	require.Len(t, active, 1)

	tcpConns := tr.TCPConnections()
	require.Len(t, tcpConns, 1)
	require.True(t, tcpConns[0].IsTCP)

	_, ok = tr.Lookup(flow.FlowKey{})
	require.False(t, ok)
}
