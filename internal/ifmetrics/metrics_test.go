package ifmetrics

import (
	"testing"

	"github.com/googlesky/netsniff/internal/flow"
	"github.com/stretchr/testify/require"
)

func TestNotePacketUpdatesCountersAndHistograms(t *testing.T) {
	m := New("eth0")
	m.NotePacket(100, flow.ProtoTCP)
	m.NotePacket(200, flow.ProtoUDP)

	snap := m.Snapshot()
	require.Equal(t, uint64(2), snap.TotalPackets)
	require.Equal(t, uint64(300), snap.TotalBytes)
	require.Equal(t, uint64(1), snap.ProtocolCounts[flow.ProtoTCP])
	require.Equal(t, uint64(200), snap.ProtocolBytes[flow.ProtoUDP])
}

func TestRecomputeRatesFirstCallEstablishesBaseline(t *testing.T) {
	m := New("eth0")
	m.NotePacket(1000, flow.ProtoTCP)
	m.RecomputeRates(1.0)

	snap := m.Snapshot()
	require.Equal(t, 0.0, snap.PacketsPerSecond)
	require.Equal(t, 0.0, snap.BytesPerSecond)
}

func TestRecomputeRatesSecondCallComputesDelta(t *testing.T) {
	m := New("eth0")
	m.NotePacket(1000, flow.ProtoTCP)
	m.RecomputeRates(1.0)

	m.NotePacket(1000, flow.ProtoTCP)
	m.RecomputeRates(2.0)

	snap := m.Snapshot()
	require.InDelta(t, 1.0, snap.PacketsPerSecond, 1e-9)
	require.InDelta(t, 1000.0, snap.BytesPerSecond, 1e-9)
	require.InDelta(t, 1000.0*8/1_000_000, snap.BandwidthMbps, 1e-9)
	// A single sample primes the EMA to the raw value; it only diverges
	// from BandwidthMbps once rates start changing between ticks.
	require.InDelta(t, snap.BandwidthMbps, snap.SmoothedBandwidthMbps, 1e-9)
}

func TestRecomputeRatesUtilizationRequiresLinkSpeed(t *testing.T) {
	m := New("eth0")
	m.SetLinkSpeed(100) // 100 Mbps link
	m.NotePacket(1_000_000, flow.ProtoTCP)
	m.RecomputeRates(1.0)
	m.NotePacket(1_000_000, flow.ProtoTCP)
	m.RecomputeRates(2.0)

	snap := m.Snapshot()
	// 1,000,000 bytes/s * 8 = 8,000,000 bits/s over a 100,000,000 bit/s link.
	require.InDelta(t, 8.0, snap.UtilizationPercent, 1e-6)
}

func TestLatencyMinAvgMax(t *testing.T) {
	m := New("eth0")
	m.AddLatency(10)
	m.AddLatency(50)
	m.AddLatency(30)

	snap := m.Snapshot()
	require.Equal(t, 30.0, snap.CurrentLatencyMS)
	require.InDelta(t, 30.0, snap.AvgLatencyMS, 1e-9)
	require.Equal(t, 10.0, snap.MinLatencyMS)
	require.Equal(t, 50.0, snap.MaxLatencyMS)
	require.True(t, snap.MinLatencyMS <= snap.AvgLatencyMS && snap.AvgLatencyMS <= snap.MaxLatencyMS)
}

func TestNoteEventIncrementsCorrectCounter(t *testing.T) {
	m := New("eth0")
	m.NoteEvent(EventRetransmission)
	m.NoteEvent(EventRetransmission)
	m.NoteEvent(EventOutOfOrder)
	m.NoteEvent(EventDuplicateAck)

	snap := m.Snapshot()
	require.Equal(t, uint64(2), snap.Retransmissions)
	require.Equal(t, uint64(1), snap.OutOfOrder)
	require.Equal(t, uint64(1), snap.DuplicateAcks)
}

func TestPacketLossPercent(t *testing.T) {
	m := New("eth0")
	for i := 0; i < 100; i++ {
		m.NotePacket(60, flow.ProtoTCP)
	}
	m.NoteEvent(EventRetransmission)
	m.NoteEvent(EventRetransmission)

	snap := m.Snapshot()
	require.InDelta(t, 2.0, snap.PacketLossPercent, 1e-9)
}

func TestUpdateOSCounters(t *testing.T) {
	m := New("eth0")
	m.UpdateOSCounters(5, 1, 2, 0)
	snap := m.Snapshot()
	require.Equal(t, uint64(5), snap.RxDropped)
	require.Equal(t, uint64(1), snap.TxDropped)
	require.Equal(t, uint64(2), snap.RxErrors)
}
