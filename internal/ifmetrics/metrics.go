// Package ifmetrics implements InterfaceMetrics : the
// per-interface lifetime aggregate fed by packet and flow events. Grounded
// on original_source's models/metrics.py (InterfaceMetrics dataclass),
// reusing ring.Window/ring.EMA in place of the Python deques.
package ifmetrics

import (
	"sync"

	"github.com/googlesky/netsniff/internal/flow"
	"github.com/googlesky/netsniff/internal/ring"
)

const (
	latencyCapacity = 1000
	jitterCapacity = 1000

	// bandwidthSmoothingAlpha matches the teacher's collector.EMA default
	// for its bandwidth gauge: reacts within a few ticks without
	// chasing every single-second burst.
	bandwidthSmoothingAlpha = 0.3
)

// EventKind is the small set of loss-signal counters note_event bumps.
// The packet/flow → EventKind mapping lives in the pipeline ,
// not here, so this package stays a pure aggregate with no knowledge of
// flowtable.Event.
type EventKind int

const (
	EventRetransmission EventKind = iota
	EventOutOfOrder
	EventDuplicateAck
)

// Snapshot is an immutable copy of one interface's metrics at a point in
// time ( "snapshot -> MetricsSnapshot"), safe to read without
// the owning Metrics' lock.
type Snapshot struct {
	Interface string

	TotalPackets uint64
	TotalBytes uint64
	Retransmissions uint64
	OutOfOrder uint64
	DuplicateAcks uint64
	RxDropped uint64
	TxDropped uint64
	RxErrors uint64
	TxErrors uint64

	ProtocolCounts map[flow.Protocol]uint64
	ProtocolBytes map[flow.Protocol]uint64

	CurrentLatencyMS float64
	AvgLatencyMS float64
	MinLatencyMS float64
	MaxLatencyMS float64
	P95LatencyMS float64
	P99LatencyMS float64

	CurrentJitterMS float64
	AvgJitterMS float64

	PacketsPerSecond float64
	BytesPerSecond float64
	BandwidthMbps float64
	SmoothedBandwidthMbps float64
	LinkSpeedMbps float64
	HasLinkSpeed bool
	UtilizationPercent float64

	PacketLossPercent float64
}

// Metrics is the mutable, lock-protected per-interface aggregate.
type Metrics struct {
	mu sync.Mutex

	name string

	totalPackets uint64
	totalBytes uint64
	retransmissions uint64
	outOfOrder uint64
	duplicateAcks uint64
	rxDropped uint64
	txDropped uint64
	rxErrors uint64
	txErrors uint64

	protocolCounts map[flow.Protocol]uint64
	protocolBytes map[flow.Protocol]uint64

	latency *ring.Window
	jitter *ring.Window

	currentLatency float64
	currentJitter float64

	linkSpeedMbps float64
	hasLinkSpeed bool

	packetsPerSecond float64
	bytesPerSecond float64
	utilizationPercent float64
	bandwidthEMA *ring.EMA

	lastUpdate float64
	lastPackets uint64
	lastBytes uint64
}

// New creates an empty Metrics for the named interface.
func New(name string) *Metrics {
	return &Metrics{
		name: name,
		protocolCounts: make(map[flow.Protocol]uint64),
		protocolBytes: make(map[flow.Protocol]uint64),
		latency: ring.New(latencyCapacity),
		jitter: ring.New(jitterCapacity),
		bandwidthEMA: ring.NewEMA(bandwidthSmoothingAlpha),
	}
}

// SetLinkSpeed records the interface's nominal link speed, enabling
// utilization_percent computation in RecomputeRates.
func (m *Metrics) SetLinkSpeed(mbps float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkSpeedMbps = mbps
	m.hasLinkSpeed = mbps > 0
}

// UpdateOSCounters overwrites the OS-reported drop/error counters, as
// delivered by the capture collaborator's periodic interface-stat poll.
func (m *Metrics) UpdateOSCounters(rxDropped, txDropped, rxErrors, txErrors uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rxDropped, m.txDropped = rxDropped, txDropped
	m.rxErrors, m.txErrors = rxErrors, txErrors
}

// NotePacket records one packet's length and protocol against the
// lifetime counters and protocol histograms.
func (m *Metrics) NotePacket(length int, proto flow.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPackets++
	m.totalBytes += uint64(length)
	m.protocolCounts[proto]++
	m.protocolBytes[proto] += uint64(length)
}

// NoteEvent increments the loss-signal counter matching kind.
func (m *Metrics) NoteEvent(kind EventKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch kind {
	case EventRetransmission:
		m.retransmissions++
	case EventOutOfOrder:
		m.outOfOrder++
	case EventDuplicateAck:
		m.duplicateAcks++
	}
}

// AddLatency appends a latency sample (milliseconds) and updates
// current/avg/min/max.
func (m *Metrics) AddLatency(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency.Push(ms)
	m.currentLatency = ms
}

// AddJitter appends a jitter sample (milliseconds) and updates
// current/avg.
func (m *Metrics) AddJitter(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jitter.Push(ms)
	m.currentJitter = ms
}

// Percentile returns the p-th percentile of the latency ring.
func (m *Metrics) Percentile(p float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency.Percentile(p)
}

// RecomputeRates implements rates are computed only when
// now > last_update, from the delta in total_packets/total_bytes since
// the previous call. The first call establishes baselines and yields
// zero rates.
func (m *Metrics) RecomputeRates(now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastUpdate > 0 && now > m.lastUpdate {
		delta := now - m.lastUpdate
		m.packetsPerSecond = float64(m.totalPackets-m.lastPackets) / delta
		m.bytesPerSecond = float64(m.totalBytes-m.lastBytes) / delta
		m.bandwidthEMA.Update(m.bytesPerSecond * 8 / 1_000_000)

		if m.hasLinkSpeed && m.linkSpeedMbps > 0 {
			bitsPerSecond := m.bytesPerSecond * 8
			linkBitsPerSecond := m.linkSpeedMbps * 1_000_000
			m.utilizationPercent = (bitsPerSecond / linkBitsPerSecond) * 100
		}
	}

	m.lastUpdate = now
	m.lastPackets = m.totalPackets
	m.lastBytes = m.totalBytes
}

// Snapshot returns an immutable copy of the current metrics.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	protoCounts := make(map[flow.Protocol]uint64, len(m.protocolCounts))
	for k, v := range m.protocolCounts {
		protoCounts[k] = v
	}
	protoBytes := make(map[flow.Protocol]uint64, len(m.protocolBytes))
	for k, v := range m.protocolBytes {
		protoBytes[k] = v
	}

	var lossPercent float64
	if m.totalPackets > 0 {
		lossPercent = float64(m.retransmissions) / float64(m.totalPackets) * 100
	}

	return Snapshot{
		Interface: m.name,
		TotalPackets: m.totalPackets,
		TotalBytes: m.totalBytes,
		Retransmissions: m.retransmissions,
		OutOfOrder: m.outOfOrder,
		DuplicateAcks: m.duplicateAcks,
		RxDropped: m.rxDropped,
		TxDropped: m.txDropped,
		RxErrors: m.rxErrors,
		TxErrors: m.txErrors,

		ProtocolCounts: protoCounts,
		ProtocolBytes: protoBytes,

		CurrentLatencyMS: m.currentLatency,
		AvgLatencyMS: m.latency.Mean(),
		MinLatencyMS: m.latency.Min(),
		MaxLatencyMS: m.latency.Max(),
		P95LatencyMS: m.latency.Percentile(95),
		P99LatencyMS: m.latency.Percentile(99),

		CurrentJitterMS: m.currentJitter,
		AvgJitterMS: m.jitter.Mean(),

		PacketsPerSecond: m.packetsPerSecond,
		BytesPerSecond: m.bytesPerSecond,
		BandwidthMbps: m.bytesPerSecond * 8 / 1_000_000,
		SmoothedBandwidthMbps: m.bandwidthEMA.Value(),
		LinkSpeedMbps: m.linkSpeedMbps,
		HasLinkSpeed: m.hasLinkSpeed,
		UtilizationPercent: m.utilizationPercent,

		PacketLossPercent: lossPercent,
	}
}

// Name returns the interface name this Metrics tracks.
func (m *Metrics) Name() string { return m.name }
