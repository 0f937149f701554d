package flow

import (
	"sort"

	"github.com/googlesky/netsniff/internal/ring"
)

const (
	rttSampleCapacity = 100
	iatSampleCapacity = 100
	seqHistoryCap = 1000
	seqHistoryKeep = 500
)

// SeqOutcome classifies a sequence number against a flow's seen history.
type SeqOutcome int

const (
	SeqNew SeqOutcome = iota
	SeqRetransmit
	SeqOutOfOrder
)

// SeqCheck is the result of observing a sequence number on a flow.
type SeqCheck struct {
	Outcome SeqOutcome
	// RetransmitDelay is now-firstSeen, valid only when Outcome is
	// SeqRetransmit; used as a coarse RTT proxy .
	RetransmitDelay float64
}

// Flow is a bidirectional conversation keyed by its canonical FlowKey.
// All mutation happens under FlowTracker's single lock; Flow itself is not
// internally synchronized ("Flow table: protected by a single
// mutex inside FlowTracker").
type Flow struct {
	Key FlowKey
	StartTime float64
	LastSeen float64

	PacketsSent uint64
	PacketsReceived uint64
	BytesSent uint64
	BytesReceived uint64

	Retransmits uint64
	OutOfOrder uint64
	DuplicateAcks uint64

	RTTSamples *ring.Window
	IATSamples *ring.Window

	lastPacketTime float64
	hasLastPacketTime bool

	SeqHistory map[uint32]float64
	SeenSequences map[uint32]struct{}
	HighestSeq uint32

	// TCP is nil for non-TCP-family flows.
	TCP *TCPExtension
}

// New creates a Flow for the given key, seeding start/last-seen to now.
// If proto is TCP family, a TCPExtension is attached.
func New(key FlowKey, now float64) *Flow {
	f := &Flow{
		Key: key,
		StartTime: now,
		LastSeen: now,
		RTTSamples: ring.New(rttSampleCapacity),
		IATSamples: ring.New(iatSampleCapacity),
		SeqHistory: make(map[uint32]float64),
		SeenSequences: make(map[uint32]struct{}),
	}
	if key.Protocol.IsTCPFamily() {
		f.TCP = newTCPExtension()
	}
	return f
}

// Duration returns the flow's lifetime so far in seconds.
func (f *Flow) Duration() float64 { return f.LastSeen - f.StartTime }

// TotalPackets returns packets seen in both directions.
func (f *Flow) TotalPackets() uint64 { return f.PacketsSent + f.PacketsReceived }

// TotalBytes returns bytes seen in both directions.
func (f *Flow) TotalBytes() uint64 { return f.BytesSent + f.BytesReceived }

// PacketLossRate estimates loss as retransmits over total packets.
func (f *Flow) PacketLossRate() float64 {
	total := f.TotalPackets()
	if total == 0 {
		return 0
	}
	return float64(f.Retransmits) / float64(total)
}

// AvgRTT returns the mean RTT sample in seconds, 0 if none taken.
func (f *Flow) AvgRTT() float64 { return f.RTTSamples.Mean() }

// AvgRTTMS returns AvgRTT in milliseconds.
func (f *Flow) AvgRTTMS() float64 { return f.AvgRTT() * 1000 }

// RecordDirectional updates sent/received packet and byte counters.
// sent reports whether the packet travelled in the canonical "sent"
// direction (src endpoint equals the key's first endpoint).
func (f *Flow) RecordDirectional(sent bool, length int) {
	if sent {
		f.PacketsSent++
		f.BytesSent += uint64(length)
	} else {
		f.PacketsReceived++
		f.BytesReceived += uint64(length)
	}
}

// Touch advances LastSeen and records an inter-arrival-time sample if a
// previous packet time is known .
func (f *Flow) Touch(now float64) {
	if f.hasLastPacketTime {
		f.IATSamples.Push(now - f.lastPacketTime)
	}
	f.lastPacketTime = now
	f.hasLastPacketTime = true
	f.LastSeen = now
}

// Jitter is the mean absolute difference between consecutive IAT samples,
// requiring at least two samples .
func (f *Flow) Jitter() (float64, bool) {
	samples := f.IATSamples.Samples()
	if len(samples) < 2 {
		return 0, false
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		d := samples[i] - samples[i-1]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(samples)-1), true
}

// JitterMS returns Jitter in milliseconds.
func (f *Flow) JitterMS() (float64, bool) {
	j, ok := f.Jitter()
	if !ok {
		return 0, false
	}
	return j * 1000, true
}

// ObserveSequence classifies seq against the flow's sequence memory and
// updates that memory, pruning when it exceeds capacity (
// invariant 7 "sequence-number memory growth").
func (f *Flow) ObserveSequence(seq uint32, now float64) SeqCheck {
	if firstSeen, ok := f.SeqHistory[seq]; ok {
		return SeqCheck{Outcome: SeqRetransmit, RetransmitDelay: now - firstSeen}
	}
	if seq < f.HighestSeq {
		if _, seen := f.SeenSequences[seq]; !seen {
			return SeqCheck{Outcome: SeqOutOfOrder}
		}
	}
	f.SeqHistory[seq] = now
	f.SeenSequences[seq] = struct{}{}
	if seq > f.HighestSeq {
		f.HighestSeq = seq
	}
	f.pruneSeqHistory()
	return SeqCheck{Outcome: SeqNew}
}

// View is an immutable, race-free projection of a Flow, the shape
// FlowTracker hands back to callers outside its lock ( "External
// callers get copies, never internal references"). It carries the
// output fields spec.md §6 names for "Flow projections (read-only
// copies)": FlowKey, counters, rtt_ms, jitter_ms, first/last_seen.
type View struct {
	Key FlowKey
	StartTime float64
	LastSeen float64

	PacketsSent uint64
	PacketsReceived uint64
	BytesSent uint64
	BytesReceived uint64

	Retransmits uint64
	OutOfOrder uint64
	DuplicateAcks uint64

	AvgRTTMS float64
	JitterMS float64
	HasJitter bool

	IsTCP bool
	TCPState TCPState
}

// TotalPackets returns packets seen in both directions.
func (v View) TotalPackets() uint64 { return v.PacketsSent + v.PacketsReceived }

// TotalBytes returns bytes seen in both directions.
func (v View) TotalBytes() uint64 { return v.BytesSent + v.BytesReceived }

// Duration returns the flow's lifetime so far in seconds.
func (v View) Duration() float64 { return v.LastSeen - v.StartTime }

// Snapshot copies f's current state into a View safe to read without
// f's owning tracker lock. Must be called with that lock held.
func (f *Flow) Snapshot() View {
	v := View{
		Key: f.Key,
		StartTime: f.StartTime,
		LastSeen: f.LastSeen,
		PacketsSent: f.PacketsSent,
		PacketsReceived: f.PacketsReceived,
		BytesSent: f.BytesSent,
		BytesReceived: f.BytesReceived,
		Retransmits: f.Retransmits,
		OutOfOrder: f.OutOfOrder,
		DuplicateAcks: f.DuplicateAcks,
		AvgRTTMS: f.AvgRTTMS(),
	}
	v.JitterMS, v.HasJitter = f.JitterMS()
	if f.TCP != nil {
		v.IsTCP = true
		v.TCPState = f.TCP.State
	}
	return v
}

// pruneSeqHistory keeps only the 500 most-recent-by-timestamp entries once
// the table exceeds 1000 entries.
func (f *Flow) pruneSeqHistory() {
	if len(f.SeqHistory) <= seqHistoryCap {
		return
	}
	type entry struct {
		seq uint32
		t float64
	}
	entries := make([]entry, 0, len(f.SeqHistory))
	for seq, t := range f.SeqHistory {
		entries = append(entries, entry{seq, t})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].t > entries[j].t })
	if len(entries) > seqHistoryKeep {
		entries = entries[:seqHistoryKeep]
	}
	newHist := make(map[uint32]float64, len(entries))
	newSeen := make(map[uint32]struct{}, len(entries))
	for _, e := range entries {
		newHist[e.seq] = e.t
		newSeen[e.seq] = struct{}{}
	}
	f.SeqHistory = newHist
	f.SeenSequences = newSeen
}
