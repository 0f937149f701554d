package flowtable

import (
	"sort"
	"sync"

	"github.com/googlesky/netsniff/internal/flow"
)

const (
	defaultMaxFlows = 10000
	defaultFlowTimeout = 300.0 // seconds
	evictFraction = 10 // evict oldest 1/10th on overflow
)

// Result is what Process reports back to the pipeline: the flow touched,
// the classified event, and the derived fields ("Derived fields
// (is_retransmit, rtt) are set by the pipeline") the pipeline should stamp
// onto its own copy of the packet.
type Result struct {
	Flow *flow.Flow
	Event Event
	RTT float64
	HasRTT bool
	IsRetransmit bool
}

// Tracker owns the flow table under a single mutex ("Flow table:
// protected by a single mutex inside FlowTracker. All mutations and reads
// ... take the lock. External callers get copies, never internal
// references.").
type Tracker struct {
	maxFlows int
	flowTimeout float64

	mu sync.Mutex
	flows map[flow.FlowKey]*flow.Flow
	pendingSYN map[flow.FlowKey]float64
}

// Option configures a Tracker at construction.
type Option func(*Tracker)

// WithMaxFlows overrides the default flow-table capacity (10000).
func WithMaxFlows(n int) Option { return func(t *Tracker) { t.maxFlows = n } }

// WithFlowTimeout overrides the default idle-eviction window (300s).
func WithFlowTimeout(seconds float64) Option {
	return func(t *Tracker) { t.flowTimeout = seconds }
}

// New creates an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		maxFlows: defaultMaxFlows,
		flowTimeout: defaultFlowTimeout,
		flows: make(map[flow.FlowKey]*flow.Flow),
		pendingSYN: make(map[flow.FlowKey]float64),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Process classifies one packet against the flow table . It is
// the single critical section: flow lookup/creation, eviction, counters,
// TCP state machine, sequence tracking, and IAT all happen under the lock.
func (t *Tracker) Process(p flow.PacketRecord) Result {
	key := flow.KeyFor(p)

	t.mu.Lock()
	defer t.mu.Unlock()

	f, exists := t.flows[key]
	event := EventNone
	if !exists {
		if len(t.flows) >= t.maxFlows {
			t.evictOldestLocked()
		}
		f = flow.New(key, p.Timestamp)
		t.flows[key] = f
		event = EventNewFlow
	}

	if !p.HasPorts {
		// Pseudo-flows (ICMP, etc.) are not bidirectionally canonicalized;
		// every packet counts as "sent", matching the original's
		// _handle_non_flow_packet.
		f.RecordDirectional(true, p.Length)
		f.Touch(p.Timestamp)
		return Result{Flow: f, Event: event}
	}

	forward := key.IsForward(p.SrcIP, p.SrcPort)
	f.RecordDirectional(forward, p.Length)

	result := Result{Flow: f}
	if p.IsTCP() && f.TCP != nil {
		tcpEvent, rtt, hasRTT, isRetransmit := t.processTCP(key, p, f)
		event = combine(event, tcpEvent)
		result.RTT, result.HasRTT, result.IsRetransmit = rtt, hasRTT, isRetransmit
	}

	f.Touch(p.Timestamp)
	result.Event = event
	return result
}

// processTCP mirrors _process_tcp_packet: state machine, window/ECN
// tracking, retransmit/out-of-order detection, and the (stubbed)
// duplicate-ACK check.
func (t *Tracker) processTCP(key flow.FlowKey, p flow.PacketRecord, f *flow.Flow) (event Event, rtt float64, hasRTT bool, isRetransmit bool) {
	tcp := f.TCP
	pendingTime, havePending := t.pendingSYN[key]

	handshakeRTT, gotHandshakeRTT, clearPending := tcp.ApplyFlags(p.Flags, p.Timestamp, pendingTime, havePending)
	if p.Flags.SYN() && !p.Flags.ACK() {
		t.pendingSYN[key] = p.Timestamp
	}
	if clearPending {
		delete(t.pendingSYN, key)
	}
	if gotHandshakeRTT {
		f.RTTSamples.Push(handshakeRTT)
		event = combine(event, EventRTTSample)
		rtt, hasRTT = handshakeRTT, true
	}

	tcp.WindowSizes.Push(float64(p.Window))

	check := f.ObserveSequence(p.Seq, p.Timestamp)
	switch check.Outcome {
	case flow.SeqRetransmit:
		f.Retransmits++
		isRetransmit = true
		if check.RetransmitDelay > 0 {
			f.RTTSamples.Push(check.RetransmitDelay)
			rtt, hasRTT = check.RetransmitDelay, true
		}
		event = combine(event, EventRetransmit)
	case flow.SeqOutOfOrder:
		f.OutOfOrder++
		event = combine(event, EventOutOfOrder)
	}

	// Duplicate-ACK detection is reserved but intentionally a no-op: the
	// original source's _check_duplicate_ack returns None with a TODO, and
	// this rewrite preserves that placeholder rather than inventing a
	// heuristic the original author chose not to ship .
	t.checkDuplicateAck(key, p, f)

	return event, rtt, hasRTT, isRetransmit
}

// checkDuplicateAck is the structural stub the original leaves unfinished:
// DuplicateAcks and EventDuplicateAck are reserved and wired through the
// rest of the pipeline, but this never increments the counter.
func (t *Tracker) checkDuplicateAck(key flow.FlowKey, p flow.PacketRecord, f *flow.Flow) {
	_ = key
	_ = p
	_ = f
}

// evictOldestLocked removes the oldest 10% of flows by last-seen, along
// with their pending-SYN bookkeeping. Must be called with t.mu held.
func (t *Tracker) evictOldestLocked() {
	type entry struct {
		key flow.FlowKey
		lastSeen float64
	}
	entries := make([]entry, 0, len(t.flows))
	for k, f := range t.flows {
		entries = append(entries, entry{k, f.LastSeen})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].lastSeen < entries[j].lastSeen })

	toRemove := len(entries) / evictFraction
	for i := 0; i < toRemove; i++ {
		k := entries[i].key
		delete(t.flows, k)
		delete(t.pendingSYN, k)
	}
}

// Lookup returns a read-only projection of the flow by key. ok is false
// if the key isn't tracked. The returned View is a value copy taken
// under the lock ("external callers get copies, never internal
// references") so the caller can read it after Lookup returns without
// racing the tracker's own locked mutation.
func (t *Tracker) Lookup(key flow.FlowKey) (view flow.View, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.flows[key]
	if !ok {
		return flow.View{}, false
	}
	return f.Snapshot(), true
}

// AllFlows returns a projection of every tracked flow.
func (t *Tracker) AllFlows() []flow.View {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]flow.View, 0, len(t.flows))
	for _, f := range t.flows {
		out = append(out, f.Snapshot())
	}
	return out
}

// ActiveFlows returns projections of flows whose last-seen is within
// maxAge of now.
func (t *Tracker) ActiveFlows(now, maxAge float64) []flow.View {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]flow.View, 0)
	for _, f := range t.flows {
		if now-f.LastSeen <= maxAge {
			out = append(out, f.Snapshot())
		}
	}
	return out
}

// TCPConnections returns projections of every tracked flow that carries
// a TCP extension.
func (t *Tracker) TCPConnections() []flow.View {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]flow.View, 0)
	for _, f := range t.flows {
		if f.TCP != nil {
			out = append(out, f.Snapshot())
		}
	}
	return out
}

// FlowCount returns the number of tracked flows.
func (t *Tracker) FlowCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// SweepExpired removes every flow idle for longer than the configured
// flow timeout, returning the count removed.
func (t *Tracker) SweepExpired(now float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, f := range t.flows {
		if now-f.LastSeen > t.flowTimeout {
			delete(t.flows, k)
			delete(t.pendingSYN, k)
			removed++
		}
	}
	return removed
}
