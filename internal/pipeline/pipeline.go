// Package pipeline implements PacketPipeline : drains one or
// more capture.Source queues, classifies each packet through
// flowtable.Tracker, folds the result into per-interface
// ifmetrics.Metrics, recomputes rates at 1 Hz, and publishes snapshots
// to store.Store. Grounded on original_source's
// processing/packet_processor.py (PacketProcessor._processing_loop/
// _process_packet/_calculate_rates) and the teacher's
// collector.New()/Start/Stop goroutine-plus-channel shape, logged with
// go.uber.org/zap in place of the teacher's bare log.Printf.
package pipeline

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/googlesky/netsniff/internal/capture"
	"github.com/googlesky/netsniff/internal/flow"
	"github.com/googlesky/netsniff/internal/flowtable"
	"github.com/googlesky/netsniff/internal/ifmetrics"
	"github.com/googlesky/netsniff/internal/loss"
	"github.com/googlesky/netsniff/internal/obs"
	"github.com/googlesky/netsniff/internal/store"
)

const rateInterval = 1 * time.Second

// PacketCallback is invoked once per processed packet, after metric
// updates ("Packet and event callbacks fire after metric
// updates").
type PacketCallback func(flow.PacketRecord)

// EventCallback is invoked once per packet that produced a
// non-EventNone classification.
type EventCallback func(flowtable.Event, flow.PacketRecord)

// Stats mirrors original_source's ProcessorStats: lightweight,
// lock-free counters safe to read from any goroutine via atomics-free
// snapshotting (only the owning worker mutates them).
type Stats struct {
	PacketsProcessed uint64
	ProcessingErrors uint64
	StartTime float64
}

// Pipeline owns the flow tracker and one ifmetrics.Metrics per
// interface, draining every registered capture.Source into a shared
// classification loop ( "owned by the pipeline thread").
type Pipeline struct {
	tracker *flowtable.Tracker
	store *store.Store
	logger *zap.Logger

	mu sync.Mutex
	metrics map[string]*ifmetrics.Metrics
	sources map[string]capture.Source
	retransmits map[string]*loss.RetransmitStats

	packetCallbacks []PacketCallback
	eventCallbacks []EventCallback

	stopCh chan struct{}
	doneCh chan struct{}
	wg sync.WaitGroup

	running bool
	stats Stats

	nowFn func() float64
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithLogger overrides the default no-op zap logger.
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithTracker overrides the default flowtable.Tracker (e.g. to apply
// config.FlowConfig options).
func WithTracker(t *flowtable.Tracker) Option { return func(p *Pipeline) { p.tracker = t } }

// withClock overrides the wall-clock source; used by tests to make rate
// ticks deterministic.
func withClock(fn func() float64) Option { return func(p *Pipeline) { p.nowFn = fn } }

// New creates a Pipeline backed by the given metrics store.
func New(st *store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		tracker: flowtable.New(),
		store: st,
		logger: zap.NewNop(),
		metrics: make(map[string]*ifmetrics.Metrics),
		sources: make(map[string]capture.Source),
		retransmits: make(map[string]*loss.RetransmitStats),
		nowFn: nowSeconds,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func nowSeconds() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// AddSource registers a capture.Source for an interface. Must be called
// before Start.
func (p *Pipeline) AddSource(iface string, src capture.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[iface] = src
	if _, ok := p.metrics[iface]; !ok {
		p.metrics[iface] = ifmetrics.New(iface)
	}
}

// Metrics returns the ifmetrics.Metrics for iface, creating it if this
// is the first reference (used by callers wiring link speed before
// traffic starts).
func (p *Pipeline) Metrics(iface string) *ifmetrics.Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.metrics[iface]
	if !ok {
		m = ifmetrics.New(iface)
		p.metrics[iface] = m
	}
	return m
}

// OnPacket registers a packet callback.
func (p *Pipeline) OnPacket(cb PacketCallback) { p.packetCallbacks = append(p.packetCallbacks, cb) }

// OnEvent registers a flow-event callback.
func (p *Pipeline) OnEvent(cb EventCallback) { p.eventCallbacks = append(p.eventCallbacks, cb) }

// Tracker exposes the underlying flow tracker for read-only queries
// (lookup, active_flows, tcp_connections, flow_count).
func (p *Pipeline) Tracker() *flowtable.Tracker { return p.tracker }

// Stats returns a copy of the processor's own counters.
func (p *Pipeline) Stats() Stats { return p.stats }

// retransmitStats returns (creating if needed) the running
// loss.RetransmitStats accumulator for an interface, the corroborating
// input LossLocalizer's network-loss rule consumes .
func (p *Pipeline) retransmitStats(iface string) *loss.RetransmitStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.retransmits[iface]
	if !ok {
		s = &loss.RetransmitStats{}
		p.retransmits[iface] = s
	}
	return s
}

// RetransmitStats returns a copy of the current retransmit accumulator
// for iface, for callers driving loss.Localizer.Analyze.
func (p *Pipeline) RetransmitStats(iface string) loss.RetransmitStats {
	return *p.retransmitStats(iface)
}

// Start launches every registered source and the single consumer
// worker that drains them all .
func (p *Pipeline) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stats = Stats{StartTime: p.nowFn()}
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	sources := make(map[string]capture.Source, len(p.sources))
	for k, v := range p.sources {
		sources[k] = v
	}
	p.mu.Unlock()

	for iface, src := range sources {
		if err := src.Start(); err != nil {
			p.logger.Error("capture source failed to start", zap.String("interface", iface), zap.Error(err))
			return err
		}
	}

	p.wg.Add(1)
	go p.run(sources)
	return nil
}

// run is the single consumer worker: fan-in every source's channel,
// classify, update metrics, tick rates at 1 Hz .
func (p *Pipeline) run(sources map[string]capture.Source) {
	defer p.wg.Done()
	defer close(p.doneCh)

	merged := fanIn(sources)
	ticker := time.NewTicker(rateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case pkt, ok := <-merged:
			if !ok {
				return
			}
			p.processOne(pkt)
		case <-ticker.C:
			p.tickRates()
		}
	}
}

// fanIn merges every source's packet channel into one, preserving each
// source's own FIFO order ("within a single interface, packets
// are processed in capture order").
func fanIn(sources map[string]capture.Source) <-chan flow.PacketRecord {
	out := make(chan flow.PacketRecord, 256)
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(s capture.Source) {
			defer wg.Done()
			for pkt := range s.Packets() {
				out <- pkt
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// processOne implements its per-item steps: metrics counters,
// FlowTracker.Process, event-to-counter mapping, latency/jitter
// sampling, then callbacks. Panics inside this call (from a malformed
// packet or a bug) are isolated as a processing error, never fatal to
// the worker .
func (p *Pipeline) processOne(pkt flow.PacketRecord) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.ProcessingErrors++
			obs.ProcessingErrors.WithLabelValues(pkt.Interface).Inc()
			p.logger.Error("panic while processing packet", zap.String("interface", pkt.Interface), zap.Any("recover", r))
		}
	}()

	m := p.Metrics(pkt.Interface)
	m.NotePacket(pkt.Length, pkt.Protocol)

	result := p.tracker.Process(pkt)
	pkt.IsRetransmit = result.IsRetransmit
	pkt.RTT, pkt.HasRTT = result.RTT, result.HasRTT

	switch result.Event {
	case flowtable.EventRetransmit:
		m.NoteEvent(ifmetrics.EventRetransmission)
		if result.HasRTT {
			p.retransmitStats(pkt.Interface).RecordRetransmit(result.RTT)
		}
	case flowtable.EventOutOfOrder:
		m.NoteEvent(ifmetrics.EventOutOfOrder)
	case flowtable.EventDuplicateAck:
		m.NoteEvent(ifmetrics.EventDuplicateAck)
	}

	if result.Event == flowtable.EventRTTSample && result.HasRTT {
		m.AddLatency(result.RTT * 1000)
	}

	if result.Flow != nil {
		if jitter, ok := result.Flow.JitterMS(); ok {
			m.AddJitter(jitter)
		}
		p.store.SetFlow(result.Flow)
	}

	p.stats.PacketsProcessed++
	p.invokeCallbacks(pkt, result.Event)
}

func (p *Pipeline) invokeCallbacks(pkt flow.PacketRecord, event flowtable.Event) {
	for _, cb := range p.packetCallbacks {
		p.safeCallPacket(cb, pkt)
	}
	if event == flowtable.EventNone {
		return
	}
	for _, cb := range p.eventCallbacks {
		p.safeCallEvent(cb, event, pkt)
	}
}

// safeCallPacket and safeCallEvent isolate callback panics (
// "callback failures are isolated (logged, never fatal)").
func (p *Pipeline) safeCallPacket(cb PacketCallback, pkt flow.PacketRecord) {
	defer func() {
		if r := recover(); r != nil {
			obs.CallbackErrors.WithLabelValues("packet").Inc()
			p.logger.Warn("packet callback panicked", zap.Any("recover", r))
		}
	}()
	cb(pkt)
}

func (p *Pipeline) safeCallEvent(cb EventCallback, event flowtable.Event, pkt flow.PacketRecord) {
	defer func() {
		if r := recover(); r != nil {
			obs.CallbackErrors.WithLabelValues("event").Inc()
			p.logger.Warn("event callback panicked", zap.Any("recover", r))
		}
	}()
	cb(event, pkt)
}

// tickRates recomputes rates for every tracked interface and publishes
// a fresh snapshot to the store ( "Rate clock").
func (p *Pipeline) tickRates() {
	now := p.nowFn()

	p.mu.Lock()
	metrics := make([]*ifmetrics.Metrics, 0, len(p.metrics))
	for _, m := range p.metrics {
		metrics = append(metrics, m)
	}
	p.mu.Unlock()

	for _, m := range metrics {
		m.RecomputeRates(now)
		p.store.SetSnapshot(m.Name(), m.Snapshot())
	}
}

// Stop implements its stop(drain) semantics: halt every source,
// optionally drain what's already queued, then run a final rate
// recomputation. The worker joins with a bounded timeout ("2s
// timeout; on timeout the worker is abandoned").
func (p *Pipeline) Stop(drain bool) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	sources := make(map[string]capture.Source, len(p.sources))
	for k, v := range p.sources {
		sources[k] = v
	}
	p.mu.Unlock()

	for iface, src := range sources {
		src.Stop()
		obs.QueueDropped.WithLabelValues(iface).Add(float64(src.Dropped()))
	}

	close(p.stopCh)

	if drain {
		p.drainRemaining(sources)
	}

	p.joinWithTimeout(2 * time.Second)
	p.tickRates()
}

// drainRemaining synchronously processes whatever is still buffered in
// each source's channel after Stop halts production, matching
// original_source's stop(drain_queue=True) loop. Sources are already
// stopped, so their channels are closed and this simply empties them.
func (p *Pipeline) drainRemaining(sources map[string]capture.Source) {
	for _, src := range sources {
	drainLoop:
		for {
			select {
			case pkt, ok := <-src.Packets():
				if !ok {
					break drainLoop
				}
				p.processOne(pkt)
			default:
				break drainLoop
			}
		}
	}
}

func (p *Pipeline) joinWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		p.logger.Warn("pipeline worker did not join within timeout; abandoning")
	}
}
