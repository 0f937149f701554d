// Package store implements MetricsStore : a thread-safe
// in-memory cache of the latest per-interface snapshot, a per-interface
// time-series ring of each scalar metric, and a flow cache with top-N
// queries. Grounded on original_source's storage/metrics_store.py
// (MetricsStore/TimeSeriesBuffer), reusing internal/ring.Window in
// place of the Python deque-backed TimeSeriesBuffer.
package store

import (
	"sort"
	"sync"

	"github.com/googlesky/netsniff/internal/flow"
	"github.com/googlesky/netsniff/internal/ifmetrics"
	"github.com/googlesky/netsniff/internal/ring"
)

// DefaultTimeSeriesCapacity is the per-metric ring capacity (// "capacity default 3600").
const DefaultTimeSeriesCapacity = 3600

// DefaultMaxFlows bounds the flow cache ( eviction: "when
// |flows| > max_flows, drop oldest 20% by last_seen").
const DefaultMaxFlows = 5000

// seriesMetrics are the five scalar metrics recorded per snapshot (spec
//: "pps, mbps, latency_ms, jitter_ms, loss_percent").
var seriesMetrics = []string{"pps", "mbps", "latency_ms", "jitter_ms", "loss_percent"}

// FlowEntry is the read-only flow projection the cache stores (// "Flow projections (read-only copies)").
type FlowEntry struct {
	Key flow.FlowKey
	Packets uint64
	Bytes uint64
	Retransmits uint64
	RTTMs float64
	JitterMs float64
	FirstSeen float64
	LastSeen float64
}

func projectFlow(f *flow.Flow) FlowEntry {
	jitter, _ := f.JitterMS()
	return FlowEntry{
		Key: f.Key,
		Packets: f.TotalPackets(),
		Bytes: f.TotalBytes(),
		Retransmits: f.Retransmits,
		RTTMs: f.AvgRTTMS(),
		JitterMs: jitter,
		FirstSeen: f.StartTime,
		LastSeen: f.LastSeen,
	}
}

// Store is the thread-safe metrics/flow cache ("every
// collection ... has its own mutex; no nested locking across them").
type Store struct {
	tsCapacity int
	maxFlows int

	snapMu sync.Mutex
	snapshots map[string]ifmetrics.Snapshot

	seriesMu sync.Mutex
	series map[string]map[string]*ring.Window

	flowMu sync.Mutex
	flows map[flow.FlowKey]FlowEntry
}

// Option configures a Store at construction.
type Option func(*Store)

// WithTimeSeriesCapacity overrides the per-metric ring capacity.
func WithTimeSeriesCapacity(n int) Option { return func(s *Store) { s.tsCapacity = n } }

// WithMaxFlows overrides the flow cache's eviction threshold.
func WithMaxFlows(n int) Option { return func(s *Store) { s.maxFlows = n } }

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		tsCapacity: DefaultTimeSeriesCapacity,
		maxFlows: DefaultMaxFlows,
		snapshots: make(map[string]ifmetrics.Snapshot),
		series: make(map[string]map[string]*ring.Window),
		flows: make(map[flow.FlowKey]FlowEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSnapshot replaces an interface's cached snapshot and appends to its
// time-series rings .
func (s *Store) SetSnapshot(iface string, snap ifmetrics.Snapshot) {
	s.snapMu.Lock()
	s.snapshots[iface] = snap
	s.snapMu.Unlock()

	s.seriesMu.Lock()
	rings, ok := s.series[iface]
	if !ok {
		rings = make(map[string]*ring.Window, len(seriesMetrics))
		for _, m := range seriesMetrics {
			rings[m] = ring.New(s.tsCapacity)
		}
		s.series[iface] = rings
	}
	rings["pps"].Push(snap.PacketsPerSecond)
	rings["mbps"].Push(snap.BandwidthMbps)
	rings["latency_ms"].Push(snap.AvgLatencyMS)
	rings["jitter_ms"].Push(snap.AvgJitterMS)
	rings["loss_percent"].Push(snap.PacketLossPercent)
	s.seriesMu.Unlock()
}

// GetSnapshot returns the cached snapshot for iface, or false if none
// has been published yet.
func (s *Store) GetSnapshot(iface string) (ifmetrics.Snapshot, bool) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	snap, ok := s.snapshots[iface]
	return snap, ok
}

// AllSnapshots returns every cached snapshot, keyed by interface.
func (s *Store) AllSnapshots() map[string]ifmetrics.Snapshot {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	out := make(map[string]ifmetrics.Snapshot, len(s.snapshots))
	for k, v := range s.snapshots {
		out[k] = v
	}
	return out
}

// TimeSeries returns the last n points of the named metric for iface.
// metric must be one of "pps", "mbps", "latency_ms", "jitter_ms",
// "loss_percent"; anything else returns nil.
func (s *Store) TimeSeries(iface, metric string, lastN int) []float64 {
	s.seriesMu.Lock()
	defer s.seriesMu.Unlock()

	rings, ok := s.series[iface]
	if !ok {
		return nil
	}
	w, ok := rings[metric]
	if !ok {
		return nil
	}
	samples := w.Samples()
	if lastN > 0 && lastN < len(samples) {
		samples = samples[len(samples)-lastN:]
	}
	return samples
}

// SetFlow inserts or updates a flow cache entry, evicting the oldest
// 20% by LastSeen when the cache overflows ( eviction rule).
func (s *Store) SetFlow(f *flow.Flow) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	s.flows[f.Key] = projectFlow(f)
	if len(s.flows) > s.maxFlows {
		s.evictOldestLocked()
	}
}

// SyncFlows stores projections of every flow in flows in one locked
// pass, a batch form of SetFlow. The pipeline itself calls SetFlow per
// packet.
func (s *Store) SyncFlows(flows []*flow.Flow) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	for _, f := range flows {
		s.flows[f.Key] = projectFlow(f)
	}
	if len(s.flows) > s.maxFlows {
		s.evictOldestLocked()
	}
}

func (s *Store) evictOldestLocked() {
	type entry struct {
		key flow.FlowKey
		lastSeen float64
	}
	entries := make([]entry, 0, len(s.flows))
	for k, f := range s.flows {
		entries = append(entries, entry{k, f.LastSeen})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].lastSeen < entries[j].lastSeen })

	toRemove := len(entries) / 5
	for i := 0; i < toRemove; i++ {
		delete(s.flows, entries[i].key)
	}
}

// GetFlow returns one cached flow projection by key.
func (s *Store) GetFlow(key flow.FlowKey) (FlowEntry, bool) {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	f, ok := s.flows[key]
	return f, ok
}

// AllFlows returns every cached flow projection.
func (s *Store) AllFlows() []FlowEntry {
	s.flowMu.Lock()
	defer s.flowMu.Unlock()
	out := make([]FlowEntry, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, f)
	}
	return out
}

// SortBy picks the field TopFlows ranks by.
type SortBy int

const (
	SortByBytes SortBy = iota
	SortByPackets
	SortByRetransmits
)

// TopFlows returns up to limit flow entries ranked by the given field,
// descending ("top-N queries sorted by bytes/packets/
// retransmits").
func (s *Store) TopFlows(limit int, by SortBy) []FlowEntry {
	all := s.AllFlows()
	sort.Slice(all, func(i, j int) bool {
		switch by {
		case SortByPackets:
			return all[i].Packets > all[j].Packets
		case SortByRetransmits:
			return all[i].Retransmits > all[j].Retransmits
		default:
			return all[i].Bytes > all[j].Bytes
		}
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

// Summary is the storage-wide rollup (supplement: original's
// get_summary).
type Summary struct {
	TotalFlows int
	InterfaceCount int
	Interfaces []string
}

// GetSummary reports overall cache occupancy.
func (s *Store) GetSummary() Summary {
	s.snapMu.Lock()
	ifaces := make([]string, 0, len(s.snapshots))
	for iface := range s.snapshots {
		ifaces = append(ifaces, iface)
	}
	s.snapMu.Unlock()

	s.flowMu.Lock()
	totalFlows := len(s.flows)
	s.flowMu.Unlock()

	sort.Strings(ifaces)
	return Summary{TotalFlows: totalFlows, InterfaceCount: len(ifaces), Interfaces: ifaces}
}

// Clear empties every collection (supplement: original's clear).
func (s *Store) Clear() {
	s.snapMu.Lock()
	s.snapshots = make(map[string]ifmetrics.Snapshot)
	s.snapMu.Unlock()

	s.seriesMu.Lock()
	s.series = make(map[string]map[string]*ring.Window)
	s.seriesMu.Unlock()

	s.flowMu.Lock()
	s.flows = make(map[flow.FlowKey]FlowEntry)
	s.flowMu.Unlock()
}
