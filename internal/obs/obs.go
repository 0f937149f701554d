// Package obs exposes the pipeline's own operational counters (// "recorded in counters exposed via the debug/stats API"). Grounded on
// m-lab-tcp-info/metrics's promauto package-level collector style and
// runZeroInc-sockstats/pkg/exporter's exporter shape; this package is the
// debug/stats surface those two examples export over HTTP, kept minimal
// here since the scrape endpoint itself is export-layer glue (out of
// scope per ).
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProcessingErrors counts exceptions isolated inside per-packet handling
// ("increments processing_errors and continues").
var ProcessingErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "netsniff_processing_errors_total",
		Help: "packets that raised an error during pipeline processing, by interface",
	},
	[]string{"interface"})

// QueueDropped counts capture-queue overflow drops .
var QueueDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "netsniff_queue_dropped_total",
		Help: "packets discarded because the bounded capture queue was full",
	},
	[]string{"interface"})

// SkippedPackets counts malformed/unsupported packets discarded silently
// by the capture collaborator .
var SkippedPackets = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "netsniff_skipped_packets_total",
		Help: "packets discarded as malformed or unsupported before reaching the pipeline",
	},
	[]string{"interface"})

// CallbackErrors counts failures isolated inside user packet/event
// callbacks ( "callback failures are isolated").
var CallbackErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "netsniff_callback_errors_total",
		Help: "packet/event callback invocations that panicked or returned an error",
	},
	[]string{"kind"})

// AlertsEmitted counts alerts raised by the alert engine, by rule.
var AlertsEmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "netsniff_alerts_emitted_total",
		Help: "alerts raised, by rule name",
	},
	[]string{"rule"})

// FlowsEvicted is the flow-table eviction counter, labelled by cause.
// It is registered, but no code in this module increments it, so it
// stays at zero.
var FlowsEvicted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "netsniff_flows_evicted_total",
		Help: "flow table entries removed, by cause",
	},
	[]string{"cause"})

// ComparisonsRun counts InterfaceComparator invocations, by interface
// pair, so a scrape can see comparator.Compare is actually running
// against live interfaces rather than only in its own tests.
var ComparisonsRun = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "netsniff_comparisons_run_total",
		Help: "interface comparisons run, by interface pair",
	},
	[]string{"interface_a", "interface_b"})

// KernelRetransmitsTotal mirrors the kernel's own INET_DIAG-reported TCP
// retransmit count, letting a scrape compare it against
// netsniff_processing_errors_total-adjacent, capture-derived retransmit
// figures surfaced through MetricsStore as a sanity check on the
// packet-capture classification.
var KernelRetransmitsTotal = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "netsniff_kernel_retransmits_total",
		Help: "TCP retransmit count reported by the kernel's INET_DIAG socket diagnostics, where available",
	})
