// Package loss implements LossLocalizer : correlates
// interface-counter deltas with TCP retransmit patterns to classify
// where packet loss is occurring. Grounded on original_source's
// analysis/packet_loss_detector.py, with severity-bucket values cross
// checked against leomarviegas-isp-hc's retransmit-rate thresholding.
package loss

import (
	"fmt"

	"github.com/googlesky/netsniff/internal/capture"
	"github.com/googlesky/netsniff/internal/ifmetrics"
)

// Severity levels for a LossLocation, ordered low to critical.
type Severity string

const (
	SeverityLow Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh Severity = "high"
	SeverityCritical Severity = "critical"
)

// Pattern classifies a network-loss finding's likely cause (supplement:
// loss-pattern classification vocabulary).
type Pattern string

const (
	PatternCongestion Pattern = "network_congestion"
	PatternPathIssue Pattern = "network_path"
)

// Location is one diagnosed loss site.
type Location struct {
	Location string // "interface" | "network_congestion" | "network_path" | "socket_buffer"
	Interface string
	Evidence []string
	Severity Severity
	SuggestedAction string // supplement: human-readable remediation text
}

// RetransmitStats accumulates per-interface retransmit counts, split by
// fast (delay < 200ms, congestion-style) vs timeout (RTO-style),
// matching the original's RetransmitStats/record_retransmit.
type RetransmitStats struct {
	TotalRetransmits uint64
	FastRetransmits uint64
	TimeoutRetransmits uint64
}

// RecordRetransmit classifies one retransmit observation by its delay
// since the original transmission ("< 200 ms → fast,
// else timeout").
func (s *RetransmitStats) RecordRetransmit(delaySeconds float64) {
	s.TotalRetransmits++
	if delaySeconds < 0.2 {
		s.FastRetransmits++
	} else {
		s.TimeoutRetransmits++
	}
}

// classify derives the Pattern of the accumulated stats (rule 2: fast > timeout ->
// congestion, else a path issue).
func (s RetransmitStats) classify() Pattern {
	if s.FastRetransmits > s.TimeoutRetransmits {
		return PatternCongestion
	}
	return PatternPathIssue
}

// Localizer runs the interface-drop and network-loss rules (rules 1 and
// 2); the socket-buffer rule is the standalone CheckSocketBufferOverflow.
type Localizer struct{}

// New creates a Localizer.
func New() *Localizer { return &Localizer{} }

// Analyze evaluates every rule against one interface's current snapshot,
// retransmit stats for the window, and optional OS counter deltas.
// Every rule may independently fire ("Emits zero or more").
func (l *Localizer) Analyze(iface string, snapshot ifmetrics.Snapshot, stats RetransmitStats, counters capture.OSCounters) []Location {
	var out []Location

	if loc, ok := checkInterfaceDrop(iface, counters); ok {
		out = append(out, loc)
	}
	if loc, ok := checkNetworkLoss(iface, snapshot, stats); ok {
		out = append(out, loc)
	}

	return out
}

// checkInterfaceDrop implements rule 1: NIC/driver-level drops.
func checkInterfaceDrop(iface string, c capture.OSCounters) (Location, bool) {
	total := c.RxDropped + c.RxFIFOErrors + c.RxMissed
	if total == 0 && c.RxErrors == 0 {
		return Location{}, false
	}
	all := total + c.RxErrors

	severity := SeverityMedium
	action := "inspect NIC ring buffer sizing and driver error counters"
	switch {
	case all > 100:
		severity = SeverityCritical
		action = "interface is dropping heavily; check for a failing NIC, driver, or cabling issue"
	case all > 10:
		severity = SeverityHigh
		action = "increase ring buffer size and check for CPU starvation on the capture core"
	}

	return Location{
		Location: "interface",
		Interface: iface,
		Evidence: []string{
			fmt.Sprintf("rx_dropped=%d rx_fifo_errors=%d rx_missed=%d rx_errors=%d", c.RxDropped, c.RxFIFOErrors, c.RxMissed, c.RxErrors),
		},
		Severity: severity,
		SuggestedAction: action,
	}, true
}

// checkNetworkLoss implements rule 2: TCP-retransmit-evidenced loss
// somewhere beyond the local interface.
func checkNetworkLoss(iface string, snapshot ifmetrics.Snapshot, stats RetransmitStats) (Location, bool) {
	if stats.TotalRetransmits < 5 {
		return Location{}, false
	}

	pattern := stats.classify()
	location := string(pattern)

	var lossRate float64
	if snapshot.TotalPackets > 0 {
		lossRate = float64(stats.TotalRetransmits) / float64(snapshot.TotalPackets) * 100
	}

	severity := SeverityLow
	switch {
	case lossRate > 5:
		severity = SeverityCritical
	case lossRate > 2:
		severity = SeverityHigh
	case lossRate > 1:
		severity = SeverityMedium
	}

	action := "monitor; loss rate is within a tolerable range"
	if pattern == PatternCongestion {
		action = "likely congestion along the path; investigate queuing/bufferbloat"
	} else if severity != SeverityLow {
		action = "likely a lossy link segment; investigate the path beyond this host"
	}

	return Location{
		Location: location,
		Interface: iface,
		Evidence: []string{
			fmt.Sprintf("%d retransmits (%d fast, %d timeout) over %d packets (%.2f%% loss)",
				stats.TotalRetransmits, stats.FastRetransmits, stats.TimeoutRetransmits, snapshot.TotalPackets, lossRate),
		},
		Severity: severity,
		SuggestedAction: action,
	}, true
}

// CheckSocketBufferOverflow implements rule 3, an OS-specific optional
// signal (Linux UDP receive-buffer error counter, from /proc/net/snmp's
// Udp: RcvbufErrors column). Callers on platforms without that counter
// simply never call this, satisfying "optional" per .
func CheckSocketBufferOverflow(iface string, rcvbufErrors uint64) (Location, bool) {
	if rcvbufErrors == 0 {
		return Location{}, false
	}
	return Location{
		Location: "socket_buffer",
		Interface: iface,
		Evidence: []string{fmt.Sprintf("UDP RcvbufErrors=%d", rcvbufErrors)},
		Severity: SeverityMedium,
		SuggestedAction: "increase the application's UDP receive buffer (SO_RCVBUF) or its read rate",
	}, true
}
