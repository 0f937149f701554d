// Package bottleneck implements BottleneckDetector : a pure,
// rule-based multi-signal classifier over one InterfaceMetrics
// snapshot, producing ranked Bottleneck records plus a scalar health
// score and status label. Grounded on original_source's
// analysis/bottleneck_detector.py, with the ranked-cause/health-score
// vocabulary shape borrowed from ftahirops-xtop's RCAEntry/Evidence.
package bottleneck

import (
	"fmt"
	"sort"

	"github.com/googlesky/netsniff/internal/ifmetrics"
)

func evidencef(format string, args ...any) string { return fmt.Sprintf(format, args...) }

// Type names the class of bottleneck detected.
type Type string

const (
	TypeBandwidth Type = "bandwidth"
	TypeLatency Type = "latency"
	TypePacketLoss Type = "packet_loss"
	TypeJitter Type = "jitter"
	TypeBufferDrops Type = "buffer"
)

// Bottleneck is one detected issue, severity normalized to [0,1].
type Bottleneck struct {
	Type Type
	Location string
	Severity float64
	Description string
	Evidence []string
	Recommendations []string
}

// Report is the full detector output for one interface.
type Report struct {
	Interface string
	Bottlenecks []Bottleneck
	HealthScore int
	Status string
	TopIssue string // supplement: Type of the most severe bottleneck, "" if none
	TopRecommendation string // supplement: first recommendation of the top issue
}

// Detect runs every independent rule against one snapshot and returns
// them ranked by descending severity ("all independent, all
// applicable bottlenecks returned").
func Detect(s ifmetrics.Snapshot) Report {
	var found []Bottleneck

	if b, ok := checkBandwidth(s); ok {
		found = append(found, b)
	}
	if b, ok := checkLatency(s); ok {
		found = append(found, b)
	}
	if b, ok := checkPacketLoss(s); ok {
		found = append(found, b)
	}
	if b, ok := checkJitter(s); ok {
		found = append(found, b)
	}
	if b, ok := checkBufferDrops(s); ok {
		found = append(found, b)
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Severity > found[j].Severity })

	maxSeverity := 0.0
	for _, b := range found {
		if b.Severity > maxSeverity {
			maxSeverity = b.Severity
		}
	}

	report := Report{
		Interface: s.Interface,
		Bottlenecks: found,
		HealthScore: int(roundFloat((1 - maxSeverity) * 100)),
		Status: status(maxSeverity),
	}
	if len(found) > 0 {
		report.TopIssue = string(found[0].Type)
		if len(found[0].Recommendations) > 0 {
			report.TopRecommendation = found[0].Recommendations[0]
		}
	}
	return report
}

func status(maxSeverity float64) string {
	switch {
	case maxSeverity >= 0.8:
		return "critical"
	case maxSeverity >= 0.6:
		return "degraded"
	case maxSeverity >= 0.4:
		return "warning"
	case maxSeverity > 0:
		return "minor_issues"
	default:
		return "healthy"
	}
}

func checkBandwidth(s ifmetrics.Snapshot) (Bottleneck, bool) {
	if !s.HasLinkSpeed {
		return Bottleneck{}, false
	}
	switch {
	case s.UtilizationPercent >= 95:
		return Bottleneck{
			Type: TypeBandwidth, Location: s.Interface, Severity: 0.95,
			Description: "link is saturated",
			Evidence: []string{evidencef("utilization %.1f%%", s.UtilizationPercent)},
			Recommendations: []string{"increase link capacity or shed non-critical traffic"},
		}, true
	case s.UtilizationPercent >= 80:
		return Bottleneck{
			Type: TypeBandwidth, Location: s.Interface, Severity: 0.7,
			Description: "link utilization is high",
			Evidence: []string{evidencef("utilization %.1f%%", s.UtilizationPercent)},
			Recommendations: []string{"monitor for saturation; consider traffic shaping"},
		}, true
	}
	return Bottleneck{}, false
}

func checkLatency(s ifmetrics.Snapshot) (Bottleneck, bool) {
	switch {
	case s.AvgLatencyMS >= 500:
		return Bottleneck{
			Type: TypeLatency, Location: s.Interface, Severity: 0.9,
			Description: "round-trip latency is severely elevated",
			Evidence: []string{evidencef("avg latency %.1fms", s.AvgLatencyMS)},
			Recommendations: []string{"check for congestion or a distant/overloaded peer"},
		}, true
	case s.AvgLatencyMS >= 100:
		return Bottleneck{
			Type: TypeLatency, Location: s.Interface, Severity: 0.6,
			Description: "round-trip latency is elevated",
			Evidence: []string{evidencef("avg latency %.1fms", s.AvgLatencyMS)},
			Recommendations: []string{"investigate queuing along the path"},
		}, true
	}
	return Bottleneck{}, false
}

func checkPacketLoss(s ifmetrics.Snapshot) (Bottleneck, bool) {
	switch {
	case s.PacketLossPercent >= 5:
		return Bottleneck{
			Type: TypePacketLoss, Location: s.Interface, Severity: 0.95,
			Description: "packet loss rate is critical",
			Evidence: []string{evidencef("loss %.2f%%", s.PacketLossPercent)},
			Recommendations: []string{"localize loss via retransmit pattern and interface counters"},
		}, true
	case s.PacketLossPercent >= 1:
		return Bottleneck{
			Type: TypePacketLoss, Location: s.Interface, Severity: 0.7,
			Description: "packet loss rate is elevated",
			Evidence: []string{evidencef("loss %.2f%%", s.PacketLossPercent)},
			Recommendations: []string{"monitor retransmit trend"},
		}, true
	}
	return Bottleneck{}, false
}

func checkJitter(s ifmetrics.Snapshot) (Bottleneck, bool) {
	switch {
	case s.AvgJitterMS >= 100:
		return Bottleneck{
			Type: TypeJitter, Location: s.Interface, Severity: 0.8,
			Description: "jitter is severely elevated",
			Evidence: []string{evidencef("avg jitter %.1fms", s.AvgJitterMS)},
			Recommendations: []string{"unsuitable for real-time traffic without buffering"},
		}, true
	case s.AvgJitterMS >= 30:
		return Bottleneck{
			Type: TypeJitter, Location: s.Interface, Severity: 0.5,
			Description: "jitter is elevated",
			Evidence: []string{evidencef("avg jitter %.1fms", s.AvgJitterMS)},
			Recommendations: []string{"consider jitter buffering for VoIP/video"},
		}, true
	}
	return Bottleneck{}, false
}

func checkBufferDrops(s ifmetrics.Snapshot) (Bottleneck, bool) {
	drops := s.RxDropped + s.TxDropped
	if drops == 0 {
		return Bottleneck{}, false
	}
	var dropRate float64
	if s.TotalPackets > 0 {
		dropRate = float64(drops) / float64(s.TotalPackets) * 100
	}
	severity := 0.4
	switch {
	case dropRate >= 1:
		severity = 0.85
	case dropRate >= 0.1:
		severity = 0.6
	}
	return Bottleneck{
		Type: TypeBufferDrops, Location: s.Interface, Severity: severity,
		Description: "interface buffer is dropping packets",
		Evidence: []string{evidencef("%d drops (%.3f%% of packets)", drops, dropRate)},
		Recommendations: []string{"increase ring buffer size or reduce load on the interface"},
	}, true
}

func roundFloat(v float64) float64 {
	if v < 0 {
		return 0
	}
	return float64(int(v + 0.5))
}
