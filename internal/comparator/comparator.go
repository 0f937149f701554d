// Package comparator implements InterfaceComparator : a
// weighted score comparing two interfaces' rolling metrics, picking a
// winner per category plus an overall winner and a confidence figure.
// Grounded on original_source's analysis/comparator.py.
package comparator

import (
	"fmt"
	"strings"

	"github.com/googlesky/netsniff/internal/ifmetrics"
)

// Weights mirrors the original InterfaceComparator's category weights.
// Only latency/jitter/packet_loss participate in the score; bandwidth
// only decides its own category winner (original_source/comparator.py
// never folds a bandwidth penalty into _calculate_score).
const (
	weightLatency = 0.30
	weightJitter = 0.20
	weightLoss = 0.35
	weightBW = 0.15
)

// Winner is one of the two compared interface names, or Tie.
const Tie = "tie"

// Result is the full comparison output ( plus the
// human-readable-summary supplement).
type Result struct {
	InterfaceA, InterfaceB string
	MetricsA, MetricsB ifmetrics.Snapshot

	LatencyWinner string
	JitterWinner string
	LossWinner string
	BandwidthWinner string
	OverallWinner string

	ScoreA, ScoreB float64
	Confidence float64
	Recommendation string
}

// Comparator compares two interfaces' metrics snapshots.
type Comparator struct{}

// New creates a Comparator.
func New() *Comparator { return &Comparator{} }

// Compare scores both interfaces and determines winners .
func (c *Comparator) Compare(ifaceA, ifaceB string, a, b ifmetrics.Snapshot) Result {
	r := Result{
		InterfaceA: ifaceA, InterfaceB: ifaceB,
		MetricsA: a, MetricsB: b,
	}

	r.LatencyWinner = pickLower(ifaceA, ifaceB, a.AvgLatencyMS, b.AvgLatencyMS)
	r.JitterWinner = pickLower(ifaceA, ifaceB, a.AvgJitterMS, b.AvgJitterMS)
	r.LossWinner = pickLower(ifaceA, ifaceB, a.PacketLossPercent, b.PacketLossPercent)
	r.BandwidthWinner = pickHigher(ifaceA, ifaceB, a.BandwidthMbps, b.BandwidthMbps)

	r.ScoreA = score(a)
	r.ScoreB = score(b)

	switch {
	case r.ScoreA > r.ScoreB:
		r.OverallWinner = ifaceA
	case r.ScoreB > r.ScoreA:
		r.OverallWinner = ifaceB
	default:
		r.OverallWinner = Tie
	}

	r.Confidence = confidence(a, b, r.ScoreA, r.ScoreB)
	r.Recommendation = recommend(ifaceA, ifaceB, a, b, r)
	return r
}

func pickLower(nameA, nameB string, a, b float64) string {
	switch {
	case a < b:
		return nameA
	case b < a:
		return nameB
	default:
		return Tie
	}
}

func pickHigher(nameA, nameB string, a, b float64) string {
	switch {
	case a > b:
		return nameA
	case b > a:
		return nameB
	default:
		return Tie
	}
}

// score computes the 0-100 overall score. The weight*multiplier pairs
// below (e.g. weightLatency*3.33) look redundant but are exactly what
// the original computes: each weight cancels its own penalty cap back
// to roughly the unweighted 30/20/35-point scale.
func score(m ifmetrics.Snapshot) float64 {
	s := 100.0

	if m.AvgLatencyMS > 0 {
		penalty := min(30, (m.AvgLatencyMS/150)*30)
		s -= penalty * weightLatency * 3.33
	}
	if m.AvgJitterMS > 0 {
		penalty := min(20, (m.AvgJitterMS/30)*20)
		s -= penalty * weightJitter * 5
	}
	if m.PacketLossPercent > 0 {
		penalty := min(35, m.PacketLossPercent*35)
		s -= penalty * weightLoss * 2.86
	}

	if s < 0 {
		return 0
	}
	return s
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// confidence scales down when sample size is small or scores are close,
// matching _calculate_confidence's two independent discount factors.
func confidence(a, b ifmetrics.Snapshot, scoreA, scoreB float64) float64 {
	conf := 1.0

	minPackets := a.TotalPackets
	if b.TotalPackets < minPackets {
		minPackets = b.TotalPackets
	}
	switch {
	case minPackets < 100:
		conf *= 0.5
	case minPackets < 1000:
		conf *= 0.8
	}

	diff := scoreA - scoreB
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff < 5:
		conf *= 0.7
	case diff < 10:
		conf *= 0.85
	}

	return roundTo(conf, 2)
}

func roundTo(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int(v*mult+0.5)) / mult
}

// recommend generates an actionable recommendation, naming the losing
// interface's specific issues when any exceed the same thresholds the
// original's _generate_recommendation checks.
func recommend(ifaceA, ifaceB string, a, b ifmetrics.Snapshot, r Result) string {
	if r.OverallWinner == Tie {
		return fmt.Sprintf(
			"Both %s and %s show similar performance. Consider using load balancing for redundancy.",
			ifaceA, ifaceB)
	}

	loser, loserMetrics := ifaceB, b
	if r.OverallWinner == ifaceB {
		loser, loserMetrics = ifaceA, a
	}

	var issues []string
	if loserMetrics.PacketLossPercent > 1 {
		issues = append(issues, fmt.Sprintf("high packet loss (%.2f%%)", loserMetrics.PacketLossPercent))
	}
	if loserMetrics.AvgLatencyMS > 100 {
		issues = append(issues, fmt.Sprintf("high latency (%.1fms)", loserMetrics.AvgLatencyMS))
	}
	if loserMetrics.AvgJitterMS > 30 {
		issues = append(issues, fmt.Sprintf("high jitter (%.1fms)", loserMetrics.AvgJitterMS))
	}

	if len(issues) > 0 {
		return fmt.Sprintf("Use %s for critical traffic. %s shows %s. Investigate %s for network issues.",
			r.OverallWinner, loser, strings.Join(issues, ", "), loser)
	}

	wins := 0
	for _, w := range []string{r.LatencyWinner, r.JitterWinner, r.LossWinner, r.BandwidthWinner} {
		if w == r.OverallWinner {
			wins++
		}
	}
	return fmt.Sprintf("%s shows better overall performance (won %d/4 categories). Route critical traffic through %s.",
		r.OverallWinner, wins, r.OverallWinner)
}

// FormatSummary renders a human-readable comparison report (the
// human-readable-summary supplement, grounded on
// get_comparison_summary).
func FormatSummary(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Network Interface Comparison\n%s\n", strings.Repeat("=", 50))
	fmt.Fprintf(&b, "%-20s vs %-20s\n\n", r.InterfaceA, r.InterfaceB)
	fmt.Fprintf(&b, "Latency: %8.1f ms %8.1f ms -> %s\n", r.MetricsA.AvgLatencyMS, r.MetricsB.AvgLatencyMS, r.LatencyWinner)
	fmt.Fprintf(&b, "Jitter: %8.1f ms %8.1f ms -> %s\n", r.MetricsA.AvgJitterMS, r.MetricsB.AvgJitterMS, r.JitterWinner)
	fmt.Fprintf(&b, "Packet Loss: %8.2f %% %8.2f %% -> %s\n", r.MetricsA.PacketLossPercent, r.MetricsB.PacketLossPercent, r.LossWinner)
	fmt.Fprintf(&b, "Bandwidth: %8.1f Mbps %8.1f Mbps -> %s\n\n", r.MetricsA.BandwidthMbps, r.MetricsB.BandwidthMbps, r.BandwidthWinner)
	fmt.Fprintf(&b, "Overall Score: %.0f vs %.0f\n", r.ScoreA, r.ScoreB)
	fmt.Fprintf(&b, "Winner: %s (confidence: %.0f%%)\n\n", r.OverallWinner, r.Confidence*100)
	fmt.Fprintf(&b, "Recommendation:\n %s\n", r.Recommendation)
	return b.String()
}
