package loss

import (
	"testing"

	"github.com/googlesky/netsniff/internal/capture"
	"github.com/googlesky/netsniff/internal/ifmetrics"
	"github.com/stretchr/testify/require"
)

func TestCheckInterfaceDropSeverityBuckets(t *testing.T) {
	_, ok := checkInterfaceDrop("eth0", capture.OSCounters{})
	require.False(t, ok)

	med, ok := checkInterfaceDrop("eth0", capture.OSCounters{RxDropped: 5})
	require.True(t, ok)
	require.Equal(t, SeverityMedium, med.Severity)

	high, ok := checkInterfaceDrop("eth0", capture.OSCounters{RxDropped: 20})
	require.True(t, ok)
	require.Equal(t, SeverityHigh, high.Severity)

	crit, ok := checkInterfaceDrop("eth0", capture.OSCounters{RxDropped: 200})
	require.True(t, ok)
	require.Equal(t, SeverityCritical, crit.Severity)
}

func TestCheckNetworkLossRequiresFiveRetransmits(t *testing.T) {
	stats := RetransmitStats{TotalRetransmits: 4}
	_, ok := checkNetworkLoss("eth0", ifmetrics.Snapshot{TotalPackets: 100}, stats)
	require.False(t, ok)

	stats.TotalRetransmits = 5
	loc, ok := checkNetworkLoss("eth0", ifmetrics.Snapshot{TotalPackets: 100}, stats)
	require.True(t, ok)
	require.Equal(t, SeverityHigh, loc.Severity) // 5% loss rate: above 2%, not above 5%
}

func TestRetransmitPatternClassification(t *testing.T) {
	var fast RetransmitStats
	fast.RecordRetransmit(0.05)
	fast.RecordRetransmit(0.1)
	fast.RecordRetransmit(0.05)
	fast.RecordRetransmit(0.05)
	fast.RecordRetransmit(0.9) // one timeout
	require.Equal(t, PatternCongestion, fast.classify())

	var slow RetransmitStats
	slow.RecordRetransmit(0.9)
	slow.RecordRetransmit(0.9)
	slow.RecordRetransmit(0.05)
	require.Equal(t, PatternPathIssue, slow.classify())
}

func TestAnalyzeReturnsMultipleIndependentFindings(t *testing.T) {
	l := New()
	counters := capture.OSCounters{RxDropped: 200}
	stats := RetransmitStats{TotalRetransmits: 10, FastRetransmits: 8, TimeoutRetransmits: 2}
	snapshot := ifmetrics.Snapshot{TotalPackets: 100}

	locations := l.Analyze("eth0", snapshot, stats, counters)
	require.Len(t, locations, 2)
}

func TestCheckSocketBufferOverflow(t *testing.T) {
	_, ok := CheckSocketBufferOverflow("eth0", 0)
	require.False(t, ok)

	loc, ok := CheckSocketBufferOverflow("eth0", 42)
	require.True(t, ok)
	require.Equal(t, "socket_buffer", loc.Location)
	require.Equal(t, SeverityMedium, loc.Severity)
}
