package bottleneck

import (
	"testing"

	"github.com/googlesky/netsniff/internal/ifmetrics"
	"github.com/stretchr/testify/require"
)

func TestDetectNoIssuesIsHealthy(t *testing.T) {
	r := Detect(ifmetrics.Snapshot{Interface: "eth0"})
	require.Empty(t, r.Bottlenecks)
	require.Equal(t, 100, r.HealthScore)
	require.Equal(t, "healthy", r.Status)
}

func TestDetectCriticalPacketLoss(t *testing.T) {
	r := Detect(ifmetrics.Snapshot{Interface: "eth0", PacketLossPercent: 6, TotalPackets: 1000})
	require.Len(t, r.Bottlenecks, 1)
	require.Equal(t, TypePacketLoss, r.Bottlenecks[0].Type)
	require.Equal(t, 0.95, r.Bottlenecks[0].Severity)
	require.Equal(t, 5, r.HealthScore)
	require.Equal(t, "critical", r.Status)
	require.Equal(t, string(TypePacketLoss), r.TopIssue)
}

func TestDetectMultipleBottlenecksRankedBySeverity(t *testing.T) {
	r := Detect(ifmetrics.Snapshot{
		Interface:         "eth0",
		AvgLatencyMS:      150, // 0.6
		PacketLossPercent: 6,   // 0.95
		TotalPackets:      1000,
	})
	require.Len(t, r.Bottlenecks, 2)
	require.Equal(t, TypePacketLoss, r.Bottlenecks[0].Type)
	require.Equal(t, TypeLatency, r.Bottlenecks[1].Type)
	require.Equal(t, "critical", r.Status) // max severity 0.95
}

func TestDetectBandwidthRequiresLinkSpeed(t *testing.T) {
	r := Detect(ifmetrics.Snapshot{Interface: "eth0", UtilizationPercent: 99, HasLinkSpeed: false})
	require.Empty(t, r.Bottlenecks)
}

func TestDetectBufferDropsSeverityBuckets(t *testing.T) {
	low, ok := checkBufferDrops(ifmetrics.Snapshot{RxDropped: 1, TotalPackets: 100000})
	require.True(t, ok)
	require.Equal(t, 0.4, low.Severity)

	mid, ok := checkBufferDrops(ifmetrics.Snapshot{RxDropped: 5, TotalPackets: 2000})
	require.True(t, ok)
	require.Equal(t, 0.6, mid.Severity)

	high, ok := checkBufferDrops(ifmetrics.Snapshot{RxDropped: 50, TotalPackets: 2000})
	require.True(t, ok)
	require.Equal(t, 0.85, high.Severity)
}

func TestStatusBuckets(t *testing.T) {
	require.Equal(t, "critical", status(0.8))
	require.Equal(t, "degraded", status(0.6))
	require.Equal(t, "warning", status(0.4))
	require.Equal(t, "minor_issues", status(0.1))
	require.Equal(t, "healthy", status(0))
}
