package comparator

import (
	"testing"

	"github.com/googlesky/netsniff/internal/ifmetrics"
	"github.com/stretchr/testify/require"
)

func TestCompareCategoryWinners(t *testing.T) {
	a := ifmetrics.Snapshot{AvgLatencyMS: 20, AvgJitterMS: 5, PacketLossPercent: 0, BandwidthMbps: 100, TotalPackets: 5000}
	b := ifmetrics.Snapshot{AvgLatencyMS: 80, AvgJitterMS: 40, PacketLossPercent: 2, BandwidthMbps: 40, TotalPackets: 5000}

	r := New().Compare("eth0", "wlan0", a, b)
	require.Equal(t, "eth0", r.LatencyWinner)
	require.Equal(t, "eth0", r.JitterWinner)
	require.Equal(t, "eth0", r.LossWinner)
	require.Equal(t, "eth0", r.BandwidthWinner)
	require.Equal(t, "eth0", r.OverallWinner)
	require.Greater(t, r.ScoreA, r.ScoreB)
}

func TestCompareTieWhenIdentical(t *testing.T) {
	m := ifmetrics.Snapshot{AvgLatencyMS: 20, AvgJitterMS: 5, PacketLossPercent: 0, BandwidthMbps: 100, TotalPackets: 5000}
	r := New().Compare("eth0", "wlan0", m, m)
	require.Equal(t, Tie, r.LatencyWinner)
	require.Equal(t, Tie, r.OverallWinner)
}

func TestConfidenceDropsForSmallSampleAndCloseScores(t *testing.T) {
	a := ifmetrics.Snapshot{TotalPackets: 50}
	b := ifmetrics.Snapshot{TotalPackets: 50}
	r := New().Compare("eth0", "wlan0", a, b)
	// Both scores are 0 penalty -> 100, diff=0 -> <5 -> *0.7; packets<100 -> *0.5
	require.InDelta(t, 0.35, r.Confidence, 1e-9)
}

func TestRecommendationNamesLoserIssues(t *testing.T) {
	a := ifmetrics.Snapshot{AvgLatencyMS: 10, PacketLossPercent: 0, TotalPackets: 5000}
	b := ifmetrics.Snapshot{AvgLatencyMS: 10, PacketLossPercent: 5, TotalPackets: 5000}
	r := New().Compare("eth0", "wlan0", a, b)
	require.Contains(t, r.Recommendation, "high packet loss")
}
