package alert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/googlesky/netsniff/internal/ifmetrics"
)

func latencySnapshot(ms float64) ifmetrics.Snapshot {
	return ifmetrics.Snapshot{Interface: "eth0", AvgLatencyMS: ms}
}

// S4 — Alert hysteresis and cooldown: five consecutive ticks at
// avg_latency=200 (warning=150, critical=400, hysteresis=3,
// cooldown=60); alert fires only on tick 3, then a drop to 50 resolves
// it and zeros the violation count.
func TestHysteresisAndCooldown(t *testing.T) {
	rule := Rule{
		Name: "High Latency", Metric: MetricLatency,
		ThresholdWarning: 150, ThresholdCritical: 400,
		CooldownSeconds: 60, HysteresisCount: 3, Enabled: true,
	}
	e := New(rule)

	tick1 := e.Evaluate("eth0", latencySnapshot(200), 0)
	require.Empty(t, tick1)
	tick2 := e.Evaluate("eth0", latencySnapshot(200), 1)
	require.Empty(t, tick2)
	tick3 := e.Evaluate("eth0", latencySnapshot(200), 2)
	require.Len(t, tick3, 1)
	require.Equal(t, SeverityWarning, tick3[0].Severity)

	tick4 := e.Evaluate("eth0", latencySnapshot(200), 3)
	require.Empty(t, tick4, "no new alert while one is already active")
	tick5 := e.Evaluate("eth0", latencySnapshot(200), 4)
	require.Empty(t, tick5)
	require.Len(t, e.ActiveAlerts(), 1)

	e.Evaluate("eth0", latencySnapshot(50), 5)
	require.Empty(t, e.ActiveAlerts())
}

func TestCooldownSuppressesRepeatAlerts(t *testing.T) {
	rule := Rule{Name: "r", Metric: MetricLatency, ThresholdWarning: 10, ThresholdCritical: 100, CooldownSeconds: 100, HysteresisCount: 1, Enabled: true}
	e := New(rule)

	first := e.Evaluate("eth0", latencySnapshot(50), 0)
	require.Len(t, first, 1)

	// Resolve, then immediately re-violate within the cooldown window:
	// should not re-alert.
	e.Evaluate("eth0", latencySnapshot(0), 1)
	second := e.Evaluate("eth0", latencySnapshot(50), 2)
	require.Empty(t, second)
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	rule := Rule{Name: "r", Metric: MetricLatency, ThresholdWarning: 10, ThresholdCritical: 100, CooldownSeconds: 0, HysteresisCount: 1, Enabled: true}
	e := New(rule)
	e.Subscribe(func(Alert) { panic("subscriber exploded") })

	require.NotPanics(t, func() {
		e.Evaluate("eth0", latencySnapshot(50), 0)
	})
}

func TestUtilizationMetricSkippedWithoutLinkSpeed(t *testing.T) {
	rule := Rule{Name: "bw", Metric: MetricUtilization, ThresholdWarning: 80, ThresholdCritical: 95, HysteresisCount: 1, Enabled: true}
	e := New(rule)
	raised := e.Evaluate("eth0", ifmetrics.Snapshot{Interface: "eth0"}, 0)
	require.Empty(t, raised)
}

// DefaultRules must reproduce spec.md's §4.L/S4/S5 thresholds exactly,
// since RulesForProfile(ProfileGeneral) is documented as additive.
func TestDefaultRulesMatchGeneralProfile(t *testing.T) {
	require.Equal(t, RulesForProfile(ProfileGeneral), DefaultRules())

	for _, r := range DefaultRules() {
		switch r.Metric {
		case MetricPacketLoss:
			require.Equal(t, 1.0, r.ThresholdWarning)
			require.Equal(t, 5.0, r.ThresholdCritical)
		case MetricLatency:
			require.Equal(t, 150.0, r.ThresholdWarning)
			require.Equal(t, 400.0, r.ThresholdCritical)
		}
	}
}

func TestRulesForProfileVoIPIsStricterThanGeneral(t *testing.T) {
	voip := RulesForProfile(ProfileVoIP)
	general := RulesForProfile(ProfileGeneral)

	var voipLoss, generalLoss Rule
	for _, r := range voip {
		if r.Metric == MetricPacketLoss {
			voipLoss = r
		}
	}
	for _, r := range general {
		if r.Metric == MetricPacketLoss {
			generalLoss = r
		}
	}
	require.Less(t, voipLoss.ThresholdWarning, generalLoss.ThresholdWarning)
	require.Less(t, voipLoss.ThresholdCritical, generalLoss.ThresholdCritical)
}

func TestQualityRatingBuckets(t *testing.T) {
	require.Equal(t, "excellent", QualityRating(ProfileGeneral, "packet_loss", 0))
	require.Equal(t, "good", QualityRating(ProfileGeneral, "packet_loss", 0.4))
	require.Equal(t, "acceptable", QualityRating(ProfileGeneral, "packet_loss", 1.0))
	require.Equal(t, "poor", QualityRating(ProfileGeneral, "packet_loss", 3.0))
	require.Equal(t, "critical", QualityRating(ProfileGeneral, "packet_loss", 6.0))
	require.Equal(t, "unknown", QualityRating(ProfileGeneral, "bogus", 1.0))
}

func TestQualityRatingForSnapshotReadsRightField(t *testing.T) {
	snap := ifmetrics.Snapshot{Interface: "eth0", AvgLatencyMS: 40}
	require.Equal(t, "excellent", QualityRatingForSnapshot(ProfileGeneral, "latency", snap))
}
