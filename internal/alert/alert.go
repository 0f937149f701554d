// Package alert implements AlertEngine : rule evaluation
// with per-metric hysteresis and per-key cooldown, emitting and
// resolving alerts against a stream of ifmetrics.Snapshot values.
// Grounded on original_source's alerts/alert_manager.py
// (AlertManager/_handle_violation/_handle_no_violation) and
// alerts/thresholds.py's default rule set, with the 8-char id generated
// by rs/xid instead of a truncated uuid4.
package alert

import (
	"fmt"

	"github.com/rs/xid"

	"github.com/googlesky/netsniff/internal/ifmetrics"
	"github.com/googlesky/netsniff/internal/obs"
)

// Severity mirrors the original's AlertSeverity enum (Info unused by any
// default rule today but kept for rules callers register themselves).
type Severity string

const (
	SeverityInfo Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Metric names a rule can bind to. Matches original_source's
// AlertManager._get_metric_value mapping.
type Metric string

const (
	MetricPacketLoss Metric = "packet_loss"
	MetricLatency Metric = "latency"
	MetricJitter Metric = "jitter"
	MetricUtilization Metric = "utilization"
	MetricRetransmitRate Metric = "retransmit_rate"
)

// Rule is a configurable threshold rule .
type Rule struct {
	Name string
	Metric Metric
	ThresholdWarning float64
	ThresholdCritical float64
	CooldownSeconds float64
	HysteresisCount int
	Enabled bool
}

// DefaultRules returns the five built-in rules ( rule set),
// with the same literal thresholds as original_source's
// AlertManager._load_default_rules.
func DefaultRules() []Rule {
	return RulesForProfile(ProfileGeneral)
}

// Profile selects a traffic-type-specific warning/critical band per
// metric, grounded on original_source's alerts/thresholds.py
// AlertThresholds (voip/video/gaming/general profiles). ProfileGeneral
// reproduces exactly the default-rule thresholds spec.md's §4.L and
// S4/S5 scenarios specify.
type Profile string

const (
	ProfileGeneral Profile = "general"
	ProfileVoIP Profile = "voip"
	ProfileVideo Profile = "video"
	ProfileGaming Profile = "gaming"
)

// band is one profile's warning/critical pair for a single metric.
type band struct {
	warning, critical float64
}

// packetLossBands, latencyBands, and jitterBands mirror thresholds.py's
// PACKET_LOSS/LATENCY/JITTER dicts; bandwidth has only a "general" entry
// in the original (get_bandwidth_thresholds always returns BANDWIDTH
// ["general"]) so every profile shares one bandwidth band here too.
var packetLossBands = map[Profile]band{
	ProfileVoIP: {0.5, 1.0},
	ProfileVideo: {1.0, 2.5},
	ProfileGeneral: {1.0, 5.0},
}

var latencyBands = map[Profile]band{
	ProfileVoIP: {100, 150},
	ProfileVideo: {100, 150},
	ProfileGaming: {50, 100},
	ProfileGeneral: {150, 400},
}

var jitterBands = map[Profile]band{
	ProfileVoIP: {20, 30},
	ProfileVideo: {30, 50},
	ProfileGeneral: {30, 50},
}

var bandwidthBand = band{80, 95}

// retransmitRateBand has no profile-specific entry in the original (TCP
// retransmit spike is not one of thresholds.py's profiled metrics), so
// every profile uses the same default-rule band here.
var retransmitRateBand = band{2.0, 5.0}

func packetLossFor(p Profile) band {
	if b, ok := packetLossBands[p]; ok {
		return b
	}
	return packetLossBands[ProfileGeneral]
}

func latencyFor(p Profile) band {
	if b, ok := latencyBands[p]; ok {
		return b
	}
	return latencyBands[ProfileGeneral]
}

func jitterFor(p Profile) band {
	if b, ok := jitterBands[p]; ok {
		return b
	}
	return jitterBands[ProfileGeneral]
}

// RulesForProfile builds the five built-in rules with warning/critical
// pairs selected by profile, grounded on AlertThresholds.get_*_thresholds.
// Cooldown/hysteresis defaults are unaffected by profile, matching the
// original (AlertManager rules carry their own cooldown independent of
// AlertThresholds).
func RulesForProfile(p Profile) []Rule {
	pl, lat, jit := packetLossFor(p), latencyFor(p), jitterFor(p)
	return []Rule{
		{Name: "High Packet Loss", Metric: MetricPacketLoss, ThresholdWarning: pl.warning, ThresholdCritical: pl.critical, CooldownSeconds: 60, HysteresisCount: 3, Enabled: true},
		{Name: "High Latency", Metric: MetricLatency, ThresholdWarning: lat.warning, ThresholdCritical: lat.critical, CooldownSeconds: 60, HysteresisCount: 3, Enabled: true},
		{Name: "High Jitter", Metric: MetricJitter, ThresholdWarning: jit.warning, ThresholdCritical: jit.critical, CooldownSeconds: 60, HysteresisCount: 3, Enabled: true},
		{Name: "Bandwidth Saturation", Metric: MetricUtilization, ThresholdWarning: bandwidthBand.warning, ThresholdCritical: bandwidthBand.critical, CooldownSeconds: 120, HysteresisCount: 3, Enabled: true},
		{Name: "TCP Retransmissions", Metric: MetricRetransmitRate, ThresholdWarning: retransmitRateBand.warning, ThresholdCritical: retransmitRateBand.critical, CooldownSeconds: 60, HysteresisCount: 3, Enabled: true},
	}
}

// QualityRating buckets a metric value into a 5-level human label,
// grounded on AlertThresholds.get_quality_rating. metric must be one of
// "packet_loss", "latency", or "jitter"; anything else returns "unknown".
func QualityRating(profile Profile, metric string, value float64) string {
	switch metric {
	case "packet_loss":
		b := packetLossFor(profile)
		switch {
		case value <= 0:
			return "excellent"
		case value <= b.warning/2:
			return "good"
		case value <= b.warning:
			return "acceptable"
		case value <= b.critical:
			return "poor"
		default:
			return "critical"
		}

	case "latency":
		b := latencyFor(profile)
		switch {
		case value <= 50:
			return "excellent"
		case value <= b.warning:
			return "good"
		case value <= b.warning*1.5:
			return "acceptable"
		case value <= b.critical:
			return "poor"
		default:
			return "critical"
		}

	case "jitter":
		b := jitterFor(profile)
		switch {
		case value <= 10:
			return "excellent"
		case value <= b.warning:
			return "good"
		case value <= b.warning*1.5:
			return "acceptable"
		case value <= b.critical:
			return "poor"
		default:
			return "critical"
		}

	default:
		return "unknown"
	}
}

// QualityRatingForSnapshot applies QualityRating to a metric pulled
// straight off an ifmetrics.Snapshot, the shape the dashboard actually
// has in hand (snapshot, not a bare float) when it wants a quality
// label. metric is one of "packet_loss", "latency", "jitter".
func QualityRatingForSnapshot(profile Profile, metric string, s ifmetrics.Snapshot) string {
	var value float64
	switch metric {
	case "packet_loss":
		value = s.PacketLossPercent
	case "latency":
		value = s.AvgLatencyMS
	case "jitter":
		value = s.AvgJitterMS
	default:
		return "unknown"
	}
	return QualityRating(profile, metric, value)
}

// Alert is one emitted or active alert record ( output).
type Alert struct {
	ID string
	RaisedAt float64
	Interface string
	RuleName string
	Metric Metric
	Severity Severity
	Message string
	MetricValue float64
	ThresholdValue float64
	Resolved bool
	ResolvedAt float64
}

// Callback is a subscriber notified on every newly-raised alert.
// Callback errors are isolated : a
// Callback that panics is recovered and counted, never propagated.
type Callback func(Alert)

const historyCapacity = 1000

// Engine evaluates rules against snapshots. Not internally
// synchronized: callers must serialize Evaluate calls on a given Engine
// ( "single-threaded per tick").
type Engine struct {
	rules []Rule

	active map[string]*Alert
	history []Alert

	violationCount map[string]int
	lastAlertTime map[string]float64

	callbacks []Callback
}

// New creates an Engine with the given rules, or DefaultRules if none
// are provided.
func New(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{
		rules: rules,
		active: make(map[string]*Alert),
		violationCount: make(map[string]int),
		lastAlertTime: make(map[string]float64),
	}
}

// Subscribe registers a callback invoked on every newly-raised alert.
func (e *Engine) Subscribe(cb Callback) { e.callbacks = append(e.callbacks, cb) }

// Evaluate runs every enabled rule against one interface's snapshot at
// time now (monotonic seconds), returning any newly-raised alerts (spec
// steps 1-6).
func (e *Engine) Evaluate(iface string, snapshot ifmetrics.Snapshot, now float64) []Alert {
	var raised []Alert
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		value, ok := metricValue(rule.Metric, snapshot)
		if !ok {
			continue
		}

		key := fmt.Sprintf("%s:%s", iface, rule.Metric)

		var severity Severity
		var threshold float64
		switch {
		case value >= rule.ThresholdCritical:
			severity, threshold = SeverityCritical, rule.ThresholdCritical
		case value >= rule.ThresholdWarning:
			severity, threshold = SeverityWarning, rule.ThresholdWarning
		default:
			e.resolve(key, now)
			continue
		}

		if a := e.handleViolation(rule, key, iface, value, threshold, severity, now); a != nil {
			raised = append(raised, *a)
		}
	}
	return raised
}

func metricValue(metric Metric, s ifmetrics.Snapshot) (float64, bool) {
	switch metric {
	case MetricPacketLoss:
		return s.PacketLossPercent, true
	case MetricLatency:
		return s.AvgLatencyMS, true
	case MetricJitter:
		return s.AvgJitterMS, true
	case MetricUtilization:
		if !s.HasLinkSpeed {
			return 0, false
		}
		return s.UtilizationPercent, true
	case MetricRetransmitRate:
		if s.TotalPackets == 0 {
			return 0, true
		}
		return float64(s.Retransmissions) / float64(s.TotalPackets) * 100, true
	default:
		return 0, false
	}
}

// resolve implements's else branch: zero the hysteresis
// counter and resolve any active alert for key.
func (e *Engine) resolve(key string, now float64) {
	e.violationCount[key] = 0
	if a, ok := e.active[key]; ok {
		a.Resolved = true
		a.ResolvedAt = now
		delete(e.active, key)
	}
}

func (e *Engine) handleViolation(rule Rule, key, iface string, value, threshold float64, severity Severity, now float64) *Alert {
	e.violationCount[key]++
	if e.violationCount[key] < rule.HysteresisCount {
		return nil
	}

	if last, ok := e.lastAlertTime[key]; ok && now-last < rule.CooldownSeconds {
		return nil
	}

	if existing, ok := e.active[key]; ok {
		if existing.Severity != severity {
			existing.Severity = severity
			existing.MetricValue = value
		}
		return nil
	}

	a := Alert{
		ID: xid.New().String()[:8],
		RaisedAt: now,
		Interface: iface,
		RuleName: rule.Name,
		Metric: rule.Metric,
		Severity: severity,
		Message: fmt.Sprintf("%s on %s: %.2f (threshold: %.2f)", rule.Name, iface, value, threshold),
		MetricValue: value,
		ThresholdValue: threshold,
	}

	e.active[key] = &a
	e.appendHistory(a)
	e.lastAlertTime[key] = now

	obs.AlertsEmitted.WithLabelValues(rule.Name).Inc()
	e.notify(a)

	return &a
}

func (e *Engine) appendHistory(a Alert) {
	e.history = append(e.history, a)
	if len(e.history) > historyCapacity {
		e.history = e.history[len(e.history)-historyCapacity:]
	}
}

// notify fans an alert out to every subscriber, isolating panics so one
// misbehaving callback never stalls evaluation (
//).
func (e *Engine) notify(a Alert) {
	for _, cb := range e.callbacks {
		e.safeCall(cb, a)
	}
}

func (e *Engine) safeCall(cb Callback, a Alert) {
	defer func() {
		if r := recover(); r != nil {
			obs.CallbackErrors.WithLabelValues("alert").Inc()
		}
	}()
	cb(a)
}

// ActiveAlerts returns all currently-unresolved alerts.
func (e *Engine) ActiveAlerts() []Alert {
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	return out
}

// AlertsForInterface returns active alerts scoped to one interface.
func (e *Engine) AlertsForInterface(iface string) []Alert {
	out := make([]Alert, 0)
	for _, a := range e.active {
		if a.Interface == iface {
			out = append(out, *a)
		}
	}
	return out
}

// History returns up to limit of the most recent alerts (active and
// resolved), optionally filtered by interface.
func (e *Engine) History(limit int, iface string) []Alert {
	var filtered []Alert
	if iface == "" {
		filtered = e.history
	} else {
		for _, a := range e.history {
			if a.Interface == iface {
				filtered = append(filtered, a)
			}
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]Alert, len(filtered))
	copy(out, filtered)
	return out
}

// Summary is the alert-status rollup (supplement: original's
// get_alert_summary, useful to the dashboard/export consumer).
type Summary struct {
	TotalActive int
	Critical int
	Warning int
	ByInterface map[string][]string
	WorstSeverity Severity
}

// GetSummary aggregates active alerts (grounded on
// AlertManager.get_alert_summary).
func (e *Engine) GetSummary() Summary {
	s := Summary{ByInterface: make(map[string][]string), WorstSeverity: "none"}
	for _, a := range e.active {
		s.TotalActive++
		switch a.Severity {
		case SeverityCritical:
			s.Critical++
		case SeverityWarning:
			s.Warning++
		}
		s.ByInterface[a.Interface] = append(s.ByInterface[a.Interface], string(a.Metric))
	}
	switch {
	case s.Critical > 0:
		s.WorstSeverity = SeverityCritical
	case s.Warning > 0:
		s.WorstSeverity = SeverityWarning
	}
	return s
}

// Acknowledge resolves an active alert by id, returning whether one was
// found (grounded on AlertManager.acknowledge_alert).
func (e *Engine) Acknowledge(id string, now float64) bool {
	for key, a := range e.active {
		if a.ID == id {
			a.Resolved = true
			a.ResolvedAt = now
			delete(e.active, key)
			return true
		}
	}
	return false
}

// ClearAll resolves every active alert, returning the count cleared.
func (e *Engine) ClearAll(now float64) int {
	n := len(e.active)
	for _, a := range e.active {
		a.Resolved = true
		a.ResolvedAt = now
	}
	e.active = make(map[string]*Alert)
	return n
}
