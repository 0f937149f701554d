package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/googlesky/netsniff/internal/alert"
	"github.com/googlesky/netsniff/internal/bottleneck"
	"github.com/googlesky/netsniff/internal/capture"
	"github.com/googlesky/netsniff/internal/comparator"
	"github.com/googlesky/netsniff/internal/config"
	"github.com/googlesky/netsniff/internal/flowtable"
	"github.com/googlesky/netsniff/internal/ifmetrics"
	"github.com/googlesky/netsniff/internal/loss"
	"github.com/googlesky/netsniff/internal/obs"
	"github.com/googlesky/netsniff/internal/pipeline"
	"github.com/googlesky/netsniff/internal/store"
	"github.com/googlesky/netsniff/internal/ui"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9109", "address to serve Prometheus metrics on")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ifaces := cfg.Capture.Interfaces
	if len(ifaces) == 0 {
		if def := capture.DetectDefaultInterface(); def != "" {
			ifaces = []string{def}
		}
	}
	if len(ifaces) == 0 {
		logger.Fatal("no capture interfaces configured or detected")
	}

	st := store.New()
	tracker := flowtable.New(cfg.Flow.FlowTrackerOptions()...)
	pl := pipeline.New(st, pipeline.WithLogger(logger), pipeline.WithTracker(tracker))

	for _, iface := range ifaces {
		src := capture.NewPcapSource(capture.PcapConfig{
			Interface: iface,
			BPFFilter: cfg.Capture.BPFFilter,
			Promisc:   cfg.Capture.Promiscuous,
			QueueSize: cfg.Capture.BufferSize,
		})
		pl.AddSource(iface, src)
	}

	engine := alert.New(alert.RulesForProfile(alert.Profile(cfg.Alerts.Profile))...)
	engine.Subscribe(func(a alert.Alert) {
		logger.Warn("alert raised",
			zap.String("interface", a.Interface),
			zap.String("rule", a.RuleName),
			zap.String("severity", string(a.Severity)),
			zap.Float64("value", a.MetricValue),
		)
	})

	if err := pl.Start(); err != nil {
		logger.Fatal("failed to start pipeline", zap.Error(err))
	}
	defer pl.Stop(true)

	retransProbe, err := capture.NewSocketRetransmitProbe()
	if err != nil {
		logger.Info("kernel retransmit corroboration unavailable, using capture-derived counts only", zap.Error(err))
	} else {
		defer retransProbe.Close()
	}

	reports := newReportCache()
	stopTick := make(chan struct{})
	go runTickLoop(st, pl, engine, reports, retransProbe, capture.NewNetlinkCounterReader(), logger, stopTick)
	defer close(stopTick)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			logger.Warn("metrics server exited", zap.Error(err))
		}
	}()

	model := ui.New(st, engine, alert.Profile(cfg.Alerts.Profile), reports.get)
	prog := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		logger.Fatal("ui terminated with error", zap.Error(err))
	}
}

// runTickLoop evaluates bottleneck and alert rules against the latest
// per-interface snapshot once a second, the same cadence the pipeline
// itself uses to recompute rates. probe is nil on platforms without
// INET_DIAG support. counters polls OS-level interface drop/error
// counters that feed both ifmetrics.Metrics.UpdateOSCounters and
// loss.Localizer.Analyze, and every distinct pair of interfaces is run
// through comparator.Compare so both collaborators execute against live
// data rather than only in their own package's tests.
func runTickLoop(st *store.Store, pl *pipeline.Pipeline, engine *alert.Engine, cache *reportCache, probe *capture.SocketRetransmitProbe, counters *capture.NetlinkCounterReader, logger *zap.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	localizer := loss.New()
	comp := comparator.New()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			nowSeconds := float64(now.UnixNano()) / 1e9
			snapshots := st.AllSnapshots()

			var reports []bottleneck.Report
			for iface, snap := range snapshots {
				reports = append(reports, bottleneck.Detect(snap))
				engine.Evaluate(iface, snap, nowSeconds)

				osCounters := pollOSCounters(counters, iface, pl, logger)
				for _, loc := range localizer.Analyze(iface, snap, pl.RetransmitStats(iface), osCounters) {
					logLossLocation(logger, loc)
				}
			}
			cache.set(reports)

			for _, pair := range interfacePairs(snapshots) {
				result := comp.Compare(pair[0], pair[1], snapshots[pair[0]], snapshots[pair[1]])
				obs.ComparisonsRun.WithLabelValues(pair[0], pair[1]).Inc()
				logger.Debug("interface comparison",
					zap.String("interface_a", pair[0]), zap.String("interface_b", pair[1]),
					zap.String("winner", result.OverallWinner), zap.Float64("confidence", result.Confidence),
				)
			}

			if probe != nil {
				if total, err := probe.TotalRetransmits(); err == nil {
					obs.KernelRetransmitsTotal.Set(float64(total))
				} else {
					logger.Warn("kernel retransmit probe failed", zap.Error(err))
				}
			}
		}
	}
}

// pollOSCounters reads the current OS-reported drop/error counters for
// iface, feeding them into the interface's ifmetrics.Metrics so the
// dashboard and LossLocalizer see the same numbers. A read failure
// (e.g. the interface isn't found in /proc/net/dev, or this platform
// has no reader) degrades to the zero value, matching LossLocalizer's
// "optional" OS-counter input.
func pollOSCounters(r *capture.NetlinkCounterReader, iface string, pl *pipeline.Pipeline, logger *zap.Logger) capture.OSCounters {
	c, err := r.Read(iface)
	if err != nil {
		logger.Debug("OS interface counter read failed", zap.String("interface", iface), zap.Error(err))
		return capture.OSCounters{}
	}
	pl.Metrics(iface).UpdateOSCounters(c.RxDropped, c.TxDropped, c.RxErrors, c.TxErrors)
	return c
}

// logLossLocation surfaces a diagnosed loss site at a severity-matched
// log level, since LossLocalizer has no other consumer wired yet.
func logLossLocation(logger *zap.Logger, loc loss.Location) {
	fields := []zap.Field{
		zap.String("interface", loc.Interface),
		zap.String("location", loc.Location),
		zap.String("severity", string(loc.Severity)),
		zap.Strings("evidence", loc.Evidence),
		zap.String("suggested_action", loc.SuggestedAction),
	}
	if loc.Severity == loss.SeverityCritical || loc.Severity == loss.SeverityHigh {
		logger.Warn("packet loss localized", fields...)
	} else {
		logger.Info("packet loss localized", fields...)
	}
}

// interfacePairs returns every distinct unordered pair of interface
// names present in snapshots, in a deterministic order so comparator
// output doesn't jitter between ticks purely from map iteration order.
func interfacePairs(snapshots map[string]ifmetrics.Snapshot) [][2]string {
	names := make([]string, 0, len(snapshots))
	for name := range snapshots {
		names = append(names, name)
	}
	sort.Strings(names)

	var pairs [][2]string
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			pairs = append(pairs, [2]string{names[i], names[j]})
		}
	}
	return pairs
}

// reportCache hands the UI goroutine the latest bottleneck reports
// without sharing the tick loop's backing slice.
type reportCache struct {
	mu sync.Mutex
	v  []bottleneck.Report
}

func newReportCache() *reportCache { return &reportCache{} }

func (c *reportCache) set(v []bottleneck.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}

func (c *reportCache) get() []bottleneck.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}
