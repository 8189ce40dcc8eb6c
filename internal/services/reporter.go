package services

import (
	"context"
	"sync"
	"time"

	"github.com/CloudNativeWorks/sak-client/internal/transport"
	"github.com/CloudNativeWorks/sak-client/pkg/helper"
	"github.com/CloudNativeWorks/sak-client/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sony/gobreaker"
)

const ReportInterval = 1 * time.Minute

// StatsSource is what the reporter samples on every tick
type StatsSource interface {
	Stats() transport.Stats
	BreakerState() gobreaker.State
}

// Notifier forwards a sd_notify state string
type Notifier func(state string) error

// SystemdNotifier sends state to the service manager, if any
func SystemdNotifier(state string) error {
	_, err := daemon.SdNotify(false, state)
	return err
}

// ReporterOption customizes a StatsReporter
type ReporterOption func(*StatsReporter)

// WithReporterClock swaps the ticker clock
func WithReporterClock(clk clock.Clock) ReporterOption {
	return func(r *StatsReporter) {
		r.clock = clk
	}
}

// WithNotifier replaces the sd_notify sender
func WithNotifier(n Notifier) ReporterOption {
	return func(r *StatsReporter) {
		r.notify = n
	}
}

// WithWatchdog makes every tick also ping the watchdog
func WithWatchdog(enabled bool) ReporterOption {
	return func(r *StatsReporter) {
		r.watchdog = enabled
	}
}

// StatsReporter periodically logs transport counters and keeps the systemd
// watchdog fed while the timed senders run
type StatsReporter struct {
	logger   *logger.Logger
	source   StatsSource
	interval time.Duration
	clock    clock.Clock
	notify   Notifier
	watchdog bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	last    transport.Stats
}

// NewStatsReporter creates a reporter. A non-positive interval falls back
// to ReportInterval, or half the systemd watchdog period when one is set.
func NewStatsReporter(log *logger.Logger, source StatsSource, interval time.Duration, opts ...ReporterOption) *StatsReporter {
	r := &StatsReporter{
		logger:   log,
		source:   source,
		interval: interval,
		clock:    clock.New(),
		notify:   SystemdNotifier,
	}

	if wd, err := daemon.SdWatchdogEnabled(false); err == nil && wd > 0 {
		r.watchdog = true
		if r.interval <= 0 || r.interval > wd/2 {
			r.interval = wd / 2
		}
	}
	if r.interval <= 0 {
		r.interval = ReportInterval
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Interval returns the tick period in use
func (r *StatsReporter) Interval() time.Duration {
	return r.interval
}

// Start begins the report loop
func (r *StatsReporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.logger.Warn("Stats reporter is already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	ticker := r.clock.Ticker(r.interval)
	r.wg.Add(1)
	go r.run(ctx, ticker)

	r.logger.WithFields(logger.Fields{
		"interval": r.interval.String(),
		"watchdog": r.watchdog,
	}).Info("Stats reporter started")
}

// Stop ends the loop and waits for it to exit
func (r *StatsReporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.logger.Debug("Stats reporter stopped")
}

func (r *StatsReporter) run(ctx context.Context, ticker *clock.Ticker) {
	defer helper.RecoverPanic(r.logger, "stats-reporter")
	defer r.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs one sample and pings the watchdog
func (r *StatsReporter) Report() {
	stats := r.source.Stats()
	state := r.source.BreakerState()

	r.mu.Lock()
	delta := stats.Packets - r.last.Packets
	newErrors := stats.Errors - r.last.Errors
	r.last = stats
	r.mu.Unlock()

	entry := r.logger.WithFields(logger.Fields{
		"packets":    stats.Packets,
		"bytes":      stats.Bytes,
		"errors":     stats.Errors,
		"sent_since": delta,
		"new_errors": newErrors,
		"breaker":    state.String(),
	})
	if state != gobreaker.StateClosed || newErrors > 0 {
		entry.Warn("Transport stats")
	} else {
		entry.Info("Transport stats")
	}

	if r.watchdog && r.notify != nil {
		if err := r.notify(daemon.SdNotifyWatchdog); err != nil {
			r.logger.Debugf("Watchdog notify failed: %v", err)
		}
	}
}
