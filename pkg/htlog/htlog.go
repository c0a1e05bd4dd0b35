// Package htlog wires up the structured logger every long-running attack
// phase reports progress through. The cadence (periodic tick and rate
// computation; no ETA is computed) mirrors the teacher's worker-pool progress reporter; the
// sink is zerolog instead of raw fmt.Printf.
package htlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a logger: a human-readable console writer by default, or raw
// JSON lines when json is true (suited to piping into log aggregation).
func New(json bool, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	if json {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Progress periodically logs checked/found/elapsed/rate fields for a
// long-running phase, until stop is closed. It plays the role of the
// teacher's ticker-driven progress goroutine in pkg/search/worker.go and
// pkg/stoke/search.go, generalized to any counters rather than one
// hard-coded pair.
type Progress struct {
	logger    zerolog.Logger
	phase     string
	interval  time.Duration
	start     time.Time
	lastTick  time.Time
	lastCheck int64
	checked   func() int64
	found     func() int64
}

// NewProgress builds a reporter. checked/found are read under the caller's
// own synchronization (typically atomic.Int64.Load).
func NewProgress(logger zerolog.Logger, phase string, interval time.Duration, checked, found func() int64) *Progress {
	now := time.Now()
	return &Progress{
		logger:   logger,
		phase:    phase,
		interval: interval,
		start:    now,
		lastTick: now,
		checked:  checked,
		found:    found,
	}
}

// Run blocks, ticking until stop is closed. Call it in its own goroutine.
func (p *Progress) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			p.emit(true)
			return
		case now := <-ticker.C:
			p.emitAt(now, false)
		}
	}
}

func (p *Progress) emit(final bool) {
	p.emitAt(time.Now(), final)
}

func (p *Progress) emitAt(now time.Time, final bool) {
	checked := p.checked()
	found := int64(0)
	if p.found != nil {
		found = p.found()
	}
	elapsed := now.Sub(p.start)
	dt := now.Sub(p.lastTick).Seconds()
	var rate float64
	if dt > 0 {
		rate = float64(checked-p.lastCheck) / dt
	}
	p.lastCheck = checked
	p.lastTick = now

	ev := p.logger.Info()
	if final {
		ev = ev.Bool("final", true)
	}
	ev.Str("phase", p.phase).
		Int64("checked", checked).
		Int64("found", found).
		Dur("elapsed", elapsed.Round(time.Second)).
		Float64("rate_per_sec", rate).
		Msg("progress")
}
