// Package ingest drives frames from a source through decoding, the track
// store and the sinks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"adsbtrack/internal/adsb"
	"adsbtrack/internal/metrics"
	"adsbtrack/internal/modes"
	"adsbtrack/internal/retry"
	"adsbtrack/internal/sink"
	"adsbtrack/internal/snapshot"
	"adsbtrack/internal/source"
	"adsbtrack/internal/track"
)

// Default loop settings
const (
	DefaultFlushInterval = time.Second
	DefaultBatchSize     = 500
	DefaultSinkQueue     = 16
	DefaultShutdownGrace = 5 * time.Second
	frameQueue           = 1024
)

// Config tunes the loop
type Config struct {
	// FlushInterval is how often changed tracks are offered to the sinks.
	FlushInterval time.Duration
	// BatchSize caps the records handed to one sink write.
	BatchSize int
	// SinkQueue is the number of batches buffered per sink. A periodic
	// batch that does not fit is dropped.
	SinkQueue int
	// SourceRetry paces reconnects after source failures.
	SourceRetry retry.Config
	// SinkRetry applies to each sink write.
	SinkRetry retry.Config
	// ShutdownGrace bounds the sink writes still pending once the loop
	// stops: the final batches are handed over and written within it.
	ShutdownGrace time.Duration
}

// DefaultConfig returns the default loop settings. Source failures are
// retried until the context ends.
func DefaultConfig() Config {
	src := retry.Default()
	src.MaxRetries = -1
	return Config{
		FlushInterval: DefaultFlushInterval,
		BatchSize:     DefaultBatchSize,
		SinkQueue:     DefaultSinkQueue,
		SourceRetry:   src,
		SinkRetry:     retry.Default(),
		ShutdownGrace: DefaultShutdownGrace,
	}
}

// Loop owns the processing path. Only Run's processor goroutine touches the
// store for writes.
type Loop struct {
	cfg      Config
	src      source.Source
	store    *track.Store
	emitter  *snapshot.Emitter
	throttle *snapshot.Throttle
	sinks    []sink.Sink
	metrics  *metrics.Metrics
	stats    *Stats
	logger   *logrus.Logger

	queues []chan []snapshot.Record
	dirty  map[adsb.Address]struct{}

	// writes is the context of sink writes. It survives cancellation of
	// Run's context and ends ShutdownGrace after the loop stops.
	writes     context.Context
	stopWrites context.CancelFunc
	grace      *time.Timer

	// event time: the newest reception time seen, and the wall clock
	// reading when it was seen
	clock     time.Time
	clockWall time.Time
	lastFlush time.Time
	lastSweep time.Time

	dropLog     rate.Sometimes
	positionLog rate.Sometimes
}

// New creates a loop
func New(cfg Config, src source.Source, store *track.Store, emitter *snapshot.Emitter,
	throttle *snapshot.Throttle, sinks []sink.Sink, m *metrics.Metrics, logger *logrus.Logger) *Loop {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SinkQueue <= 0 {
		cfg.SinkQueue = DefaultSinkQueue
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	return &Loop{
		cfg:         cfg,
		src:         src,
		store:       store,
		emitter:     emitter,
		throttle:    throttle,
		sinks:       sinks,
		metrics:     m,
		stats:       NewStats(),
		logger:      logger,
		dirty:       make(map[adsb.Address]struct{}),
		dropLog:     rate.Sometimes{Interval: 10 * time.Second},
		positionLog: rate.Sometimes{Interval: 10 * time.Second},
	}
}

// Stats returns the loop counters
func (l *Loop) Stats() *Stats {
	return l.stats
}

// Run processes frames until the source is exhausted or ctx is cancelled.
// Changed tracks are flushed one last time before it returns; the store
// stays queryable afterwards.
func (l *Loop) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	l.writes, l.stopWrites = context.WithCancel(context.WithoutCancel(ctx))
	defer l.stopWrites()

	l.queues = make([]chan []snapshot.Record, len(l.sinks))
	for i, s := range l.sinks {
		s := s
		q := make(chan []snapshot.Record, l.cfg.SinkQueue)
		l.queues[i] = q
		g.Go(func() error {
			l.drain(s, q)
			return nil
		})
	}

	frames := make(chan modes.Frame, frameQueue)
	g.Go(func() error {
		return l.read(gctx, frames)
	})
	g.Go(func() error {
		l.process(gctx, frames)
		return nil
	})

	err := g.Wait()
	if l.grace != nil {
		l.grace.Stop()
	}
	sum := l.stats.Summary()
	l.logger.WithFields(logrus.Fields{
		"frames":   sum.Frames,
		"decoded":  sum.Decoded,
		"tracks":   l.store.Len(),
		"records":  sum.Records,
		"evicted":  sum.Evicted,
		"msg_rate": fmt.Sprintf("%.1f/s", sum.MessagesPerSecond),
	}).Info("Ingestion stopped")
	return err
}

// read pulls frames from the source, backing off after failures
func (l *Loop) read(ctx context.Context, out chan<- modes.Frame) error {
	defer close(out)

	backoff := retry.NewBackoff(l.cfg.SourceRetry)
	failures := 0
	for {
		f, err := l.src.Next(ctx)
		if err == nil {
			failures = 0
			backoff.Reset()
			select {
			case out <- f:
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if errors.Is(err, io.EOF) {
			l.logger.Info("Source exhausted")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		l.metrics.SourceError.Inc()
		failures++
		if l.cfg.SourceRetry.MaxRetries >= 0 && failures > l.cfg.SourceRetry.MaxRetries {
			return fmt.Errorf("source failed %d times: %w", failures, err)
		}

		delay := backoff.Next()
		l.logger.WithError(err).WithFields(logrus.Fields{
			"attempt":  failures,
			"retry_in": delay,
		}).Warn("Source read failed")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// process applies frames to the store and schedules flushes and sweeps
func (l *Loop) process(ctx context.Context, frames <-chan modes.Frame) {
	defer l.closeQueues()

	flush := time.NewTicker(l.cfg.FlushInterval)
	defer flush.Stop()
	sweep := time.NewTicker(l.sweepInterval())
	defer sweep.Stop()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				l.stop()
				return
			}
			l.handle(f)
		case <-flush.C:
			l.flush(false)
		case <-sweep.C:
			l.sweep(l.now())
		case <-ctx.Done():
			l.stop()
			return
		}
	}
}

// stop starts the shutdown grace period and hands the final batch to the
// sinks
func (l *Loop) stop() {
	l.grace = time.AfterFunc(l.cfg.ShutdownGrace, l.stopWrites)
	l.flush(true)
}

func (l *Loop) sweepInterval() time.Duration {
	if d := l.store.Config().SweepInterval; d > 0 {
		return d
	}
	return track.DefaultSweepInterval
}

// now is the event clock advanced by the wall time since the newest frame,
// so an idle live feed still ages out. Before any frame it is the wall clock.
func (l *Loop) now() time.Time {
	if l.clock.IsZero() {
		return time.Now()
	}
	return l.clock.Add(time.Since(l.clockWall))
}

// observe advances the event clock to at
func (l *Loop) observe(at time.Time) {
	if l.clock.IsZero() {
		l.lastFlush = at
		l.lastSweep = at
	}
	if at.After(l.clock) {
		l.clock = at
		l.clockWall = time.Now()
	}
}

// handle decodes one frame and applies it. A bad frame is counted and
// skipped.
func (l *Loop) handle(f modes.Frame) {
	at := f.Received
	if at.IsZero() {
		at = time.Now()
		f.Received = at
	}
	l.observe(at)
	l.stats.frame(at)

	msg, err := modes.Decode(f)
	if err != nil {
		reason := rejectReason(err)
		l.stats.reject(reason)
		l.metrics.Frames.WithLabelValues(reason).Inc()
		l.dropLog.Do(func() {
			l.logger.WithError(err).WithField("frame", f.Hex()).Debug("Dropping frame")
		})
		return
	}
	l.metrics.Frames.WithLabelValues("accepted").Inc()

	classified := adsb.Classify(msg)
	l.stats.message(msg.DF, classified.Kind())
	l.metrics.Messages.WithLabelValues(strconv.Itoa(int(msg.DF)), classified.Kind().String()).Inc()

	addr := adsb.Address(msg.Address)
	var u track.Update
	if msg.AddressFromParity {
		var known bool
		u, known = l.store.ApplyExisting(addr, classified, at)
		if !known {
			l.stats.unknownAddress()
			return
		}
	} else {
		u = l.store.Apply(addr, classified, at)
	}

	l.recordPosition(u)
	if u.Created {
		l.metrics.Tracks.Set(float64(l.store.Len()))
	}
	l.dirty[addr] = struct{}{}

	if l.clock.Sub(l.lastSweep) >= l.sweepInterval() {
		l.sweep(l.clock)
	}
	if l.clock.Sub(l.lastFlush) >= l.cfg.FlushInterval {
		l.flush(false)
	}
}

func (l *Loop) recordPosition(u track.Update) {
	if u.Kind != adsb.KindAirbornePosition && u.Kind != adsb.KindSurfacePosition {
		return
	}
	if u.Dropped {
		l.stats.staleFrame()
		return
	}

	switch {
	case u.Resolved:
		l.stats.position(u.Method, nil)
		l.metrics.Positions.WithLabelValues(u.Method.String(), "ok").Inc()
	case u.PositionErr != nil:
		reason := positionReason(u.PositionErr)
		l.stats.position(u.Method, u.PositionErr)
		l.metrics.Positions.WithLabelValues(u.Method.String(), reason).Inc()
		l.positionLog.Do(func() {
			l.logger.WithError(u.PositionErr).WithFields(logrus.Fields{
				"icao":   u.Address.String(),
				"method": u.Method.String(),
			}).Debug("Position not resolved")
		})
	}
}

// sweep evicts tracks that went quiet
func (l *Loop) sweep(now time.Time) {
	l.lastSweep = now
	removed := l.store.EvictStale(now, l.store.Config().StaleAfter)
	if len(removed) == 0 {
		return
	}
	for _, addr := range removed {
		l.throttle.Forget(addr)
		delete(l.dirty, addr)
	}
	l.stats.evict(len(removed))
	l.metrics.Evictions.Add(float64(len(removed)))
	l.metrics.Tracks.Set(float64(l.store.Len()))
	l.logger.WithField("count", len(removed)).Debug("Evicted stale tracks")
}

// flush emits records for changed tracks. Tracks held back by the throttle
// stay dirty; the final flush ignores the throttle.
func (l *Loop) flush(final bool) {
	now := l.now()
	if !l.clock.IsZero() {
		l.lastFlush = l.clock
	}
	if len(l.dirty) == 0 {
		return
	}

	var batch []snapshot.Record
	for addr := range l.dirty {
		if !final && !l.throttle.Allow(addr, now) {
			continue
		}
		delete(l.dirty, addr)
		t, ok := l.store.Snapshot(addr)
		if !ok {
			continue
		}
		batch = append(batch, l.emitter.Emit(t))
	}
	if len(batch) == 0 {
		return
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Address < batch[j].Address })

	l.stats.emitted(len(batch))
	l.metrics.Records.Add(float64(len(batch)))

	for start := 0; start < len(batch); start += l.cfg.BatchSize {
		end := min(start+l.cfg.BatchSize, len(batch))
		l.dispatch(batch[start:end], final)
	}
}

// dispatch queues a batch for every sink. Periodic batches never block the
// processor: a full queue loses the batch. The final batch waits for queue
// space until the shutdown grace period ends.
func (l *Loop) dispatch(batch []snapshot.Record, final bool) {
	for i, q := range l.queues {
		if l.enqueue(q, batch, final) {
			continue
		}
		l.metrics.SinkErrors.WithLabelValues(l.sinks[i].Name()).Inc()
		l.logger.WithFields(logrus.Fields{
			"sink":    l.sinks[i].Name(),
			"records": len(batch),
		}).Warn("Sink queue full, dropping batch")
	}
}

func (l *Loop) enqueue(q chan<- []snapshot.Record, batch []snapshot.Record, final bool) bool {
	select {
	case q <- batch:
		return true
	default:
	}
	if !final {
		return false
	}
	select {
	case q <- batch:
		return true
	case <-l.writes.Done():
		return false
	}
}

func (l *Loop) closeQueues() {
	for _, q := range l.queues {
		close(q)
	}
}

// drain writes queued batches to one sink until its queue is closed.
// Writes outlive cancellation of Run's context but not the shutdown grace
// period.
func (l *Loop) drain(s sink.Sink, q <-chan []snapshot.Record) {
	for batch := range q {
		err := retry.Do(l.writes, l.cfg.SinkRetry, func(ctx context.Context) error {
			return s.Write(ctx, batch)
		})
		if err != nil {
			l.metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
			l.logger.WithError(err).WithFields(logrus.Fields{
				"sink":    s.Name(),
				"records": len(batch),
			}).Error("Sink write failed")
		}
	}
}
