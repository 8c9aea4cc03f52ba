package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"adsbtrack/internal/api"
	"adsbtrack/internal/ingest"
	"adsbtrack/internal/metrics"
	"adsbtrack/internal/sink"
	"adsbtrack/internal/snapshot"
	"adsbtrack/internal/source"
	"adsbtrack/internal/storage"
	"adsbtrack/internal/track"
)

// Application wires a source, the tracker and the outputs together
type Application struct {
	config Config
	logger *logrus.Logger
	stdin  io.Reader
	stdout io.Writer

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *track.Store
	emitter  *snapshot.Emitter
	throttle *snapshot.Throttle
	source   source.Source
	sinks    []sink.Sink
	files    []*sink.File
	loop     *ingest.Loop
	api      *api.Server
	closers  []io.Closer
}

// NewApplication creates a new application instance
func NewApplication(config Config, logger *logrus.Logger) *Application {
	return &Application{
		config: config,
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}
}

// Store returns the track store, available after Run has initialized it
func (app *Application) Store() *track.Store {
	return app.store
}

// Run initializes the components and processes frames until the source is
// exhausted, a component fails or SIGINT/SIGTERM arrives.
func (app *Application) Run(ctx context.Context) error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
		"source":     app.config.Source,
	}).Info("Starting ADS-B tracker")

	if err := app.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.initializeComponents(ctx); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer app.cleanup()

	return app.run(ctx)
}

// initializeComponents builds everything Run needs. Anything opened before a
// failure is released by cleanup.
func (app *Application) initializeComponents(ctx context.Context) error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.registry)

	trackConfig, err := app.config.TrackConfig()
	if err != nil {
		return err
	}
	app.store = track.NewStore(trackConfig)
	app.emitter = snapshot.NewEmitter(app.config.Units())

	app.throttle, err = snapshot.NewThrottle(app.config.EmitInterval, snapshot.DefaultThrottleSize)
	if err != nil {
		return err
	}

	if err := app.initializeSinks(ctx); err != nil {
		return err
	}

	app.source, err = app.openSource(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s source: %w", app.config.Source, err)
	}
	app.closers = append(app.closers, app.source)

	loopConfig := ingest.DefaultConfig()
	loopConfig.FlushInterval = app.config.FlushInterval
	loopConfig.ShutdownGrace = app.shutdownTimeout()
	app.loop = ingest.New(loopConfig, app.source, app.store, app.emitter, app.throttle,
		app.sinks, app.metrics, app.logger)

	if app.config.HTTPAddr != "" {
		app.api = api.NewServer(app.config.HTTPAddr, app.store, app.emitter, app.loop.Stats(),
			app.registry, app.logger)
	}
	return nil
}

func (app *Application) initializeSinks(ctx context.Context) error {
	if app.config.BaseStation {
		bs := sink.NewBaseStation(app.stdout, app.logger)
		app.sinks = append(app.sinks, bs)
		app.closers = append(app.closers, bs)
	}

	if app.config.OutputDir != "" {
		format, err := sink.ParseFormat(app.config.OutputFormat)
		if err != nil {
			return err
		}
		file, err := sink.NewFile(app.config.OutputDir, format, app.config.RotateUTC, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize file output: %w", err)
		}
		app.sinks = append(app.sinks, file)
		app.files = append(app.files, file)
		app.closers = append(app.closers, file)
	}

	if app.config.Postgres {
		db, err := storage.Open(ctx, app.config.Database, app.logger)
		if err != nil {
			return err
		}
		w := storage.NewRecordWriter(db, app.config.SourceName)
		app.closers = append(app.closers, w)
		if err := db.InitSchema(ctx); err != nil {
			return err
		}
		app.sinks = append(app.sinks, w)
	}

	if len(app.sinks) == 0 {
		app.logger.Warn("No outputs configured; tracks are only available through the HTTP API")
	}
	return nil
}

func (app *Application) openSource(ctx context.Context) (source.Source, error) {
	switch app.config.Source {
	case SourceTCP:
		format, err := source.ParseFormat(app.config.Format)
		if err != nil {
			return nil, err
		}
		return source.NewTCP(app.config.Addr, format, app.logger), nil

	case SourceStdin:
		format, err := source.ParseFormat(app.config.Format)
		if err != nil {
			return nil, err
		}
		return source.NewReader(app.stdin, format, app.logger), nil

	case SourceReplay:
		db, err := storage.Open(ctx, app.config.Database, app.logger)
		if err != nil {
			return nil, err
		}
		cursor, err := db.Pings(ctx, app.config.ReplayQuery, storage.DefaultFetchSize)
		if err != nil {
			db.Close()
			return nil, err
		}
		app.closers = append(app.closers, db)
		return source.NewReplay(cursor, app.logger), nil

	case SourceRTLSDR:
		return source.OpenRTLSDR(app.config.DeviceIndex, app.config.RTLSDRSettings(), app.logger)
	}
	return nil, fmt.Errorf("unknown source %q", app.config.Source)
}

// run supervises the loop and the auxiliary goroutines. Once the loop ends,
// for any reason, the rest is stopped.
func (app *Application) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	g.Go(func() error {
		defer stopAux()
		return app.loop.Run(gctx)
	})
	if app.api != nil {
		g.Go(func() error {
			return app.api.Run(auxCtx)
		})
	}
	g.Go(func() error {
		app.reportStatistics(auxCtx)
		return nil
	})
	if len(app.files) > 0 && app.config.RetainDays > 0 {
		g.Go(func() error {
			app.cleanupOutputs(auxCtx)
			return nil
		})
	}

	app.logger.Info("All components started successfully")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	// The loop and the API bound their own shutdown by the timeout; the
	// second period only covers a sink that ignores its context.
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		app.logger.Info("Received shutdown signal")
		select {
		case err = <-done:
		case <-time.After(2 * app.shutdownTimeout()):
			app.logger.Warn("Shutdown timeout, forcing exit")
		}
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (app *Application) shutdownTimeout() time.Duration {
	if app.config.ShutdownTimeout > 0 {
		return app.config.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

// reportStatistics logs the ingestion counters periodically
func (app *Application) reportStatistics(ctx context.Context) {
	interval := app.config.StatsInterval
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum := app.loop.Stats().Summary()
			app.logger.WithFields(logrus.Fields{
				"frames":           sum.Frames,
				"decoded":          sum.Decoded,
				"rejected":         sum.Rejected,
				"unknown_address":  sum.UnknownAddress,
				"positions_global": sum.PositionsGlobal,
				"positions_local":  sum.PositionsLocal,
				"tracks":           app.store.Len(),
				"records":          sum.Records,
				"msg_rate":         fmt.Sprintf("%.1f/s", sum.MessagesPerSecond),
			}).Info("Tracking statistics")
		}
	}
}

// cleanupOutputs removes record files older than the retention period,
// once at startup and then hourly
func (app *Application) cleanupOutputs(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		for _, f := range app.files {
			if err := f.Rotator().Cleanup(app.config.RetainDays); err != nil {
				app.logger.WithError(err).Warn("Failed to clean up old record files")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cleanup releases resources in reverse order of acquisition
func (app *Application) cleanup() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to close component")
		}
	}
	app.closers = nil
	app.logger.Info("Shutdown completed")
}
