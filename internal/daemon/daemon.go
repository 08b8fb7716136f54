// Package daemon runs one capture session in the foreground and applies
// configuration changes to it while it runs.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/tanalyzer/internal/config"
	"firestige.xyz/tanalyzer/internal/device"
	"firestige.xyz/tanalyzer/internal/filter"
	"firestige.xyz/tanalyzer/internal/log"
	"firestige.xyz/tanalyzer/internal/metrics"
	"firestige.xyz/tanalyzer/internal/mutation"
	"firestige.xyz/tanalyzer/internal/session"
	"firestige.xyz/tanalyzer/internal/sink"
	"firestige.xyz/tanalyzer/internal/sink/console"
	"firestige.xyz/tanalyzer/internal/sink/websocket"
	"firestige.xyz/tanalyzer/internal/worker"
)

// Daemon owns the capture session and its outer surfaces.
type Daemon struct {
	// Configuration
	mu         sync.Mutex
	config     *config.Config
	configPath string
	console    io.Writer

	// Core components
	dev           device.Device
	session       *session.Session
	filter        *filter.Holder
	engine        *mutation.Engine
	wsSink        *websocket.Sink // nil if websocket disabled
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx         context.Context
	cancel      context.CancelFunc
	failed      chan error
	completed   chan struct{}
	completeOne sync.Once
	unsubscribe func()
	sigChan     chan os.Signal
	stopOnce    sync.Once
	stopErr     error
}

// New builds a daemon for cfg. configPath is re-read on SIGHUP and watched
// for edits; it may be empty. Accepted packets are printed to out unless it
// is nil.
func New(cfg *config.Config, configPath string, out io.Writer) (*Daemon, error) {
	dev, err := newDevice(cfg.Capture)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		console:    out,
		dev:        dev,
		filter:     filter.NewHolder(cfg.Filter),
		engine:     mutation.NewEngine(mutation.Options{Burst: cfg.Mutation.Burst, Device: dev.Name()}),
		failed:     make(chan error, 1),
		completed:  make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start initializes logging and the outer surfaces, then starts capture.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := log.GetLogger()
	logger.WithField("config", d.configPath).WithField("device", d.dev.Name()).Info("starting tanalyzer")

	// 2. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 3. Start websocket sink
	if err := d.startWebSocket(); err != nil {
		d.stopServers()
		return fmt.Errorf("failed to start websocket sink: %w", err)
	}

	// 4. Arm the mutation engine before the first frame arrives
	d.engine.WithLogger(logger.WithField("component", "mutation"))
	if err := d.config.Mutation.Apply(d.engine); err != nil {
		d.stopServers()
		return fmt.Errorf("failed to arm mutation engine: %w", err)
	}

	// 5. Start the capture session
	d.session = session.New(d.dev, sessionConfig(d.config), d.filter, d.sinks(),
		session.WithEngine(d.engine),
		session.WithNotifier(d.onFailure),
	)
	d.unsubscribe = d.dev.OnCaptureStopped(func(err error) {
		if err == nil {
			d.completeOne.Do(func() { close(d.completed) })
		}
	})
	if err := d.session.Start(); err != nil {
		d.unsubscribe()
		d.stopServers()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	// 6. Apply config file edits live
	if d.configPath != "" {
		if _, err := config.Watch(d.configPath, func(cfg *config.Config) { d.apply(cfg) }); err != nil {
			logger.WithError(err).Warn("config watch disabled")
		}
	}

	logger.Info("tanalyzer started")
	return nil
}

// Run blocks until shutdown. Shutdown is triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. the capture device failing
//  3. the capture source running out (file replay)
//
// SIGHUP reloads the configuration file.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	logger := log.GetLogger()
	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				logger.WithField("signal", sig).Info("received shutdown signal")
				return d.Stop()

			case syscall.SIGHUP:
				logger.Info("received reload signal")
				if err := d.Reload(); err != nil {
					logger.WithError(err).Error("failed to reload config")
				}
			}

		case err := <-d.failed:
			logger.WithError(err).Error("capture failed, shutting down")
			return errors.Join(err, d.Stop())

		case <-d.completed:
			d.waitDrained()
			logger.Info("capture source exhausted")
			return d.Stop()

		case <-d.ctx.Done():
			return d.Stop()
		}
	}
}

// Stop performs graceful shutdown. Repeated calls return the first result.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		logger := log.GetLogger()
		logger.Info("initiating graceful shutdown")

		// 1. Stop capture and the worker
		if d.session != nil {
			d.stopErr = d.session.Shutdown()
		}
		if d.unsubscribe != nil {
			d.unsubscribe()
		}

		// 2. Stop outer surfaces
		d.stopServers()

		// 3. Cancel context and unregister signal handler
		d.cancel()
		if d.sigChan != nil {
			signal.Stop(d.sigChan)
		}

		logger.Info("tanalyzer stopped")
		_ = log.Close()
	})
	return d.stopErr
}

// Reload re-reads the configuration file and applies it.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return errors.New("no config file to reload")
	}
	cfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	d.apply(cfg)
	return nil
}

// apply hot-reloads log, filter and mutation settings. Everything else is
// fixed for the lifetime of the session and only reported.
func (d *Daemon) apply(next *config.Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.config
	logger := log.GetLogger()

	hotReloaded := []string{}
	if !reflect.DeepEqual(prev.Log, next.Log) {
		if err := log.Init(next.Log); err != nil {
			logger.WithError(err).Error("failed to reinitialize logging")
			next.Log = prev.Log
		} else {
			logger = log.GetLogger()
			hotReloaded = append(hotReloaded, "log")
		}
	}
	if prev.Filter != next.Filter {
		d.filter.Set(next.Filter)
		hotReloaded = append(hotReloaded, "filter")
	}
	if !reflect.DeepEqual(prev.Mutation, next.Mutation) {
		if err := next.Mutation.Apply(d.engine); err != nil {
			logger.WithError(err).Error("failed to apply mutation settings")
			next.Mutation = prev.Mutation
		} else {
			hotReloaded = append(hotReloaded, "mutation")
		}
	}

	requiresRestart := []string{}
	if prev.Capture != next.Capture {
		requiresRestart = append(requiresRestart, "capture")
	}
	if prev.Queue != next.Queue {
		requiresRestart = append(requiresRestart, "queue")
	}
	if prev.Worker != next.Worker {
		requiresRestart = append(requiresRestart, "worker")
	}
	if prev.Metrics != next.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	if prev.WebSocket != next.WebSocket {
		requiresRestart = append(requiresRestart, "websocket")
	}
	if prev.Mutation.Burst != next.Mutation.Burst {
		requiresRestart = append(requiresRestart, "mutation.burst")
	}

	d.config = next
	logger.WithFields(map[string]interface{}{
		"hot_reloaded":     hotReloaded,
		"requires_restart": requiresRestart,
	}).Info("configuration reloaded")
}

// Config returns the configuration currently in effect.
func (d *Daemon) Config() *config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config
}

// Session returns the running capture session, nil before Start.
func (d *Daemon) Session() *session.Session {
	return d.session
}

func (d *Daemon) onFailure(err error) {
	select {
	case d.failed <- err:
	default:
	}
}

// waitDrained gives the worker up to the shutdown timeout to publish what
// the exhausted source queued.
func (d *Daemon) waitDrained() {
	deadline := time.Now().Add(d.Config().Worker.ShutdownTimeout)
	w := d.session.Worker()
	q := d.session.Queue()
	for time.Now().Before(deadline) {
		if q.Len() == 0 && w.State() != worker.Draining {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (d *Daemon) sinks() sink.Sink {
	var out sink.Multi
	if d.console != nil {
		out = append(out, console.NewSink(d.console))
	}
	if d.wsSink != nil {
		out = append(out, d.wsSink)
	}
	if len(out) == 0 {
		return sink.Discard{}
	}
	return out
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start()
}

func (d *Daemon) startWebSocket() error {
	if !d.config.WebSocket.Enabled {
		return nil
	}
	d.wsSink = websocket.NewSink()
	return d.wsSink.Start(d.config.WebSocket.Listen, d.config.WebSocket.Path)
}

func (d *Daemon) stopServers() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if d.wsSink != nil {
		if err := d.wsSink.Stop(ctx); err != nil {
			log.GetLogger().WithError(err).Error("error stopping websocket sink")
		}
	}
	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(ctx); err != nil {
			log.GetLogger().WithError(err).Error("error stopping metrics server")
		}
	}
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Mode:               openMode(cfg.Capture),
		ReadTimeout:        cfg.Capture.ReadTimeout,
		Queue:              cfg.Queue.Options(),
		PollInterval:       cfg.Worker.PollInterval,
		StatisticsInterval: cfg.Worker.StatisticsInterval,
		ShutdownTimeout:    cfg.Worker.ShutdownTimeout,
		Burst:              cfg.Mutation.Burst,
	}
}
