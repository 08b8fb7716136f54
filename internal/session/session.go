// Package session assembles one capture run: device, ingest queue, worker
// and mutation engine. A session is created on start and discarded on stop.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/tanalyzer/internal/core"
	"firestige.xyz/tanalyzer/internal/device"
	"firestige.xyz/tanalyzer/internal/filter"
	"firestige.xyz/tanalyzer/internal/log"
	"firestige.xyz/tanalyzer/internal/metrics"
	"firestige.xyz/tanalyzer/internal/mutation"
	"firestige.xyz/tanalyzer/internal/queue"
	"firestige.xyz/tanalyzer/internal/sink"
	"firestige.xyz/tanalyzer/internal/worker"
)

const DefaultShutdownTimeout = 5 * time.Second

// Notifier is told about device failures. It is called from the device
// goroutine and must not block.
type Notifier func(err error)

type Config struct {
	Mode               device.Mode
	ReadTimeout        time.Duration
	Queue              queue.Options
	PollInterval       time.Duration
	StatisticsInterval time.Duration
	ShutdownTimeout    time.Duration
	Burst              int
}

type Session struct {
	dev      device.Device
	cfg      Config
	queue    *queue.IngestQueue
	worker   *worker.Worker
	engine   *mutation.Engine
	filter   *filter.Holder
	notify   Notifier
	logger   log.Logger
	arrivals prometheus.Counter

	mu          sync.Mutex
	started     bool
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe []func()
}

type Option func(*Session)

// WithNotifier routes device failures to n.
func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notify = n }
}

// WithLogger replaces the session logger. The worker and a session-created
// engine log through it too.
func WithLogger(l log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithEngine shares an existing mutation engine, for example one armed
// from configuration before the session starts.
func WithEngine(e *mutation.Engine) Option {
	return func(s *Session) { s.engine = e }
}

func New(dev device.Device, cfg Config, f *filter.Holder, out sink.Sink, opts ...Option) *Session {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = device.DefaultReadTimeout
	}
	if f == nil {
		f = filter.NewHolder(filter.Criteria{})
	}

	s := &Session{
		dev:      dev,
		cfg:      cfg,
		filter:   f,
		logger:   log.GetLogger().WithField("device", dev.Name()),
		arrivals: metrics.CapturePacketsTotal.WithLabelValues(dev.Name()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = mutation.NewEngine(mutation.Options{Burst: cfg.Burst, Device: dev.Name()})
		s.engine.WithLogger(s.logger.WithField("component", "mutation"))
	}

	s.queue = queue.New(cfg.Queue)
	s.worker = worker.New(s.queue, f, out, dev, worker.Options{
		PollInterval:       cfg.PollInterval,
		StatisticsInterval: cfg.StatisticsInterval,
		Device:             dev.Name(),
	}).WithLogger(s.logger)
	return s
}

func (s *Session) Engine() *mutation.Engine {
	return s.engine
}

func (s *Session) Filter() *filter.Holder {
	return s.filter
}

func (s *Session) Worker() *worker.Worker {
	return s.worker
}

func (s *Session) Queue() *queue.IngestQueue {
	return s.queue
}

// Start opens the device, starts the worker, publishes a first statistics
// snapshot and starts capture. On failure everything already started is
// torn down again.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("session already started")
	}

	s.unsubscribe = append(s.unsubscribe,
		s.dev.OnPacketArrival(s.onArrival),
		s.dev.OnCaptureStopped(s.onCaptureStopped),
	)

	if err := s.dev.Open(s.cfg.Mode, s.cfg.ReadTimeout); err != nil {
		s.release()
		return s.deviceError("open", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.worker.Run(ctx)
	}()

	s.worker.PublishStatistics()

	if err := s.dev.Start(); err != nil {
		cancel()
		<-s.done
		_ = s.dev.Close()
		s.release()
		return s.deviceError("start", err)
	}

	s.started = true
	metrics.SessionStatus.WithLabelValues(s.dev.Name()).Set(metrics.SessionRunning)
	s.logger.Infof("capture started (%s mode)", s.cfg.Mode)
	return nil
}

// Shutdown stops the device, unregisters the handlers and waits for the
// worker. It returns core.ErrShutdownTimeout when the worker does not exit
// within the shutdown timeout.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false

	var errs []error
	if err := s.dev.Stop(); err != nil {
		errs = append(errs, s.deviceError("stop", err))
	}
	if err := s.dev.Close(); err != nil {
		errs = append(errs, s.deviceError("close", err))
	}
	s.release()

	s.cancel()
	select {
	case <-s.done:
	case <-time.After(s.cfg.ShutdownTimeout):
		errs = append(errs, fmt.Errorf("%w: worker still running after %s", core.ErrShutdownTimeout, s.cfg.ShutdownTimeout))
	}

	metrics.SessionStatus.WithLabelValues(s.dev.Name()).Set(metrics.SessionStopped)
	st := s.worker.Stats()
	s.logger.Infof("capture stopped: %d received, %d published, %d decode errors, %d queue drops",
		st.Received, st.Published, st.DecodeErrors, s.queue.Dropped())
	return errors.Join(errs...)
}

// Done is closed when the worker has exited.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) release() {
	for _, u := range s.unsubscribe {
		u()
	}
	s.unsubscribe = nil
}

// onArrival runs on the device goroutine. Mutation failures are contained
// by the engine; the captured frame is queued either way.
func (s *Session) onArrival(frame core.RawFrame, dev device.Device) {
	s.arrivals.Inc()
	if s.engine.Armed() {
		_, _ = s.engine.Handle(frame, dev)
	}
	s.queue.Enqueue(frame)
}

func (s *Session) onCaptureStopped(err error) {
	if err == nil {
		s.logger.Info("capture completed")
		return
	}
	metrics.SessionStatus.WithLabelValues(s.dev.Name()).Set(metrics.SessionError)
	s.logger.WithError(err).Error("capture stopped with error")
	_ = s.deviceError("capture", err)
}

func (s *Session) deviceError(op string, err error) error {
	if !errors.Is(err, core.ErrDeviceFailure) {
		err = fmt.Errorf("%w: %s %s: %w", core.ErrDeviceFailure, op, s.dev.Name(), err)
	}
	if s.notify != nil {
		s.notify(err)
	}
	return err
}
