// Package worker drains the ingest queue, decodes and filters frames and
// publishes the accepted packets.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/tanalyzer/internal/codec"
	"firestige.xyz/tanalyzer/internal/core"
	"firestige.xyz/tanalyzer/internal/filter"
	"firestige.xyz/tanalyzer/internal/log"
	"firestige.xyz/tanalyzer/internal/metrics"
	"firestige.xyz/tanalyzer/internal/queue"
	"firestige.xyz/tanalyzer/internal/sink"
)

const (
	DefaultPollInterval       = 250 * time.Millisecond
	DefaultStatisticsInterval = 2 * time.Second
	MinStatisticsInterval     = 2 * time.Second
)

type State int32

const (
	Idle State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StatisticsSource provides device counters, usually the capture device.
type StatisticsSource interface {
	Statistics() (core.CaptureStatistics, error)
}

type Options struct {
	PollInterval       time.Duration
	StatisticsInterval time.Duration
	// Device labels metrics and log lines.
	Device string
}

type Worker struct {
	queue   *queue.IngestQueue
	filter  *filter.Holder
	sink    sink.Sink
	stats   StatisticsSource
	decoder *codec.Decoder
	opts    Options
	logger  log.Logger

	counters  Counters
	state     atomic.Int32
	nextSeq   uint64
	lastStats time.Time
	now       func() time.Time
	warns     *warnLimiter

	decoded, decodeErrors, filtered, published prometheus.Counter
	batchSize                                  prometheus.Observer
	queueDropped                               prometheus.Counter
	reportedDrops                              uint64
}

// New creates a worker. stats may be nil when no statistics are available.
func New(q *queue.IngestQueue, f *filter.Holder, s sink.Sink, stats StatisticsSource, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.StatisticsInterval <= 0 {
		opts.StatisticsInterval = DefaultStatisticsInterval
	}
	if opts.StatisticsInterval < MinStatisticsInterval {
		opts.StatisticsInterval = MinStatisticsInterval
	}
	if f == nil {
		f = filter.NewHolder(filter.Criteria{})
	}
	if s == nil {
		s = sink.Discard{}
	}

	w := &Worker{
		queue:   q,
		filter:  f,
		sink:    s,
		stats:   stats,
		decoder: codec.NewDecoder(),
		opts:    opts,
		logger:  log.GetLogger().WithField("device", opts.Device),
		now:     time.Now,
		warns:   newWarnLimiter(defaultWarnWindow, defaultWarnBurst),

		decoded:      metrics.WorkerPacketsTotal.WithLabelValues(opts.Device, metrics.StageDecoded),
		decodeErrors: metrics.WorkerPacketsTotal.WithLabelValues(opts.Device, metrics.StageDecodeError),
		filtered:     metrics.WorkerPacketsTotal.WithLabelValues(opts.Device, metrics.StageFiltered),
		published:    metrics.WorkerPacketsTotal.WithLabelValues(opts.Device, metrics.StagePublished),
		batchSize:    metrics.WorkerBatchSize.WithLabelValues(opts.Device),
		queueDropped: metrics.CaptureDropsTotal.WithLabelValues(opts.Device, metrics.DropQueue),
	}
	w.state.Store(int32(Idle))
	return w
}

// WithLogger replaces the worker's logger.
func (w *Worker) WithLogger(l log.Logger) *Worker {
	w.logger = l
	return w
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) Stats() Stats {
	return w.counters.Snapshot()
}

// Run polls the queue until ctx is cancelled. It returns once the worker
// has reached Stopped.
func (w *Worker) Run(ctx context.Context) {
	defer w.state.Store(int32(Stopped))

	w.lastStats = w.now()
	timer := time.NewTimer(w.opts.PollInterval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		if w.queue.Len() == 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.opts.PollInterval)
			select {
			case <-ctx.Done():
				return
			case <-w.queue.Wake():
			case <-timer.C:
			}
		} else {
			w.state.Store(int32(Draining))
			w.drain()
			w.state.Store(int32(Idle))
		}

		w.refreshStatistics()
	}
}

func (w *Worker) drain() {
	batch := w.queue.DrainSwap()
	if len(batch) == 0 {
		return
	}
	w.counters.Batches.Add(1)
	w.batchSize.Observe(float64(len(batch)))
	metrics.QueueDepth.WithLabelValues(w.opts.Device).Set(float64(len(batch)))
	w.logger.Debugf("drained %d frames", len(batch))

	for i := range batch {
		w.process(batch[i])
	}

	if d := w.queue.Dropped(); d > w.reportedDrops {
		w.queueDropped.Add(float64(d - w.reportedDrops))
		w.reportedDrops = d
	}
}

func (w *Worker) process(frame core.RawFrame) {
	w.counters.Received.Add(1)

	pkt, err := w.decoder.DecodeFrame(frame)
	if err != nil {
		w.counters.DecodeErrors.Add(1)
		w.decodeErrors.Inc()
		ok, dropped := w.warns.allow(w.now())
		if dropped > 0 {
			w.logger.Warnf("%d decode warnings suppressed", dropped)
		}
		if ok {
			w.logger.WithError(err).Warnf("skipping frame of %d bytes", len(frame.Data))
		}
		return
	}
	pkt.Seq = w.nextSeq
	w.nextSeq++
	w.counters.Decoded.Add(1)
	w.decoded.Inc()

	if w.logger.IsDebugEnabled() {
		w.logger.Debugf("frame %d at %s len=%d", pkt.Seq, frame.Timestamp.Format("15:04:05.000"), len(frame.Data))
	}

	if !w.filter.Matches(pkt) {
		w.counters.Filtered.Add(1)
		w.filtered.Inc()
		return
	}
	w.sink.Publish(pkt)
	w.counters.Published.Add(1)
	w.published.Inc()
}

func (w *Worker) refreshStatistics() {
	if w.stats == nil {
		return
	}
	now := w.now()
	if now.Sub(w.lastStats) < w.opts.StatisticsInterval {
		return
	}
	w.lastStats = now
	w.PublishStatistics()
}

// PublishStatistics fetches a snapshot from the statistics source and
// publishes it right away.
func (w *Worker) PublishStatistics() {
	if w.stats == nil {
		return
	}
	s, err := w.stats.Statistics()
	if err != nil {
		w.logger.WithError(err).Warn("statistics unavailable")
		return
	}
	w.logger.Debug(s.String())
	w.sink.PublishStatistics(s)
}
