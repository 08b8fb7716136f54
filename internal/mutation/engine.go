package mutation

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/tanalyzer/internal/codec"
	"firestige.xyz/tanalyzer/internal/core"
	"firestige.xyz/tanalyzer/internal/log"
	"firestige.xyz/tanalyzer/internal/metrics"
)

const DefaultBurst = 1000

// Mode decides whether the engine stays armed after a transmission.
type Mode string

const (
	ModeLoop    Mode = "loop"
	ModeOneShot Mode = "one-shot"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeLoop:
		return ModeLoop, nil
	case ModeOneShot, "oneshot", "once":
		return ModeOneShot, nil
	default:
		return "", fmt.Errorf("unknown mutation mode %q (want loop or one-shot)", s)
	}
}

// Transmitter writes a frame to the wire. The capture device implements it.
type Transmitter interface {
	Transmit(data []byte) error
}

type Options struct {
	// Burst is how many copies of each synthesized frame are sent.
	Burst  int
	Device string
	// Rand drives the random defaults. Nil seeds from the clock.
	Rand *rand.Rand
}

type armed struct {
	template Template
	mode     Mode
}

// Engine reacts to captured frames while armed. Arm and Disarm may be
// called from any goroutine; Handle runs on the capture goroutine.
type Engine struct {
	current atomic.Pointer[armed]
	burst   int
	logger  log.Logger

	mu      sync.Mutex
	decoder *codec.Decoder
	synth   synthesizer

	transmitted atomic.Uint64
	failures    atomic.Uint64

	transmittedTotal prometheus.Counter
	failuresTotal    prometheus.Counter
}

func NewEngine(opts Options) *Engine {
	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		burst:            opts.Burst,
		logger:           log.GetLogger().WithField("component", "mutation"),
		decoder:          codec.NewDecoder(),
		synth:            synthesizer{rnd: rnd},
		transmittedTotal: metrics.MutationTransmittedTotal.WithLabelValues(opts.Device),
		failuresTotal:    metrics.MutationFailuresTotal.WithLabelValues(opts.Device),
	}
}

// WithLogger replaces the engine's logger.
func (e *Engine) WithLogger(l log.Logger) *Engine {
	e.logger = l
	return e
}

// Arm starts mutating on the next captured frame.
func (e *Engine) Arm(t Template, mode Mode) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if mode == "" {
		mode = ModeLoop
	}
	e.current.Store(&armed{template: t, mode: mode})
	e.logger.Infof("mutation armed (%s): %s", mode, t)
	return nil
}

func (e *Engine) Disarm() {
	if e.current.Swap(nil) != nil {
		e.logger.Info("mutation disarmed")
	}
}

func (e *Engine) Armed() bool {
	return e.current.Load() != nil
}

func (e *Engine) Burst() int {
	return e.burst
}

// Transmitted is the number of synthesized frames written so far.
func (e *Engine) Transmitted() uint64 {
	return e.transmitted.Load()
}

func (e *Engine) Failures() uint64 {
	return e.failures.Load()
}

// Handle synthesizes and transmits a burst for frame when the engine is
// armed. Failures are logged, counted and returned wrapped in
// core.ErrMutationFailure; they never affect the captured frame.
func (e *Engine) Handle(frame core.RawFrame, tx Transmitter) (sent int, err error) {
	a := e.current.Load()
	if a == nil {
		return 0, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", core.ErrMutationFailure, r)
		}
		if sent > 0 {
			e.transmitted.Add(uint64(sent))
			e.transmittedTotal.Add(float64(sent))
			if a.mode == ModeOneShot && e.current.CompareAndSwap(a, nil) {
				e.logger.Info("one-shot mutation sent, disarmed")
			}
		}
		if err != nil {
			e.failures.Add(1)
			e.failuresTotal.Inc()
			e.logger.WithError(err).Error("packet mutation failed")
		}
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	pkt, err := e.decoder.Decode(frame.LinkType, frame.Data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrMutationFailure, err)
	}
	if !pkt.HasEthernet {
		return 0, nil
	}

	out, err := codec.Encode(e.synth.build(a.template))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrMutationFailure, err)
	}

	for sent < e.burst {
		if err := tx.Transmit(out); err != nil {
			return sent, fmt.Errorf("%w: transmit %d/%d: %w", core.ErrMutationFailure, sent+1, e.burst, err)
		}
		sent++
	}
	return sent, nil
}
