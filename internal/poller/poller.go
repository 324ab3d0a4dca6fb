package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelrealty/backoffice/internal/aggregator"
	"github.com/kestrelrealty/backoffice/pkg/logger"
	"github.com/kestrelrealty/backoffice/pkg/metrics"
)

const (
	// DefaultInterval matches the dashboard badge refresh cadence.
	DefaultInterval = 5 * time.Second
	// DefaultCycleTimeout bounds one full aggregation fan-out.
	DefaultCycleTimeout = 10 * time.Second
)

// Collector produces one feed snapshot per call.
type Collector interface {
	Collect(ctx context.Context) (*aggregator.Feed, error)
}

// Broadcaster receives each freshly published snapshot.
type Broadcaster interface {
	BroadcastFeed(feed *aggregator.Feed)
}

// Poller owns the fixed-interval refresh loop. It is created on startup and
// disposed on shutdown; nothing about it is process-global. When a cycle is
// still in flight as the next tick fires, the stale cycle is cancelled and
// its result discarded so snapshots never go backwards.
type Poller struct {
	collector    Collector
	broadcaster  Broadcaster
	interval     time.Duration
	cycleTimeout time.Duration
	log          *zap.Logger

	mu         sync.RWMutex
	current    *aggregator.Feed
	generation uint64
	published  uint64

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
	started  bool
}

// Option customises the Poller.
type Option func(*Poller)

// WithInterval overrides the polling cadence.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithCycleTimeout overrides the per-cycle deadline.
func WithCycleTimeout(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.cycleTimeout = d
		}
	}
}

// WithBroadcaster attaches a realtime fan-out target for published snapshots.
func WithBroadcaster(b Broadcaster) Option {
	return func(p *Poller) {
		p.broadcaster = b
	}
}

// New constructs a stopped Poller.
func New(collector Collector, opts ...Option) (*Poller, error) {
	if collector == nil {
		return nil, errors.New("poller: collector is required")
	}

	p := &Poller{
		collector:    collector,
		interval:     DefaultInterval,
		cycleTimeout: DefaultCycleTimeout,
		log:          logger.WithModule("poller"),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the polling loop. The first cycle runs immediately rather
// than waiting out a full interval. Start is not restartable after Stop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("poller: already started")
	}
	p.started = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(runCtx)
	return nil
}

// Stop cancels the loop and any in-flight cycle, then waits for the loop
// goroutine to exit. After Stop returns no further snapshots are published.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		started := p.started
		p.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if started {
			<-p.done
		}
	})
}

// Snapshot returns the most recently published feed, or nil before the first
// successful cycle completes.
func (p *Poller) Snapshot() *aggregator.Feed {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var cancelPrev context.CancelFunc
	launch := func() {
		if cancelPrev != nil {
			cancelPrev() // supersede the stale in-flight cycle
		}
		cycleCtx, cancel := context.WithTimeout(ctx, p.cycleTimeout)
		cancelPrev = cancel

		p.mu.Lock()
		p.generation++
		gen := p.generation
		p.mu.Unlock()

		go p.cycle(cycleCtx, gen)
	}

	launch()
	for {
		select {
		case <-ctx.Done():
			if cancelPrev != nil {
				cancelPrev()
			}
			return
		case <-ticker.C:
			launch()
		}
	}
}

// cycle runs one collection and publishes the result if it is still the
// newest generation. The loop must survive anything a cycle throws at it;
// a panic here is logged and the next tick proceeds as usual.
func (p *Poller) cycle(ctx context.Context, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("poll cycle panicked", zap.Any("panic", r))
		}
	}()

	feed, err := p.collector.Collect(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Warn("poll cycle failed", zap.Error(err))
		}
		return
	}
	if ctx.Err() != nil {
		return // superseded or shutting down; discard
	}

	p.publish(feed, gen)
}

func (p *Poller) publish(feed *aggregator.Feed, gen uint64) {
	p.mu.Lock()
	if gen <= p.published {
		p.mu.Unlock()
		return // an out-of-order result from a superseded cycle
	}
	p.published = gen
	p.current = feed
	broadcaster := p.broadcaster
	p.mu.Unlock()

	metrics.FeedTotal.Set(float64(feed.Total))
	if broadcaster != nil {
		broadcaster.BroadcastFeed(feed)
	}
}
