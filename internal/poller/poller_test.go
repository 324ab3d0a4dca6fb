package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelrealty/backoffice/internal/aggregator"
	"github.com/kestrelrealty/backoffice/internal/entities"
)

// scriptedCollector returns canned feeds, optionally delaying or panicking.
type scriptedCollector struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	delayOn int // apply delay on this call number only (1-based), 0 = every call
	panicOn int // panic on this call number (1-based), 0 disables
	feeds   func(call int) *aggregator.Feed
}

func (s *scriptedCollector) Collect(ctx context.Context) (*aggregator.Feed, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	delay := s.delay
	if s.delayOn != 0 && call != s.delayOn {
		delay = 0
	}
	s.mu.Unlock()

	if s.panicOn != 0 && call == s.panicOn {
		panic("scripted panic")
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.feeds(call), nil
}

func (s *scriptedCollector) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func feedWithTotal(total int) *aggregator.Feed {
	return &aggregator.Feed{
		Total:       total,
		Counts:      map[entities.Type]int{entities.TypeContact: total},
		Recent:      []entities.NotificationItem{},
		GeneratedAt: time.Now().UTC(),
	}
}

func TestPollerPublishesFirstCycleImmediately(t *testing.T) {
	collector := &scriptedCollector{feeds: func(int) *aggregator.Feed { return feedWithTotal(3) }}
	p, err := New(collector, WithInterval(time.Hour))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		snap := p.Snapshot()
		return snap != nil && snap.Total == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollerRefreshesOnInterval(t *testing.T) {
	collector := &scriptedCollector{feeds: feedWithCallTotal}
	p, err := New(collector, WithInterval(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		snap := p.Snapshot()
		return snap != nil && snap.Total >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func feedWithCallTotal(call int) *aggregator.Feed {
	return feedWithTotal(call)
}

func TestStopPreventsFurtherPublishes(t *testing.T) {
	collector := &scriptedCollector{feeds: feedWithCallTotal}
	p, err := New(collector, WithInterval(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return p.Snapshot() != nil }, time.Second, 5*time.Millisecond)

	p.Stop()
	snap := p.Snapshot()

	// A cycle launched just before Stop may still drain; give it a moment,
	// then confirm everything has gone quiet.
	time.Sleep(50 * time.Millisecond)
	callsAfterStop := collector.callCount()

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, snap, p.Snapshot(), "no publishes after Stop")
	require.Equal(t, callsAfterStop, collector.callCount(), "no cycles after Stop")
}

func TestStaleCycleIsSuperseded(t *testing.T) {
	// First cycle outlives two intervals; its result must never surface.
	collector := &scriptedCollector{feeds: feedWithCallTotal, delay: 150 * time.Millisecond, delayOn: 1}

	p, err := New(collector, WithInterval(50*time.Millisecond), WithCycleTimeout(time.Second))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	// Later generations finish after the slow first one was cancelled; the
	// published snapshot must come from a later call, never call 1.
	require.Eventually(t, func() bool {
		snap := p.Snapshot()
		return snap != nil && snap.Total > 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPollLoopSurvivesPanic(t *testing.T) {
	collector := &scriptedCollector{feeds: feedWithCallTotal, panicOn: 1}
	p, err := New(collector, WithInterval(20*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		snap := p.Snapshot()
		return snap != nil && snap.Total >= 2
	}, 2*time.Second, 10*time.Millisecond, "loop keeps polling after a panicking cycle")
}

func TestStartTwiceFails(t *testing.T) {
	collector := &scriptedCollector{feeds: feedWithCallTotal}
	p, err := New(collector, WithInterval(time.Hour))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()
	require.Error(t, p.Start(context.Background()))
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	feeds []*aggregator.Feed
}

func (r *recordingBroadcaster) BroadcastFeed(feed *aggregator.Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds = append(r.feeds, feed)
}

func (r *recordingBroadcaster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}

func TestPublishedSnapshotsAreBroadcast(t *testing.T) {
	collector := &scriptedCollector{feeds: feedWithCallTotal}
	sink := &recordingBroadcaster{}

	p, err := New(collector, WithInterval(20*time.Millisecond), WithBroadcaster(sink))
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool { return sink.count() >= 2 }, 2*time.Second, 10*time.Millisecond)
}
