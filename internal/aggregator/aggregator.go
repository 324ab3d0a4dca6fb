package aggregator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kestrelrealty/backoffice/internal/backend"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/pkg/logger"
	"github.com/kestrelrealty/backoffice/pkg/metrics"
)

const (
	// DefaultRecentLimit is how many items are requested from each entity type per cycle.
	DefaultRecentLimit = 5
	// DefaultFeedLimit caps the merged timeline.
	DefaultFeedLimit = 10
)

// Feed is one aggregated snapshot across all entity types.
type Feed struct {
	Total       int                         `json:"total"`
	Counts      map[entities.Type]int       `json:"counts"`
	Recent      []entities.NotificationItem `json:"recent"`
	GeneratedAt time.Time                   `json:"generated_at"`
	// Degraded lists entity types whose backend calls failed this cycle.
	// Their items and counts are simply absent until the next poll.
	Degraded []entities.Type `json:"degraded,omitempty"`
}

// EntityClient is the slice of the backend client the aggregator needs.
type EntityClient interface {
	ListRecent(ctx context.Context, t entities.Type, status string, limit int) ([]entities.Record, error)
	Stats(ctx context.Context, t entities.Type) (*backend.Stats, error)
}

// Aggregator fan-outs to every entity type concurrently and merges the
// results into a single inbox view. One failing entity never fails the
// whole collection; it is reported in Feed.Degraded instead.
type Aggregator struct {
	client      EntityClient
	registry    *entities.Registry
	recentLimit int
	feedLimit   int
	log         *zap.Logger
}

// Option customises the Aggregator.
type Option func(*Aggregator)

// WithRecentLimit overrides the per-entity recent fetch size.
func WithRecentLimit(limit int) Option {
	return func(a *Aggregator) {
		if limit > 0 {
			a.recentLimit = limit
		}
	}
}

// WithFeedLimit overrides the merged timeline cap.
func WithFeedLimit(limit int) Option {
	return func(a *Aggregator) {
		if limit > 0 {
			a.feedLimit = limit
		}
	}
}

// New constructs an Aggregator over the supplied entity client and registry.
func New(client EntityClient, registry *entities.Registry, opts ...Option) (*Aggregator, error) {
	if client == nil {
		return nil, errors.New("aggregator: entity client is required")
	}
	if registry == nil {
		return nil, errors.New("aggregator: entity registry is required")
	}

	a := &Aggregator{
		client:      client,
		registry:    registry,
		recentLimit: DefaultRecentLimit,
		feedLimit:   DefaultFeedLimit,
		log:         logger.WithModule("aggregator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

type entityResult struct {
	typ     entities.Type
	items   []entities.NotificationItem
	count   int
	statsOK bool
	err     error
}

// Collect runs one full fan-out: stats and recent items for every registered
// entity type, fetched concurrently. The returned error is non-nil only when
// the context is cancelled; per-entity failures degrade the feed instead.
func (a *Aggregator) Collect(ctx context.Context) (*Feed, error) {
	started := time.Now()
	descriptors := a.registry.All()

	results := make([]entityResult, len(descriptors))
	var wg sync.WaitGroup
	for i, d := range descriptors {
		wg.Add(1)
		go func(i int, d entities.Descriptor) {
			defer wg.Done()
			results[i] = a.collectEntity(ctx, d)
		}(i, d)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		metrics.PollCycles.WithLabelValues("error").Inc()
		return nil, err
	}

	feed := &Feed{
		Counts:      make(map[entities.Type]int, len(descriptors)),
		GeneratedAt: time.Now().UTC(),
	}

	var merged []entities.NotificationItem
	var failures error
	for _, res := range results {
		if res.err != nil {
			failures = multierr.Append(failures, res.err)
			feed.Degraded = append(feed.Degraded, res.typ)
			continue
		}
		merged = append(merged, res.items...)
		if res.statsOK {
			feed.Counts[res.typ] = res.count
			feed.Total += res.count
		}
	}

	// Newest first; ties broken by composite key so the order is stable
	// across cycles.
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		}
		return merged[i].Key().String() < merged[j].Key().String()
	})
	if len(merged) > a.feedLimit {
		merged = merged[:a.feedLimit]
	}
	if merged == nil {
		merged = []entities.NotificationItem{}
	}
	feed.Recent = merged

	metrics.PollDuration.Observe(time.Since(started).Seconds())
	metrics.FeedTotal.Set(float64(feed.Total))
	switch {
	case failures == nil:
		metrics.PollCycles.WithLabelValues("ok").Inc()
	default:
		metrics.PollCycles.WithLabelValues("degraded").Inc()
		a.log.Warn("poll cycle degraded",
			zap.Int("failed_entities", len(feed.Degraded)),
			zap.Error(failures),
		)
	}

	return feed, nil
}

// collectEntity fetches stats and recent items for one type, concurrently.
// Either call failing marks the whole entity degraded for this cycle.
func (a *Aggregator) collectEntity(ctx context.Context, d entities.Descriptor) entityResult {
	res := entityResult{typ: d.Type}

	var (
		wg       sync.WaitGroup
		records  []entities.Record
		stats    *backend.Stats
		listErr  error
		statsErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		records, listErr = a.client.ListRecent(ctx, d.Type, entities.StatusNew, a.recentLimit)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = a.client.Stats(ctx, d.Type)
	}()
	wg.Wait()

	if listErr != nil {
		metrics.EntityCallFailures.WithLabelValues(string(d.Type), "recent").Inc()
		res.err = listErr
		return res
	}
	if statsErr != nil {
		metrics.EntityCallFailures.WithLabelValues(string(d.Type), "stats").Inc()
		res.err = statsErr
		return res
	}

	for _, rec := range records {
		item, err := d.Map(rec)
		if err != nil {
			// A malformed record is dropped, not fatal for the entity.
			a.log.Warn("skipping malformed record", zap.String("entity", string(d.Type)), zap.Error(err))
			continue
		}
		item.Route = d.DashboardURL(item.ID)
		res.items = append(res.items, item)
	}

	res.count = stats.Attention()
	res.statsOK = true
	return res
}
