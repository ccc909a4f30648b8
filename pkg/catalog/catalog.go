// Package catalog reads the active-agent snapshot used for planning, with an
// optional Redis read-through cache in front of the store.
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const (
	cacheKey   = "conductor:catalog:active"
	defaultTTL = 30 * time.Second
)

// Reader serves active-agent catalog snapshots. A nil redis client disables
// caching; cache errors always degrade to the store read.
type Reader struct {
	agents persistence.AgentRepository
	cache  redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithCache fronts the store with a Redis read-through cache.
func WithCache(client redis.UniversalClient, ttl time.Duration) Option {
	return func(r *Reader) {
		r.cache = client

		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewReader creates a catalog reader over the agent repository.
func NewReader(agents persistence.AgentRepository, logger *slog.Logger, opts ...Option) *Reader {
	reader := &Reader{
		agents: agents,
		ttl:    defaultTTL,
		logger: logger.With("module", "catalog"),
	}

	for _, opt := range opts {
		opt(reader)
	}

	return reader
}

// Active returns the currently dispatchable agents.
func (r *Reader) Active(ctx context.Context) ([]*models.AgentMetadata, error) {
	if cached := r.readCache(ctx); cached != nil {
		return cached, nil
	}

	agents, err := r.agents.ActiveAgents(ctx)
	if err != nil {
		return nil, err
	}

	r.writeCache(ctx, agents)

	return agents, nil
}

// AgentByID returns one catalog entry, bypassing the snapshot cache.
func (r *Reader) AgentByID(ctx context.Context, id string) (*models.AgentMetadata, error) {
	return r.agents.AgentByID(ctx, id)
}

func (r *Reader) readCache(ctx context.Context) []*models.AgentMetadata {
	if r.cache == nil {
		return nil
	}

	payload, err := r.cache.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.WarnContext(ctx, "Catalog cache read failed", "error", err)
		}

		return nil
	}

	var agents []*models.AgentMetadata

	err = json.Unmarshal(payload, &agents)
	if err != nil {
		r.logger.WarnContext(ctx, "Discarding malformed catalog cache entry", "error", err)

		return nil
	}

	return agents
}

func (r *Reader) writeCache(ctx context.Context, agents []*models.AgentMetadata) {
	if r.cache == nil {
		return
	}

	payload, err := json.Marshal(agents)
	if err != nil {
		return
	}

	err = r.cache.Set(ctx, cacheKey, payload, r.ttl).Err()
	if err != nil {
		r.logger.WarnContext(ctx, "Catalog cache write failed", "error", err)
	}
}
