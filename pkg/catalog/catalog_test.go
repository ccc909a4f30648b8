package catalog_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0rca-network/conductor/pkg/catalog"
	"github.com/0rca-network/conductor/pkg/models"
	"github.com/0rca-network/conductor/pkg/persistence"
	"github.com/0rca-network/conductor/pkg/persistence/memory"
	"github.com/0rca-network/conductor/pkg/testutil"
)

func seededStore(t *testing.T) *memory.Persistence {
	t.Helper()

	store := memory.NewPersistence()
	ctx := context.Background()

	require.NoError(t, store.AgentRepository().SaveAgent(ctx, testutil.CreateTestAgent()))
	require.NoError(t, store.AgentRepository().SaveAgent(ctx, testutil.CreateTestAgent(
		testutil.WithAgentID("translator"),
	)))
	require.NoError(t, store.AgentRepository().SaveAgent(ctx, testutil.CreateTestAgent(
		testutil.WithAgentID("retired"),
		testutil.WithAgentStatus(models.AgentStatusInactive),
	)))

	return store
}

func TestReader_Active(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	reader := catalog.NewReader(store.AgentRepository(), slog.Default())

	agents, err := reader.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "summarizer", agents[0].ID)
	assert.Equal(t, "translator", agents[1].ID)
}

func TestReader_AgentByID(t *testing.T) {
	t.Parallel()

	store := seededStore(t)
	reader := catalog.NewReader(store.AgentRepository(), slog.Default())

	agent, err := reader.AgentByID(context.Background(), "retired")
	require.NoError(t, err)
	assert.False(t, agent.Active())

	_, err = reader.AgentByID(context.Background(), "missing")
	assert.True(t, persistence.IsNotFound(err))
}

func TestReader_CacheDegradesToStore(t *testing.T) {
	t.Parallel()

	// The cache client points at an unreachable address; reads must degrade
	// to the store without surfacing the cache failure.
	unreachable := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})

	store := seededStore(t)
	reader := catalog.NewReader(store.AgentRepository(), slog.Default(),
		catalog.WithCache(unreachable, time.Second))

	agents, err := reader.Active(context.Background())
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}
