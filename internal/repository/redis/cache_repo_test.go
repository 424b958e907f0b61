//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	apperrors "github.com/yourusername/buildle-api/internal/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepo, redis.UniversalClient) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{endpoint}})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := NewCacheRepo(client, "test:")
	require.NoError(t, err)
	return repo, client
}

func TestNewCacheRepo_NilClient(t *testing.T) {
	_, err := NewCacheRepo(nil, "x:")
	assert.Error(t, err)
}

func TestCacheRepo_JSONRoundTrip(t *testing.T) {
	repo, client := newCacheRepo(t)
	ctx := context.Background()

	type standing struct {
		PlayerID string `json:"player_id"`
		Wins     int    `json:"wins"`
	}
	require.NoError(t, repo.SetJSON(ctx, "standings:abc", []standing{{"p_1", 2}}, time.Minute))

	// ключ хранится с префиксом
	exists, err := client.Exists(ctx, "test:standings:abc").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)

	var got []standing
	require.NoError(t, repo.GetJSON(ctx, "standings:abc", &got))
	assert.Equal(t, []standing{{"p_1", 2}}, got)

	assert.ErrorIs(t, repo.GetJSON(ctx, "standings:other", &got), apperrors.ErrNotFound)
}

func TestCacheRepo_IncrWindow(t *testing.T) {
	repo, client := newCacheRepo(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := repo.IncrWindow(ctx, "rl:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	ttl, err := client.TTL(ctx, "test:rl:1.2.3.4").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
