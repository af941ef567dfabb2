package bookkeeping_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/bookkeeping"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestLogUsageMeter(t *testing.T) {
	meter := bookkeeping.NewLogUsageMeter(slog.Default())

	require.NoError(t, meter.Increment(context.Background(), "app_1", bookkeeping.CounterAutomationRuns, 1))
}

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisUsageMeter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	url := startRedis(ctx, t)

	meter, err := bookkeeping.NewRedisUsageMeterFromURL(ctx, url, slog.Default())
	require.NoError(t, err)

	defer meter.Close()

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, meter.Increment(ctx, "app_1", bookkeeping.CounterAutomationRuns, 1))
		}()
	}

	wg.Wait()

	require.NoError(t, meter.Increment(ctx, "app_2", bookkeeping.CounterAutomationRuns, 3))

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	defer client.Close()

	usage, err := client.HGetAll(ctx, "usage:app_1").Result()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{bookkeeping.CounterAutomationRuns: "10"}, usage)

	runs, err := client.HGet(ctx, "usage:app_2", bookkeeping.CounterAutomationRuns).Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(3), runs)
}

func TestNewRedisUsageMeterFromURL_InvalidURL(t *testing.T) {
	_, err := bookkeeping.NewRedisUsageMeterFromURL(context.Background(), "not a url", slog.Default())
	require.Error(t, err)
}
