package jobqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/cache"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
)

// withFreshManager points the shared manager at a throwaway Redis.
func withFreshManager(t *testing.T) {
	t.Helper()
	_, client := newTestRedis(t)
	cache.SetClient(client)
	reset := func() {
		if globalManager != nil {
			globalManager.Stop()
		}
		globalManager = nil
		managerOnce = sync.Once{}
	}
	reset()
	t.Cleanup(reset)
}

func TestGetManagerIsShared(t *testing.T) {
	withFreshManager(t)

	m := GetManager()
	require.NotNil(t, m)
	assert.Same(t, m, GetManager())
	assert.Same(t, m.queue, m.GetQueue())
	assert.False(t, m.IsRunning())
}

func TestManagerRestarts(t *testing.T) {
	withFreshManager(t)
	m := GetManager()

	for round := 0; round < 2; round++ {
		m.Start()
		m.Start()
		assert.True(t, m.IsRunning())
		m.Stop()
		m.Stop()
		assert.False(t, m.IsRunning())
	}
}

func TestExportDepthSetsGauges(t *testing.T) {
	withFreshManager(t)
	m := GetManager()
	ctx := context.Background()

	_, err := m.queue.EnqueueJob(ctx, JobTypeSendEmail, SendEmailJobPayload{To: "a@example.com"})
	require.NoError(t, err)
	_, err = m.queue.EnqueueJob(ctx, JobTypeSendEmail, SendEmailJobPayload{To: "b@example.com"})
	require.NoError(t, err)

	m.exportDepth(ctx)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("pending")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("dead")))
}
