package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/cache"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
)

const depthInterval = 30 * time.Second

// Manager runs the process-wide queue and publishes its depth as the
// comptalyze_job_queue_depth gauge.
type Manager struct {
	queue *Queue

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager builds the shared manager on first use from the cache Redis
// client, with JOB_WORKERS workers.
func GetManager() *Manager {
	managerOnce.Do(func() {
		workers := env.GetEnvInt("JOB_WORKERS", 3)
		globalManager = &Manager{queue: NewQueue(cache.GetClient(), workers)}
	})
	return globalManager
}

func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start launches the workers and the depth exporter. Calling it on a running
// manager does nothing; a stopped manager may be started again.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.queue.Start()

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(depthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.exportDepth(ctx)
			}
		}
	}(m.done)
	log.Info("[JobQueue Manager] Started")
}

// Stop waits for the exporter and the workers to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Manager) exportDepth(ctx context.Context) {
	depth, err := m.queue.Depth(ctx)
	if err != nil {
		log.Debugf("[JobQueue Manager] queue depth: %v", err)
		return
	}
	for state, n := range map[string]int64{
		"pending":    depth.Pending,
		"processing": depth.Processing,
		"delayed":    depth.Delayed,
		"dead":       depth.Dead,
	} {
		metrics.QueueDepth.WithLabelValues(state).Set(float64(n))
	}
}
