package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/metrics"
)

// Redis layout. Pending and processing are lists of job ids, delayed is a
// sorted set scored by the unix millisecond at which a retry becomes due.
const (
	keyPrefix     = "comptalyze:jobs:"
	JobKeyPrefix  = keyPrefix + "job:"
	PendingKey    = keyPrefix + "pending"
	ProcessingKey = keyPrefix + "processing"
	DelayedKey    = keyPrefix + "delayed"
	DeadKey       = keyPrefix + "dead"
	StatsKey      = keyPrefix + "stats"
)

const (
	DefaultMaxRetries = 3
	DefaultJobTimeout = 2 * time.Minute
	JobTTL            = 24 * time.Hour
	DeadJobTTL        = 7 * 24 * time.Hour
	// dead list is capped, older ids fall off
	maxDeadJobs = 1000
)

// HandlerFunc executes one job. A returned error schedules a retry.
type HandlerFunc func(ctx context.Context, job *Job) error

// Depth is a snapshot of the queue lists.
type Depth struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// Queue runs emails and invoice archives on Redis-backed workers.
type Queue struct {
	client   *redis.Client
	workers  int
	handlers map[JobType]HandlerFunc

	retryBackoff time.Duration
	pollTimeout  time.Duration
	jobTimeout   time.Duration
	stuckAfter   time.Duration
	tick         time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:       client,
		workers:      workers,
		handlers:     make(map[JobType]HandlerFunc),
		retryBackoff: time.Minute,
		pollTimeout:  time.Second,
		jobTimeout:   DefaultJobTimeout,
		stuckAfter:   10 * time.Minute,
		tick:         5 * time.Second,
		stopCh:       make(chan struct{}),
	}
}

// Handle registers the handler of a job type. Register before Start.
func (q *Queue) Handle(jobType JobType, h HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) handler(jobType JobType) (HandlerFunc, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Start launches the workers and the maintenance loop. Calling it twice is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.stopCh = make(chan struct{})
	q.running = true
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i, q.stopCh)
	}
	q.wg.Add(1)
	go q.maintain(q.stopCh)
}

// Stop waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(id int, stop <-chan struct{}) {
	defer q.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		default:
		}

		job, err := q.claim(ctx)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			log.Errorf("[JobQueue] Worker %d: claim failed: %v", id, err)
			select {
			case <-stop:
				return
			case <-time.After(time.Second):
			}
			continue
		}
		q.run(ctx, job)
	}
}

// maintain promotes due retries and recovers jobs orphaned by a crashed worker.
func (q *Queue) maintain(stop <-chan struct{}) {
	defer q.wg.Done()
	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()
	lastSweep := time.Now()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			ctx := context.Background()
			if n, err := q.PromoteDue(ctx, now); err != nil {
				log.Errorf("[JobQueue] Promoting retries failed: %v", err)
			} else if n > 0 {
				log.Debugf("[JobQueue] %d retries due", n)
			}
			if now.Sub(lastSweep) < time.Minute {
				continue
			}
			lastSweep = now
			if n, err := q.RecoverStuck(ctx, q.stuckAfter); err != nil {
				log.Errorf("[JobQueue] Sweeper error: %v", err)
			} else if n > 0 {
				log.Warnf("[JobQueue] Sweeper recovered %d stuck jobs", n)
			}
		}
	}
}

// EnqueueJob stores the job and pushes it on the pending list. A nil payload
// is allowed for jobs that need no arguments.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload any) (*Job, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", jobType, err)
		}
		raw = b
	}
	now := time.Now()
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    raw,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, PendingKey, job.ID)
	pipe.HIncrBy(ctx, StatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	log.Debugf("[JobQueue] Enqueued %s job %s", job.Type, job.ID)
	return job, nil
}

// claim moves the oldest pending id to the processing list and loads the job.
func (q *Queue) claim(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, PendingKey, ProcessingKey, "RIGHT", "LEFT", q.pollTimeout).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.client.LRem(ctx, ProcessingKey, 1, id)
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return job, nil
}

// ProcessNext runs the next pending job synchronously. It reports false when
// the queue stayed empty for the poll timeout.
func (q *Queue) ProcessNext(ctx context.Context) (bool, error) {
	job, err := q.claim(ctx)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	q.run(ctx, job)
	return true, nil
}

func (q *Queue) run(ctx context.Context, job *Job) {
	job.start(time.Now())
	q.save(ctx, job, JobTTL)

	if err := q.execute(ctx, job); err != nil {
		if job.fail(time.Now(), err) {
			q.scheduleRetry(ctx, job)
		} else {
			q.bury(ctx, job)
		}
		return
	}

	job.complete(time.Now())
	metrics.Jobs.WithLabelValues(string(job.Type), "completed").Inc()
	pipe := q.client.TxPipeline()
	pipe.Del(ctx, JobKeyPrefix+job.ID)
	pipe.HIncrBy(ctx, StatsKey, string(JobStatusCompleted), 1)
	pipe.LRem(ctx, ProcessingKey, 1, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[JobQueue] Cleanup of job %s failed: %v", job.ID, err)
	}
}

// execute calls the handler under the job timeout and turns panics into errors.
func (q *Queue) execute(ctx context.Context, job *Job) (err error) {
	h, ok := q.handler(job.Type)
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	ctx, cancel := context.WithTimeout(ctx, q.jobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) scheduleRetry(ctx context.Context, job *Job) {
	now := time.Now()
	job.delay(now)
	due := now.Add(q.retryBackoff * time.Duration(job.RetryCount))
	log.Warnf("[JobQueue] %s job %s failed (%s), retry %d/%d at %s",
		job.Type, job.ID, job.ErrorMsg, job.RetryCount, job.MaxRetries, due.Format(time.RFC3339))
	metrics.Jobs.WithLabelValues(string(job.Type), "retry").Inc()

	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.ZAdd(ctx, DelayedKey, redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
	pipe.LRem(ctx, ProcessingKey, 1, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[JobQueue] Scheduling retry of %s failed: %v", job.ID, err)
	}
}

// bury keeps a permanently failed job for inspection on the dead list.
func (q *Queue) bury(ctx context.Context, job *Job) {
	log.Errorf("[JobQueue] %s job %s gave up after %d attempts: %s", job.Type, job.ID, job.RetryCount, job.ErrorMsg)
	metrics.Jobs.WithLabelValues(string(job.Type), "failed").Inc()

	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, DeadJobTTL)
	pipe.LPush(ctx, DeadKey, job.ID)
	pipe.LTrim(ctx, DeadKey, 0, maxDeadJobs-1)
	pipe.HIncrBy(ctx, StatsKey, string(JobStatusFailed), 1)
	pipe.LRem(ctx, ProcessingKey, 1, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[JobQueue] Burying job %s failed: %v", job.ID, err)
	}
}

// PromoteDue moves retries due at now back to the pending list. ZRem guards
// against two instances promoting the same id.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, DelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, DelayedKey, id).Result()
		if err != nil {
			return promoted, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, PendingKey, id).Err(); err != nil {
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// RecoverStuck moves jobs processing for longer than maxAge back to pending.
func (q *Queue) RecoverStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, ProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			// expired, unreadable or already settled
			q.client.LRem(ctx, ProcessingKey, 1, id)
			continue
		}
		started := job.UpdatedAt
		if job.ProcessedAt != nil {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}
		log.Warnf("[JobQueue] Recovering %s job %s stuck for %s", job.Type, job.ID, now.Sub(started).Round(time.Second))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered by sweeper"
		job.UpdatedAt = now
		q.save(ctx, job, JobTTL)
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, ProcessingKey, 1, id)
		pipe.RPush(ctx, PendingKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *Queue) save(ctx context.Context, job *Job, ttl time.Duration) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, ttl).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to save job %s: %v", job.ID, err)
	}
}

// GetJob loads a job. Completed jobs are deleted, so only pending, retrying
// and failed jobs are found.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+jobID).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// DeadJobs returns up to limit permanently failed jobs, newest first.
func (q *Queue) DeadJobs(ctx context.Context, limit int64) ([]*Job, error) {
	ids, err := q.client.LRange(ctx, DeadKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJobStats returns the cumulative counters per status.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, StatsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, v := range raw {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

// Depth reads the length of every list in one round trip.
func (q *Queue) Depth(ctx context.Context) (Depth, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, PendingKey)
	processing := pipe.LLen(ctx, ProcessingKey)
	delayed := pipe.ZCard(ctx, DelayedKey)
	dead := pipe.LLen(ctx, DeadKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Depth{}, err
	}
	return Depth{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}
