package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// enqueueScript adds a job unless an active job with the same id exists.
// KEYS: schedule zset, jobs hash. ARGV: id, job json, fire time (ms).
var enqueueScript = redis.NewScript(`
	local raw = redis.call("HGET", KEYS[2], ARGV[1])
	if raw then
		local state = cjson.decode(raw)["state"]
		if state == "pending" or state == "delayed" or state == "running" then
			return raw
		end
	end
	redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
	redis.call("ZADD", KEYS[1], ARGV[3], ARGV[1])
	return ARGV[2]
`)

// claimScript returns expired claims to the schedule, then pops the
// earliest job due at ARGV[1] (ms) and leases it until ARGV[2] (ms).
// KEYS: schedule zset, jobs hash, processing zset.
var claimScript = redis.NewScript(`
	local expired = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", ARGV[1])
	for _, id in ipairs(expired) do
		redis.call("ZREM", KEYS[3], id)
		if redis.call("HEXISTS", KEYS[2], id) == 1 then
			redis.call("ZADD", KEYS[1], ARGV[1], id)
		end
	end
	local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
	if #ids == 0 then
		return false
	end
	redis.call("ZREM", KEYS[1], ids[1])
	redis.call("ZADD", KEYS[3], ARGV[2], ids[1])
	return redis.call("HGET", KEYS[2], ids[1])
`)

// DefaultLease is how long a claimed job may run before another worker
// may claim it again.
const DefaultLease = time.Hour

// RedisQueueConfig holds the Redis connection and key prefix.
type RedisQueueConfig struct {
	Addr     string
	Password string
	DB       int
	Name     string
	Policy   RetryPolicy
	// Lease bounds a claim; a job not settled by then is handed out again.
	Lease    time.Duration
	// Now defaults to time.Now.
	Now      func() time.Time
}

// RedisQueue stores jobs in Redis: a hash of job documents, a sorted set
// of waiting job ids scored by fire time and a sorted set of claimed job
// ids scored by lease deadline.
type RedisQueue struct {
	client *redis.Client
	prefix string
	policy RetryPolicy
	lease  time.Duration
	now    func() time.Time
	closed atomic.Bool
}

// NewRedisQueue connects and pings Redis.
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	name := cfg.Name
	if name == "" {
		name = "mythicstats-jobs"
	}
	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy
	}
	lease := cfg.Lease
	if lease <= 0 {
		lease = DefaultLease
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RedisQueue{client: client, prefix: name, policy: policy, lease: lease, now: now}, nil
}

func (q *RedisQueue) scheduleKey() string {
	return q.prefix + ":schedule"
}

func (q *RedisQueue) jobsKey() string {
	return q.prefix + ":jobs"
}

func (q *RedisQueue) processingKey() string {
	return q.prefix + ":processing"
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (q *RedisQueue) Enqueue(ctx context.Context, name string, payload Payload, opts EnqueueOptions) (*Job, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	job := newJob(name, payload, opts, q.now())
	doc, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	raw, err := enqueueScript.Run(ctx, q.client, []string{q.scheduleKey(), q.jobsKey()},
		job.ID, string(doc), score(job.RunAt)).Text()
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", name, err)
	}
	var stored Job
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &stored, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	now := q.now()
	keys := []string{q.scheduleKey(), q.jobsKey(), q.processingKey()}
	raw, err := claimScript.Run(ctx, q.client, keys, score(now), score(now.Add(q.lease))).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	job.State = StateRunning
	job.UpdatedAt = now
	doc, err := json.Marshal(&job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.client.HSet(ctx, q.jobsKey(), job.ID, doc).Err(); err != nil {
		return nil, fmt.Errorf("failed to mark job %s running: %w", job.ID, err)
	}
	return &job, nil
}

func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	job.State = StateCompleted
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.jobsKey(), job.ID)
		pipe.ZRem(ctx, q.scheduleKey(), job.ID)
		pipe.ZRem(ctx, q.processingKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Delay(ctx context.Context, job *Job, until time.Time) error {
	job.State = StateDelayed
	job.RunAt = until
	job.UpdatedAt = q.now()
	return q.save(ctx, job, true)
}

func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) error {
	job.failed(q.policy, cause, q.now())
	return q.save(ctx, job, job.State == StatePending)
}

// Get returns a job document, or nil when the queue no longer holds it.
func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.HGet(ctx, q.jobsKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.scheduleKey()).Result()
	return int(n), err
}

// Close stops handing out work and closes the connection pool.
func (q *RedisQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	return q.client.Close()
}

// save settles a claimed job: it writes the document, drops the claim and,
// when schedule is set, adds its fire time.
func (q *RedisQueue) save(ctx context.Context, job *Job, schedule bool) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.jobsKey(), job.ID, doc)
		pipe.ZRem(ctx, q.processingKey(), job.ID)
		if schedule {
			pipe.ZAdd(ctx, q.scheduleKey(), redis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}
