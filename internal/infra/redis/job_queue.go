package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/queue"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ queue.JobQueue = (*JobQueue)(nil)

// enqueueScript stores the job and schedules it unless the ID is already
// queued. KEYS: jobs, ready, failed. ARGV: id, payload, ready-at ms.
var enqueueScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
  return 0
end
redis.call('HDEL', KEYS[3], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// reserveScript returns expired leases to the ready set, then moves the
// oldest ready job into the active set. KEYS: ready, active, jobs.
// ARGV: now ms, lease expiry ms.
var reserveScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[2], id)
  redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
  return false
end
local id = ids[1]
redis.call('ZREM', KEYS[1], id)
local payload = redis.call('HGET', KEYS[3], id)
if not payload then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[2], id)
return payload
`)

// JobQueue implements queue.JobQueue on Redis sorted sets.
//
// Layout under oracle:<name>:
//
//	ready   ZSET  id -> ready-at (unix ms)
//	active  ZSET  id -> lease expiry (unix ms)
//	jobs    HASH  id -> job JSON
//	failed  HASH  id -> dead-lettered job JSON
type JobQueue struct {
	rdb        *redis.Client
	name       string
	visibility time.Duration
}

// NewJobQueue creates a Redis-backed job queue.
func NewJobQueue(client *Client, name string, visibility time.Duration) *JobQueue {
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	return &JobQueue{
		rdb:        client.rdb,
		name:       name,
		visibility: visibility,
	}
}

// Key helpers
func (q *JobQueue) key(part string) string {
	return fmt.Sprintf("oracle:%s:%s", q.name, part)
}

func (q *JobQueue) readyKey() string  { return q.key("ready") }
func (q *JobQueue) activeKey() string { return q.key("active") }
func (q *JobQueue) jobsKey() string   { return q.key("jobs") }
func (q *JobQueue) failedKey() string { return q.key("failed") }

func (q *JobQueue) Enqueue(ctx context.Context, job *domain.FulfillmentJob, delay time.Duration) (bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}

	readyAt := time.Now().Add(delay).UnixMilli()
	added, err := enqueueScript.Run(ctx, q.rdb,
		[]string{q.jobsKey(), q.readyKey(), q.failedKey()},
		job.ID, data, readyAt,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return added == 1, nil
}

func (q *JobQueue) Reserve(ctx context.Context) (*domain.FulfillmentJob, error) {
	now := time.Now()
	payload, err := reserveScript.Run(ctx, q.rdb,
		[]string{q.readyKey(), q.activeKey(), q.jobsKey()},
		now.UnixMilli(), now.Add(q.visibility).UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve job: %w", err)
	}

	var job domain.FulfillmentJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *JobQueue) Ack(ctx context.Context, job *domain.FulfillmentJob) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.activeKey(), job.ID)
		pipe.HDel(ctx, q.jobsKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	return nil
}

func (q *JobQueue) Retry(ctx context.Context, job *domain.FulfillmentJob, delay time.Duration) error {
	next := *job
	next.Attempt++
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.activeKey(), job.ID)
		pipe.HSet(ctx, q.jobsKey(), job.ID, data)
		pipe.ZAdd(ctx, q.readyKey(), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: job.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to retry job %s: %w", job.ID, err)
	}
	return nil
}

func (q *JobQueue) Fail(ctx context.Context, job *domain.FulfillmentJob, reason string) error {
	dead := *job
	dead.LastError = reason
	data, err := json.Marshal(&dead)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.activeKey(), job.ID)
		pipe.ZRem(ctx, q.readyKey(), job.ID)
		pipe.HDel(ctx, q.jobsKey(), job.ID)
		pipe.HSet(ctx, q.failedKey(), job.ID, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}
	return nil
}

func (q *JobQueue) Obliterate(ctx context.Context) error {
	err := q.rdb.Del(ctx, q.readyKey(), q.activeKey(), q.jobsKey(), q.failedKey()).Err()
	if err != nil {
		return fmt.Errorf("failed to obliterate queue: %w", err)
	}
	return nil
}

func (q *JobQueue) Stats(ctx context.Context) (queue.Stats, error) {
	var ready, active, failed *redis.IntCmd
	_, err := q.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		ready = pipe.ZCard(ctx, q.readyKey())
		active = pipe.ZCard(ctx, q.activeKey())
		failed = pipe.HLen(ctx, q.failedKey())
		return nil
	})
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return queue.Stats{
		Waiting: ready.Val(),
		Active:  active.Val(),
		Failed:  failed.Val(),
	}, nil
}
