// Package redisqueue implements the durable crawl frontier on Redis.
//
// Layout under the configured prefix:
//
//	<prefix>:job:<key>    pending marker holding the item payload (SET NX, with TTL)
//	<prefix>:wait         list of ready items (LPUSH / BLMOVE)
//	<prefix>:processing   list of items held by a worker, moved atomically from wait
//	<prefix>:leases       sorted set of processing payloads scored by lease expiry in unix millis
//	<prefix>:delayed      sorted set of retries scored by due time in unix millis
//	<prefix>:completed    counter
//	<prefix>:failed       counter
//
// An item stays in processing until Complete or Fail. When its lease expires, the next
// Dequeue on any client moves it back to wait, so a crashed consumer does not lose it.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// Defaults for Config.
const (
	DefaultPrefix       = "jobscout"
	DefaultKeyTTL       = 24 * time.Hour
	DefaultPollInterval = time.Second
	DefaultLeaseTTL     = 10 * time.Minute
)

// Config configures the Redis queue.
type Config struct {
	Addr         string
	Password     string
	DB           int
	Prefix       string
	KeyTTL       time.Duration
	PollInterval time.Duration
	// LeaseTTL bounds how long a dequeued item may stay unacknowledged before it is
	// redelivered. It should exceed the job timeout.
	LeaseTTL time.Duration
}

type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Queue is a crawler.Queue backed by Redis.
type Queue struct {
	client       *redis.Client
	ownsClient   bool
	policy       crawler.RetryPolicy
	clock        clock
	logger       *zap.Logger
	prefix       string
	keyTTL       time.Duration
	pollInterval time.Duration
	leaseTTL     time.Duration
	closed       atomic.Bool
}

var _ crawler.Queue = (*Queue)(nil)

// New connects to cfg.Addr and verifies the connection with PING.
func New(ctx context.Context, cfg Config, policy crawler.RetryPolicy, logger *zap.Logger) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	q := NewWithClient(client, cfg, policy, logger)
	q.ownsClient = true
	return q, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of the client.
func NewWithClient(client *redis.Client, cfg Config, policy crawler.RetryPolicy, logger *zap.Logger) *Queue {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = DefaultKeyTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if policy == nil {
		policy = crawler.NewExponentialRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		client:       client,
		policy:       policy,
		clock:        systemClock{},
		logger:       logger,
		prefix:       cfg.Prefix,
		keyTTL:       cfg.KeyTTL,
		pollInterval: cfg.PollInterval,
		leaseTTL:     cfg.LeaseTTL,
	}
}

func (q *Queue) jobKey(key string) string { return q.prefix + ":job:" + key }
func (q *Queue) waitKey() string          { return q.prefix + ":wait" }
func (q *Queue) delayedKey() string       { return q.prefix + ":delayed" }
func (q *Queue) processingKey() string    { return q.prefix + ":processing" }
func (q *Queue) leasesKey() string        { return q.prefix + ":leases" }
func (q *Queue) completedKey() string     { return q.prefix + ":completed" }
func (q *Queue) failedKey() string        { return q.prefix + ":failed" }

// Enqueue claims the item's key and pushes it onto the wait list. It reports false when
// the key is already pending.
func (q *Queue) Enqueue(ctx context.Context, item crawler.QueueItem) (bool, error) {
	if q.closed.Load() {
		return false, crawler.ErrQueueClosed
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("marshal queue item: %w", err)
	}
	added, err := q.client.SetNX(ctx, q.jobKey(item.Key), payload, q.keyTTL).Result()
	if err != nil {
		return false, q.wrap(ctx, "enqueue", err)
	}
	if !added {
		return false, nil
	}
	if err := q.client.LPush(ctx, q.waitKey(), payload).Err(); err != nil {
		q.client.Del(context.WithoutCancel(ctx), q.jobKey(item.Key))
		return false, q.wrap(ctx, "enqueue", err)
	}
	return true, nil
}

// Dequeue blocks until an item is ready, moving it to the processing list under a lease.
// Due retries and expired leases go back to wait between polls.
func (q *Queue) Dequeue(ctx context.Context) (crawler.QueueItem, error) {
	for {
		if q.closed.Load() {
			return crawler.QueueItem{}, crawler.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return crawler.QueueItem{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		if err := q.promoteDue(ctx); err != nil {
			return crawler.QueueItem{}, q.wrap(ctx, "dequeue", err)
		}
		if err := q.reclaimExpired(ctx); err != nil {
			return crawler.QueueItem{}, q.wrap(ctx, "dequeue", err)
		}

		payload, err := q.client.BLMove(ctx, q.waitKey(), q.processingKey(), "RIGHT", "LEFT", q.pollInterval).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return crawler.QueueItem{}, q.wrap(ctx, "dequeue", err)
		}
		var item crawler.QueueItem
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			q.logger.Warn("dropping undecodable queue payload", zap.Error(err))
			q.client.LRem(context.WithoutCancel(ctx), q.processingKey(), 1, payload)
			continue
		}
		if err := q.client.ZAdd(ctx, q.leasesKey(), redis.Z{Score: q.leaseExpiry(), Member: payload}).Err(); err != nil {
			return crawler.QueueItem{}, q.wrap(ctx, "dequeue", err)
		}
		return item, nil
	}
}

// promoteDue moves retries whose due time has passed back onto the wait list.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(q.clock.Now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, payload := range due {
		// ZREM decides which poller owns the promotion.
		removed, err := q.client.ZRem(ctx, q.delayedKey(), payload).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.waitKey(), payload).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) leaseExpiry() float64 {
	return float64(q.clock.Now().Add(q.leaseTTL).UnixMilli())
}

// reclaimExpired moves processing items whose lease has expired back onto the wait list.
// Items without a lease, left by a consumer that stopped between the move and the lease
// write, get one so they are reclaimed on a later pass.
func (q *Queue) reclaimExpired(ctx context.Context) error {
	held, err := q.client.LRange(ctx, q.processingKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	for _, payload := range held {
		if err := q.client.ZAddNX(ctx, q.leasesKey(), redis.Z{Score: q.leaseExpiry(), Member: payload}).Err(); err != nil {
			return err
		}
	}

	now := strconv.FormatInt(q.clock.Now().UnixMilli(), 10)
	expired, err := q.client.ZRangeByScore(ctx, q.leasesKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, payload := range expired {
		// ZREM decides which poller owns the reclaim.
		removed, err := q.client.ZRem(ctx, q.leasesKey(), payload).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		moved, err := q.client.LRem(ctx, q.processingKey(), 1, payload).Result()
		if err != nil {
			return err
		}
		if moved == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.waitKey(), payload).Err(); err != nil {
			return err
		}
		q.logger.Warn("redelivering item with expired lease")
	}
	return nil
}

// release drops the item from the processing list and its lease. Dequeue hands out the
// decoded payload, so re-encoding the item yields the same bytes.
func (q *Queue) release(ctx context.Context, pipe redis.Pipeliner, payload []byte) {
	pipe.LRem(ctx, q.processingKey(), 1, payload)
	pipe.ZRem(ctx, q.leasesKey(), payload)
}

// Complete releases the item's key and counts it.
func (q *Queue) Complete(ctx context.Context, item crawler.QueueItem) error {
	held, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		q.release(ctx, pipe, held)
		pipe.Del(ctx, q.jobKey(item.Key))
		pipe.Incr(ctx, q.completedKey())
		return nil
	})
	if err != nil {
		return q.wrap(ctx, "complete", err)
	}
	return nil
}

// Fail schedules a delayed retry when the policy allows, otherwise releases the key and
// counts a failure.
func (q *Queue) Fail(ctx context.Context, item crawler.QueueItem, cause error) (bool, error) {
	held, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("marshal queue item: %w", err)
	}
	retry := q.policy.ShouldRetry(cause, item.Attempt)
	var payload []byte
	var due float64
	if retry {
		next := item
		next.Attempt++
		payload, err = json.Marshal(next)
		if err != nil {
			return false, fmt.Errorf("marshal queue item: %w", err)
		}
		due = float64(q.clock.Now().Add(q.policy.Backoff(item.Attempt)).UnixMilli())
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		q.release(ctx, pipe, held)
		if retry {
			pipe.Set(ctx, q.jobKey(item.Key), payload, q.keyTTL)
			pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: due, Member: payload})
			return nil
		}
		pipe.Del(ctx, q.jobKey(item.Key))
		pipe.Incr(ctx, q.failedKey())
		return nil
	})
	if err != nil {
		return false, q.wrap(ctx, "fail", err)
	}
	return retry, nil
}

// Stats reads every counter in one round trip.
func (q *Queue) Stats(ctx context.Context) (crawler.QueueStats, error) {
	var (
		active    *redis.IntCmd
		waiting   *redis.IntCmd
		delayed   *redis.IntCmd
		completed *redis.StringCmd
		failed    *redis.StringCmd
	)
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		active = pipe.LLen(ctx, q.processingKey())
		waiting = pipe.LLen(ctx, q.waitKey())
		delayed = pipe.ZCard(ctx, q.delayedKey())
		completed = pipe.Get(ctx, q.completedKey())
		failed = pipe.Get(ctx, q.failedKey())
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return crawler.QueueStats{}, q.wrap(ctx, "stats", err)
	}
	return crawler.QueueStats{
		Active:    active.Val(),
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Completed: counter(completed),
		Failed:    counter(failed),
	}, nil
}

func counter(cmd *redis.StringCmd) int64 {
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}

// Close stops further dequeues and closes the client when the queue created it.
func (q *Queue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	if q.ownsClient {
		return q.client.Close()
	}
	return nil
}

func (q *Queue) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s canceled: %w", op, ctxErr)
	}
	if errors.Is(err, redis.ErrClosed) {
		return crawler.ErrQueueClosed
	}
	return fmt.Errorf("redis %s: %w", op, err)
}
