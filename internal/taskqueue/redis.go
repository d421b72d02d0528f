package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultListKey    = "codekb:tasks"
	defaultDeadKey    = "codekb:tasks:dead"
	defaultMaxRetries = 5
)

// envelope is the JSON record pushed onto the Redis list.
type envelope struct {
	URL      string          `json:"url"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// RedisQueue is a Queue backed by a Redis list (RPUSH/BLPOP).
type RedisQueue struct {
	Client  *redis.Client
	ListKey string
}

// NewRedisQueue returns a RedisQueue using the given client and list key
// (defaulting to "codekb:tasks" if empty).
func NewRedisQueue(client *redis.Client, listKey string) *RedisQueue {
	if listKey == "" {
		listKey = defaultListKey
	}
	return &RedisQueue{Client: client, ListKey: listKey}
}

// Enqueue implements Queue by RPUSH-ing a JSON envelope.
func (q *RedisQueue) Enqueue(ctx context.Context, url string, payload any) (string, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	env, err := json.Marshal(envelope{URL: url, Payload: payloadJSON})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	id, err := q.Client.RPush(ctx, q.ListKey, env).Result()
	if err != nil {
		return "", fmt.Errorf("rpush task: %w", err)
	}
	return fmt.Sprintf("redis-task-%d", id), nil
}

// RedisWorker blocks on BLPOP and delivers each task as an HTTP POST to its
// target URL, retrying failed deliveries up to MaxRetries before moving
// the task to the dead-letter list.
type RedisWorker struct {
	Client      *redis.Client
	ListKey     string
	DeadKey     string
	HTTPClient  *http.Client
	MaxRetries  int
	Logger      *slog.Logger
	BlockPeriod time.Duration
}

// NewRedisWorker returns a RedisWorker with a 30s delivery timeout and a
// 5-attempt retry budget.
func NewRedisWorker(client *redis.Client, listKey string, logger *slog.Logger) *RedisWorker {
	if listKey == "" {
		listKey = defaultListKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisWorker{
		Client:      client,
		ListKey:     listKey,
		DeadKey:     defaultDeadKey,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		MaxRetries:  defaultMaxRetries,
		Logger:      logger,
		BlockPeriod: 5 * time.Second,
	}
}

// Run blocks, delivering tasks until ctx is cancelled.
func (w *RedisWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := w.Client.BLPop(ctx, w.BlockPeriod, w.ListKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Logger.Error("blpop failed", "error", err)
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			w.Logger.Error("malformed task envelope, dropping", "error", err)
			continue
		}

		if err := w.deliver(ctx, env); err != nil {
			env.Attempts++
			w.Logger.Error("task delivery failed", "url", env.URL, "attempt", env.Attempts, "error", err)
			if env.Attempts >= w.MaxRetries {
				w.deadLetter(ctx, env)
				continue
			}
			requeued, _ := json.Marshal(env)
			w.Client.RPush(ctx, w.ListKey, requeued)
		}
	}
}

func (w *RedisWorker) deliver(ctx context.Context, env envelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.URL, bytes.NewReader(env.Payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver to %s: %w", env.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("handler at %s returned %d", env.URL, resp.StatusCode)
	}
	return nil
}

func (w *RedisWorker) deadLetter(ctx context.Context, env envelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := w.Client.RPush(ctx, w.DeadKey, raw).Err(); err != nil {
		w.Logger.Error("failed to dead-letter task", "url", env.URL, "error", err)
	}
}
