// Package taskqueue abstracts at-least-once delivery of index/delete jobs
// to the system's own task handler URLs.
package taskqueue

import "context"

// Queue enqueues a JSON payload for delivery as an HTTP POST to url,
// returning an opaque task id. Delivery is at-least-once: callers (the
// indexer) must be idempotent under redelivery.
type Queue interface {
	Enqueue(ctx context.Context, url string, payload any) (taskID string, err error)
}
