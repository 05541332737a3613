// Package queue carries the worker wake signal over Redis. The database is
// the authoritative job store; the Redis list only tells a sleeping worker
// that something new landed, so a lost notification costs at most one poll
// interval.
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// keyJobWake is the Redis list key carrying wake tokens.
const keyJobWake = "worker:job_wake"

// Notifier signals job creation to the worker drain loop.
type Notifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewNotifier creates a Redis-backed job notifier.
func NewNotifier(client *redis.Client, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{client: client, logger: logger}
}

// NotifyJobCreated pushes a wake token. The token carries no payload; the
// worker reads pending jobs from the database.
func (n *Notifier) NotifyJobCreated(ctx context.Context) error {
	if err := n.client.RPush(ctx, keyJobWake, time.Now().UnixNano()).Err(); err != nil {
		return err
	}
	n.logger.Debug("job wake notification sent")
	return nil
}

// WaitForJob blocks until a wake token arrives or the timeout elapses.
// Returns true when woken by a token, false on timeout. The caller should
// drain the database either way.
func (n *Notifier) WaitForJob(ctx context.Context, timeout time.Duration) (bool, error) {
	result, err := n.client.BLPop(ctx, timeout, keyJobWake).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	// Collapse a burst of tokens into one drain pass.
	if err := n.client.Del(ctx, keyJobWake).Err(); err != nil {
		n.logger.Warn("wake token cleanup failed", zap.Error(err))
	}
	return len(result) == 2, nil
}
