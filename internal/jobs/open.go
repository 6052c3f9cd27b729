package jobs

import (
	"context"
	"fmt"
	"time"
)

// QueueOptions selects a queue transport.
type QueueOptions struct {
	// Type is memory or redis.
	Type   string
	Redis  RedisQueueConfig
	Policy RetryPolicy
}

// OpenQueue builds the queue named by opts.Type.
func OpenQueue(ctx context.Context, opts QueueOptions) (Queue, error) {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = DefaultRetryPolicy
	}
	switch opts.Type {
	case "", "memory":
		return NewMemoryQueue(opts.Policy, time.Now), nil
	case "redis":
		cfg := opts.Redis
		cfg.Policy = opts.Policy
		return NewRedisQueue(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown queue type %q", opts.Type)
	}
}
