// Package ratelimit provides keyed request limiters with an in-process
// token-bucket backend and a Redis fixed-window backend shared across
// replicas.
package ratelimit

import "context"

// Limiter decides whether one more request for key is allowed right now.
// An error means the limiter could not decide; callers choose whether to
// fail open or closed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
