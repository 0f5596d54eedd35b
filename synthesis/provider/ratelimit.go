package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/MarsPain/chunk-wise-data-synthesis/synthesis"
)

// RateLimited paces requests to the wrapped model with a token bucket shared by every caller.
type RateLimited struct {
	Model   synthesis.Model
	Limiter *rate.Limiter
}

// NewRateLimited allows rps requests per second with the given burst. A non-positive rps
// disables pacing.
func NewRateLimited(m synthesis.Model, rps float64, burst int) *RateLimited {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{Model: m, Limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Generate(ctx context.Context, req synthesis.Request) (string, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return "", &synthesis.BackendError{Task: req.Task, Op: "rate limit wait", Err: err}
	}
	return r.Model.Generate(ctx, req)
}
