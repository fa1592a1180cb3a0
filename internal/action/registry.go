package action

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// #region registry
// Registry maps action names to handlers and optionally throttles each
// actor with a token bucket.
type Registry struct {
	mu       sync.Mutex
	handlers map[string]Handler
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// Option configures a Registry.
type Option func(*Registry)

// WithRateLimit enables per-actor throttling. A zero rate with a positive
// burst allows exactly burst calls per actor.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Registry) {
		r.limit = rate.Limit(perSecond)
		r.burst = burst
		r.limiters = make(map[string]*rate.Limiter)
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds name to h, replacing any previous handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names lists registered actions in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named handler. Unknown names fail with 400 and throttled
// actors with 429 "rate_limited"; neither reaches a handler.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any, ec ExecContext) Result {
	h, ok := r.Lookup(name)
	if !ok {
		return Failure(http.StatusBadRequest, "unknown action: %s", name).WithFlags(FlagValidationError)
	}
	if !r.allow(ec.ActorID) {
		return Failure(http.StatusTooManyRequests, FlagRateLimited).WithFlags(FlagRateLimited)
	}
	return h(ctx, params, ec)
}

func (r *Registry) allow(actorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limiters == nil {
		return true
	}
	l, ok := r.limiters[actorID]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[actorID] = l
	}
	return l.Allow()
}

// #endregion registry
