package action

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echo(_ context.Context, params map[string]any, ec ExecContext) Result {
	return Success(map[string]any{"actor": ec.ActorID, "step": ec.StepID, "n": len(params)})
}

func TestInvokeRegistered(t *testing.T) {
	r := NewRegistry()
	r.Register(SubmitReference, echo)

	res := r.Invoke(context.Background(), SubmitReference, map[string]any{"a": 1}, ExecContext{ActorID: "u1", StepID: "s1"})
	require.True(t, res.OK)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "u1", res.Value["actor"])
	assert.Equal(t, "s1", res.Value["step"])
	assert.Equal(t, []string{SubmitReference}, r.Names())
}

func TestInvokeUnknownAction(t *testing.T) {
	res := NewRegistry().Invoke(context.Background(), "teleport", nil, ExecContext{})
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "unknown action: teleport", res.Error)
	assert.True(t, res.HasFlag(FlagValidationError))
}

func TestRateLimitPerActor(t *testing.T) {
	calls := 0
	r := NewRegistry(WithRateLimit(0, 2))
	r.Register(FlagAbuse, func(context.Context, map[string]any, ExecContext) Result {
		calls++
		return Success(nil)
	})
	ctx := context.Background()

	// 1. Burst of two per actor
	assert.True(t, r.Invoke(ctx, FlagAbuse, nil, ExecContext{ActorID: "a"}).OK)
	assert.True(t, r.Invoke(ctx, FlagAbuse, nil, ExecContext{ActorID: "a"}).OK)

	// 2. Third call is throttled without reaching the handler
	res := r.Invoke(ctx, FlagAbuse, nil, ExecContext{ActorID: "a"})
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "rate_limited", res.Error)
	assert.True(t, res.HasFlag(FlagRateLimited))
	assert.Equal(t, 2, calls)

	// 3. Other actors have their own bucket
	assert.True(t, r.Invoke(ctx, FlagAbuse, nil, ExecContext{ActorID: "b"}).OK)
}

func TestParams(t *testing.T) {
	p := map[string]any{"s": "x", "i": 5, "f": 2.5, "fs": "3.5", "b": true, "bs": "false", "empty": ""}

	s, ok := String(p, "s")
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	_, ok = String(p, "empty")
	assert.False(t, ok)
	s, ok = String(p, "i")
	assert.True(t, ok)
	assert.Equal(t, "5", s)

	f, ok := Float(p, "i")
	assert.True(t, ok)
	assert.Equal(t, 5.0, f)
	f, _ = Float(p, "fs")
	assert.Equal(t, 3.5, f)
	_, ok = Float(p, "missing")
	assert.False(t, ok)

	b, ok := Bool(p, "bs")
	assert.True(t, ok)
	assert.False(t, b)
}

func TestWithFlagsDoesNotAlias(t *testing.T) {
	base := Success(nil).WithFlags("x")
	a := base.WithFlags("a")
	b := base.WithFlags("b")
	assert.Equal(t, []string{"x", "a"}, a.Flags)
	assert.Equal(t, []string{"x", "b"}, b.Flags)
}
