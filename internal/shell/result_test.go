package shell

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestResultNeverNil(t *testing.T) {
	res := NotExecutedResult()
	assert.NotNil(t, res.Out())
	assert.NotNil(t, res.Err())
	assert.Equal(t, NotExecuted, res.Code())
	assert.False(t, res.IsSuccess())
	assert.False(t, res.Executed())
}

func TestResultIsImmutable(t *testing.T) {
	out := []string{"a"}
	res := NewResult(out, nil, 0)
	out[0] = "changed"
	got := res.Out()
	got[0] = "also changed"

	assert.Equal(t, []string{"a"}, res.Out())
	assert.True(t, res.IsSuccess())
}

func TestFutureResolvesOnce(t *testing.T) {
	fut, resolve := NewPromise()
	resolve(NewResult([]string{"first"}, nil, 0), nil)
	resolve(NewResult([]string{"second"}, nil, 1), nil)

	res, err := fut.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, res.Out())
}

func TestFutureWaitHonorsContext(t *testing.T) {
	fut, _ := NewPromise()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := fut.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, NotExecuted, res.Code())
}

func TestFutureThenUsesExecutor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var dispatched atomic.Int32
	exec := ExecutorFunc(func(fn func()) {
		dispatched.Add(1)
		fn()
	})

	fut, resolve := NewPromise()
	got := make(chan int, 1)
	fut.Then(exec, func(r Result, err error) {
		assert.NoError(t, err)
		got <- r.Code()
	})
	resolve(NewResult(nil, nil, 3), nil)

	select {
	case code := <-got:
		assert.Equal(t, 3, code)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
	assert.Equal(t, int32(1), dispatched.Load())
}

func TestEscapedString(t *testing.T) {
	assert.Equal(t, `'plain'`, EscapedString("plain"))
	assert.Equal(t, `'it'\''s'`, EscapedString("it's"))
	assert.Equal(t, `'$HOME'`, EscapedString("$HOME"))
}

func TestIsValidOutput(t *testing.T) {
	assert.False(t, IsValidOutput(nil))
	assert.False(t, IsValidOutput([]string{"", "  "}))
	assert.True(t, IsValidOutput([]string{"", "x"}))
}
