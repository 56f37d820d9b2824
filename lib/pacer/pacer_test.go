package pacer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFoo = errors.New("foo")

type recorder struct {
	sleeps []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func newTestPacer(retries int) (*Pacer, *recorder) {
	r := &recorder{}
	p := New(RetriesOption(retries), RetrySleepOption(2*time.Second), SleepOption(r.sleep))
	return p, r
}

func TestNew(t *testing.T) {
	p := New()
	assert.Equal(t, 3, p.Retries())
	assert.Equal(t, 2*time.Second, p.retrySleep)
	assert.Nil(t, p.limiter)

	p = New(RetriesOption(0), MinSleepOption(10*time.Millisecond))
	assert.Equal(t, 1, p.Retries())
	assert.NotNil(t, p.limiter)
}

func TestCallSucceedsFirstTime(t *testing.T) {
	p, r := newTestPacer(5)
	calls := 0
	err := p.Call(context.Background(), func() (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, r.sleeps)
}

func TestCallRetriesThenSucceeds(t *testing.T) {
	p, r := newTestPacer(5)
	calls := 0
	err := p.Call(context.Background(), func() (bool, error) {
		calls++
		if calls < 3 {
			return true, errFoo
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, r.sleeps)
}

func TestCallBudgetExhausted(t *testing.T) {
	p, r := newTestPacer(4)
	calls := 0
	err := p.Call(context.Background(), func() (bool, error) {
		calls++
		return true, errFoo
	})
	assert.Equal(t, errFoo, err)
	assert.Equal(t, 4, calls)
	// no sleep after the final try
	assert.Len(t, r.sleeps, 3)
}

func TestCallStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, _ := newTestPacer(10)
	calls := 0
	err := p.Call(ctx, func() (bool, error) {
		calls++
		cancel()
		return true, errFoo
	})
	assert.Equal(t, errFoo, err)
	assert.Equal(t, 1, calls)
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, Sleep(ctx, time.Millisecond))
	cancel()
	assert.Equal(t, context.Canceled, Sleep(ctx, time.Hour))
	assert.Equal(t, context.Canceled, Sleep(ctx, 0))
}
