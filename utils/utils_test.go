package utils

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Circuit Breaker Tests

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testBreaker(settings Settings) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreakerWithSettings("test", settings)
	cb.now = clock.Now
	cb.toNewGeneration(clock.Now())
	return cb, clock
}

func fail(ctx context.Context, cb *CircuitBreaker) error {
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		return nil, errors.New("failure")
	})
	return err
}

func succeed(ctx context.Context, cb *CircuitBreaker) error {
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		return "ok", nil
	})
	return err
}

func TestCircuitBreaker_NewCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("pubnub")

	assert.Equal(t, "pubnub", cb.Name())
	assert.Equal(t, DefaultSettings(), cb.settings)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ExecuteSuccess(t *testing.T) {
	cb := NewCircuitBreaker("test")

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "success", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, Counts{Requests: 1, TotalSuccesses: 1, ConsecutiveSuccesses: 1}, cb.Counts())
}

func TestCircuitBreaker_ExecuteFailure(t *testing.T) {
	cb := NewCircuitBreaker("test")
	expectedError := errors.New("test error")

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return nil, expectedError
	})

	assert.Equal(t, expectedError, err)
	assert.Nil(t, result)
	assert.Equal(t, uint32(1), cb.Counts().TotalFailures)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
	assert.Equal(t, uint32(0), cb.Counts().Requests)
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	cb, clock := testBreaker(Settings{
		MinRequests:      5,
		FailureRatio:     0.6,
		HalfOpenRequests: 1,
		Interval:         time.Minute,
		Timeout:          10 * time.Second,
	})
	ctx := context.Background()

	require.NoError(t, succeed(ctx, cb))
	require.NoError(t, succeed(ctx, cb))
	for i := 0; i < 3; i++ {
		require.Error(t, fail(ctx, cb))
	}
	assert.Equal(t, StateOpen, cb.State(), "3 of 5 failed")

	assert.ErrorIs(t, succeed(ctx, cb), ErrOpenState)

	clock.Advance(11 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// A failed probe re-opens.
	require.Error(t, fail(ctx, cb))
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(11 * time.Second)
	require.NoError(t, succeed(ctx, cb))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, Counts{}, cb.Counts())
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb, clock := testBreaker(Settings{MinRequests: 1, FailureRatio: 0.5, Timeout: time.Second})
	ctx := context.Background()

	require.Error(t, fail(ctx, cb))
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go cb.Execute(ctx, func() (interface{}, error) {
		close(started)
		<-release
		return nil, nil
	})
	<-started

	assert.ErrorIs(t, succeed(ctx, cb), ErrTooManyRequests)
	close(release)
}

func TestCircuitBreaker_IntervalResetsCounts(t *testing.T) {
	cb, clock := testBreaker(Settings{MinRequests: 3, FailureRatio: 0.6, Interval: time.Minute, Timeout: time.Minute})
	ctx := context.Background()

	require.Error(t, fail(ctx, cb))
	require.Error(t, fail(ctx, cb))
	clock.Advance(2 * time.Minute)
	require.Error(t, fail(ctx, cb))

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().TotalFailures)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = succeed(ctx, cb)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint32(100), cb.Counts().TotalSuccesses)
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test")

	assert.Panics(t, func() {
		cb.Execute(context.Background(), func() (interface{}, error) {
			panic("test panic")
		})
	})
	assert.Equal(t, uint32(1), cb.Counts().TotalFailures)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

// Redis Client Tests

func TestRedisHealthCheck_Success(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")

	assert.NoError(t, RedisHealthCheck(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisHealthCheck_Failure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("connection refused"))

	err := RedisHealthCheck(db)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis health check failed")
}

// Random Tests

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(4)

	require.NoError(t, err)
	assert.Len(t, code, 8)
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestNoticeID(t *testing.T) {
	a, err := NoticeID()
	require.NoError(t, err)
	b, err := NoticeID()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "notice_"))
	assert.NotEqual(t, a, b)
}
