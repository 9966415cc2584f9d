package circuit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(failures, successes int, timeout time.Duration) *Breaker {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return NewBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: failures,
		SuccessThreshold: successes,
		Timeout:          timeout,
		HalfOpenMaxCalls: 1,
	}, logger)
}

func TestCircuitBreakerBasicOperation(t *testing.T) {
	breaker := newTestBreaker(3, 2, 100*time.Millisecond)

	err := breaker.Execute(func() error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	breaker := newTestBreaker(3, 2, time.Minute)
	testErr := errors.New("test error")

	for i := 0; i < 3; i++ {
		err := breaker.Execute(func() error { return testErr })
		assert.ErrorIs(t, err, testErr)
	}
	require.Equal(t, StateOpen, breaker.State())

	called := false
	err := breaker.Execute(func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "function must not run while open")
	assert.Equal(t, int64(1), breaker.GetStats().Rejected)
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	breaker := newTestBreaker(2, 1, time.Minute)
	testErr := errors.New("boom")

	_ = breaker.Execute(func() error { return testErr })
	_ = breaker.Execute(func() error { return nil })
	_ = breaker.Execute(func() error { return testErr })

	assert.Equal(t, StateClosed, breaker.State())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	breaker := newTestBreaker(1, 2, 20*time.Millisecond)

	_ = breaker.Execute(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, breaker.State())

	time.Sleep(40 * time.Millisecond)

	require.NoError(t, breaker.Execute(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := newTestBreaker(1, 1, 20*time.Millisecond)

	_ = breaker.Execute(func() error { return errors.New("down") })
	time.Sleep(40 * time.Millisecond)

	_ = breaker.Execute(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, breaker.State())
}

func TestCircuitBreakerStateChangeCallback(t *testing.T) {
	breaker := newTestBreaker(1, 1, time.Minute)

	var transitions []State
	breaker.SetStateChangeCallback(func(from, to State) {
		transitions = append(transitions, to)
	})

	_ = breaker.Execute(func() error { return errors.New("down") })
	breaker.Reset()

	assert.Equal(t, []State{StateOpen, StateClosed}, transitions)
}

func TestCircuitBreakerDoesNotSerializeCalls(t *testing.T) {
	breaker := newTestBreaker(5, 1, time.Minute)

	var inFlight, peak int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_ = breaker.Execute(func() error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}()
	}

	close(start)
	wg.Wait()

	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
	assert.Equal(t, int64(4), breaker.GetStats().Successes)
}
