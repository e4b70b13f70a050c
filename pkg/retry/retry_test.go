package retry

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errRetriable    = errors.New("retriable")
	errNonRetriable = errors.New("non-retriable")
)

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(d time.Duration) {
	s.delays = append(s.delays, d)
}

func TestRetry_NoError(t *testing.T) {
	attempts, err := Retry(func() error { return nil }, Limit(3))
	require.NoError(t, err)
	assert.EqualValues(t, 1, attempts)
}

func TestRetry_Limit(t *testing.T) {
	var calls int
	attempts, err := Retry(func() error {
		calls++
		return errRetriable
	}, Limit(3))

	assert.Equal(t, errRetriable, errors.Cause(err))
	assert.EqualValues(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetry_RetriableErrors(t *testing.T) {
	var calls int
	_, err := Retry(func() error {
		calls++
		if calls == 1 {
			return errRetriable
		}
		return errNonRetriable
	}, RetriableErrors(errRetriable))

	assert.Equal(t, errNonRetriable, errors.Cause(err))
	assert.Equal(t, 2, calls)
}

func TestRetry_NonRetriableErrors(t *testing.T) {
	var calls int
	_, err := Retry(func() error {
		calls++
		return errNonRetriable
	}, Limit(5), NonRetriableErrors(errNonRetriable))

	assert.Equal(t, errNonRetriable, errors.Cause(err))
	assert.Equal(t, 1, calls)
}

func TestRetry_BackoffIsCapped(t *testing.T) {
	recorder := &recordingSleeper{}
	sleeperImpl = recorder
	defer func() { sleeperImpl = &realSleeper{} }()

	_, err := Retry(func() error { return errRetriable }, Limit(5), Backoff(func(attempts uint) time.Duration {
		return time.Duration(attempts) * time.Second
	}, 2*time.Second))

	assert.Equal(t, errRetriable, errors.Cause(err))
	require.Len(t, recorder.delays, 4)
	assert.Equal(t, time.Second, recorder.delays[0])
	assert.Equal(t, 2*time.Second, recorder.delays[1])
	assert.Equal(t, 2*time.Second, recorder.delays[2])
	assert.Equal(t, 2*time.Second, recorder.delays[3])
}

func TestLoop_Terminates(t *testing.T) {
	var calls int
	err := Loop(func() error {
		calls++
		if calls < 3 {
			return nil
		}
		return errNonRetriable
	}, NonRetriableErrors(errNonRetriable))

	assert.Equal(t, errNonRetriable, errors.Cause(err))
	assert.Equal(t, 3, calls)
}
