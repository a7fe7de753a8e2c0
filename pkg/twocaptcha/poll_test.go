package twocaptcha

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	resultFunc func(ctx context.Context, id string) (*ResultResponse, error)
}

func (m *mockClient) Submit(context.Context, TurnstileRequest) (string, error) {
	return "job", nil
}

func (m *mockClient) Result(ctx context.Context, id string) (*ResultResponse, error) {
	return m.resultFunc(ctx, id)
}

func TestPoll_NotReadyThenSolved(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		resultFunc: func(_ context.Context, _ string) (*ResultResponse, error) {
			if calls.Add(1) <= 3 {
				return &ResultResponse{Ready: false}, nil
			}
			return &ResultResponse{Ready: true, Token: "T"}, nil
		},
	}

	token, err := Poll(context.Background(), mock, "job-1",
		WithPollInterval(5*time.Millisecond),
		WithPollTimeout(time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, "T", token)
	assert.Equal(t, int32(4), calls.Load())
}

func TestPoll_TransportErrorKeepsPolling(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		resultFunc: func(_ context.Context, _ string) (*ResultResponse, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("connection reset by peer")
			}
			return &ResultResponse{Ready: true, Token: "T2"}, nil
		},
	}

	token, err := Poll(context.Background(), mock, "job-1", WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
}

func TestPoll_APIErrorStops(t *testing.T) {
	var calls atomic.Int32
	mock := &mockClient{
		resultFunc: func(_ context.Context, _ string) (*ResultResponse, error) {
			calls.Add(1)
			return nil, &APIError{Code: "ERROR_CAPTCHA_UNSOLVABLE"}
		},
	}

	_, err := Poll(context.Background(), mock, "job-1", WithPollInterval(5*time.Millisecond))
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPoll_Timeout(t *testing.T) {
	mock := &mockClient{
		resultFunc: func(_ context.Context, _ string) (*ResultResponse, error) {
			return &ResultResponse{Ready: false}, nil
		},
	}

	_, err := Poll(context.Background(), mock, "job-1",
		WithPollInterval(5*time.Millisecond),
		WithPollTimeout(30*time.Millisecond),
	)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPoll_ContextCancelled(t *testing.T) {
	mock := &mockClient{
		resultFunc: func(_ context.Context, _ string) (*ResultResponse, error) {
			return &ResultResponse{Ready: false}, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Poll(ctx, mock, "job-1", WithPollInterval(time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPoll_HookCountsAttempts(t *testing.T) {
	var hooks []int
	mock := &mockClient{
		resultFunc: func(_ context.Context, _ string) (*ResultResponse, error) {
			return &ResultResponse{Ready: len(hooks) >= 2, Token: "x"}, nil
		},
	}

	_, err := Poll(context.Background(), mock, "job-1",
		WithPollInterval(5*time.Millisecond),
		WithPollHook(func(n int) { hooks = append(hooks, n) }),
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, hooks)
}
