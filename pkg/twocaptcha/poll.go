package twocaptcha

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultPollTimeout  = 180 * time.Second
)

// ErrTimeout is returned when the poll window closes before a token arrives.
var ErrTimeout = errors.New("twocaptcha: timed out waiting for solution")

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	timeout  time.Duration
	onPoll   func(attempt int)
}

// WithPollInterval sets the fixed delay between result requests.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithPollTimeout bounds the whole poll.
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollHook is called before each result request.
func WithPollHook(fn func(attempt int)) PollOption {
	return func(c *pollConfig) {
		c.onPoll = fn
	}
}

// Poll waits one interval, then asks for the result of jobID every interval
// until a token arrives, the service reports an error, or the timeout
// elapses. A not-ready answer keeps polling; so does a transport failure,
// since the task keeps running server-side.
func Poll(ctx context.Context, client Client, jobID string, opts ...PollOption) (string, error) {
	cfg := pollConfig{interval: defaultPollInterval, timeout: defaultPollTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	deadline := time.NewTimer(cfg.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return "", eris.Wrapf(ctx.Err(), "twocaptcha: poll %s", jobID)
		case <-deadline.C:
			return "", ErrTimeout
		case <-ticker.C:
		}

		if cfg.onPoll != nil {
			cfg.onPoll(attempt)
		}

		res, err := client.Result(ctx, jobID)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return "", err
			}
			zap.L().Warn("twocaptcha: poll request failed, continuing",
				zap.String("job_id", jobID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		if res.Ready {
			if res.Token == "" {
				return "", &APIError{Code: "EMPTY_TOKEN"}
			}
			return res.Token, nil
		}
	}
}
