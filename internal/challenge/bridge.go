package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/resilience"
	"github.com/sells-group/lead-resolver/internal/scrape"
	"github.com/sells-group/lead-resolver/pkg/twocaptcha"
)

// Default solve timings, matching the solving service's guidance.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 180 * time.Second
)

// Solver obtains a token for a challenge. Implemented by Bridge; adapters
// depend on this interface so tests can fake it.
type Solver interface {
	SolveChallenge(ctx context.Context, ch *model.CaptchaChallenge) error
}

// Bridge submits challenges to the solving service and polls for tokens.
type Bridge struct {
	client       twocaptcha.Client
	pollInterval time.Duration
	timeout      time.Duration
	retry        resilience.RetryConfig
}

// NewBridge creates a Bridge. Zero durations fall back to the defaults.
func NewBridge(client twocaptcha.Client, pollInterval, timeout time.Duration) *Bridge {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("twocaptcha", "submit")
	return &Bridge{client: client, pollInterval: pollInterval, timeout: timeout, retry: retry}
}

// Solve submits (siteKey, pageURL) and polls every pollInterval until a
// token arrives or timeout elapses. Errors carry KindCaptchaTimeout or
// KindCaptchaSolveFailed.
func (b *Bridge) Solve(ctx context.Context, siteKey, pageURL string, pollInterval, timeout time.Duration) (string, error) {
	ch := &model.CaptchaChallenge{SiteKey: siteKey, PageURL: pageURL, Status: model.ChallengeDetected}
	if err := b.run(ctx, ch, pollInterval, timeout); err != nil {
		return "", err
	}
	return ch.Token, nil
}

// SolveChallenge solves ch in place with the bridge's default timings,
// advancing its status through submitted and polling to a terminal state.
func (b *Bridge) SolveChallenge(ctx context.Context, ch *model.CaptchaChallenge) error {
	return b.run(ctx, ch, b.pollInterval, b.timeout)
}

func (b *Bridge) run(ctx context.Context, ch *model.CaptchaChallenge, pollInterval, timeout time.Duration) error {
	if ch.SiteKey == "" {
		ch.Status = model.ChallengeFailed
		return model.WithKind(model.KindNoSitekeyFound, eris.Errorf("challenge: no sitekey on %s", ch.PageURL))
	}
	if pollInterval <= 0 {
		pollInterval = b.pollInterval
	}
	if timeout <= 0 {
		timeout = b.timeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	jobID, err := resilience.DoVal(ctx, b.retry, func(ctx context.Context) (string, error) {
		return b.client.Submit(ctx, twocaptcha.TurnstileRequest{SiteKey: ch.SiteKey, PageURL: ch.PageURL})
	})
	if err != nil {
		return b.fail(ctx, ch, eris.Wrap(err, "challenge: submit"))
	}
	ch.JobID = jobID
	ch.Status = model.ChallengeSubmitted

	zap.L().Info("challenge: submitted to solver",
		zap.String("job_id", jobID),
		zap.String("page_url", ch.PageURL),
	)

	// The poller's own timeout is a backstop; ctx carries the real deadline.
	token, err := twocaptcha.Poll(ctx, b.client, jobID,
		twocaptcha.WithPollInterval(pollInterval),
		twocaptcha.WithPollTimeout(timeout+time.Second),
		twocaptcha.WithPollHook(func(int) { ch.Status = model.ChallengePolling }),
	)
	if err != nil {
		return b.fail(ctx, ch, err)
	}

	ch.Token = token
	ch.Status = model.ChallengeSolved
	zap.L().Info("challenge: solved", zap.String("job_id", jobID))
	return nil
}

func (b *Bridge) fail(ctx context.Context, ch *model.CaptchaChallenge, err error) error {
	err = classify(ctx, err)
	if model.ErrorKindOf(err, model.KindCaptchaSolveFailed) == model.KindCaptchaTimeout {
		ch.Status = model.ChallengeTimedOut
	} else {
		ch.Status = model.ChallengeFailed
	}
	zap.L().Warn("challenge: solve failed",
		zap.String("job_id", ch.JobID),
		zap.String("status", string(ch.Status)),
		zap.String("error", scrape.RedactSecrets(err.Error())),
	)
	return err
}

// classify maps solver failures onto error kinds.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, twocaptcha.ErrTimeout) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.WithKind(model.KindCaptchaTimeout, err)
	}
	return model.WithKind(model.KindCaptchaSolveFailed, err)
}
