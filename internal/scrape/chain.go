// Package scrape fetches provider pages through an ordered chain of
// transports (unblocker proxy, residential proxy, direct) and turns the
// markup into text.
package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries fetchers in priority order, returning the first success.
type Chain struct {
	fetchers []Fetcher
}

// NewChain creates a Chain. Fetchers are tried in order; the first
// successful result is returned.
func NewChain(fetchers ...Fetcher) *Chain {
	return &Chain{fetchers: fetchers}
}

// Name lists the chain members.
func (c *Chain) Name() string {
	name := "chain"
	for i, f := range c.fetchers {
		if i == 0 {
			name += "("
		} else {
			name += ","
		}
		name += f.Name()
	}
	if len(c.fetchers) > 0 {
		name += ")"
	}
	return name
}

// Len returns the number of fetchers.
func (c *Chain) Len() int { return len(c.fetchers) }

// Fetch tries each fetcher in order. It stops early when ctx is done.
func (c *Chain) Fetch(ctx context.Context, req Request) (*Result, error) {
	var lastErr error
	for _, f := range c.fetchers {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}
		result, err := f.Fetch(ctx, req)
		if err == nil && result != nil {
			return result, nil
		}
		if err != nil {
			zap.L().Debug("scrape: fetcher failed, trying next",
				zap.String("fetcher", f.Name()),
				zap.String("url", req.URL),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all fetchers failed")
	}
	return nil, eris.Errorf("scrape: no fetcher for url: %s", req.URL)
}
