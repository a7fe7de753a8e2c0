// Package pipeline sequences one lead through resolution, persistence and
// alerting. Storage failures propagate; alert failures never do.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/alert"
	"github.com/sells-group/lead-resolver/internal/lead"
	"github.com/sells-group/lead-resolver/internal/model"
)

// Resolver runs the provider cascade for one identity.
type Resolver interface {
	Resolve(ctx context.Context, id model.Identity, meta model.LeadMeta) model.MergedLead
}

// Pipeline wires the resolver, the lead store and the alert notifier.
type Pipeline struct {
	resolver Resolver
	store    lead.Store
	notifier alert.Notifier
}

// New creates a Pipeline. A nil notifier disables alerts.
func New(resolver Resolver, store lead.Store, notifier alert.Notifier) *Pipeline {
	return &Pipeline{resolver: resolver, store: store, notifier: notifier}
}

// Result is the outcome of one Run.
type Result struct {
	Lead    model.MergedLead `json:"lead"`
	Alerted bool             `json:"alerted"`
	Alert   *alert.Outcome   `json:"alert,omitempty"`
	Elapsed time.Duration    `json:"elapsed"`
}

// Run resolves id, stores the merged lead and, when a phone was found,
// sends the alert. The alert is only attempted after the lead is stored.
func (p *Pipeline) Run(ctx context.Context, id model.Identity, meta model.LeadMeta) (*Result, error) {
	if strings.TrimSpace(meta.SourceID) == "" {
		return nil, eris.New("pipeline: source id is required")
	}
	start := time.Now()
	log := zap.L().With(zap.String("source_id", meta.SourceID))
	log.Info("pipeline: resolving lead", zap.String("name", id.FullName()), zap.String("city", id.City))

	merged := p.resolver.Resolve(ctx, id, meta)

	if err := p.store.Upsert(ctx, merged); err != nil {
		return nil, eris.Wrapf(err, "pipeline: store lead %s", meta.SourceID)
	}

	res := &Result{Lead: merged}
	if merged.Notifiable() && p.notifier != nil {
		outcome := p.notifier.Notify(ctx, merged)
		res.Alert = &outcome
		res.Alerted = outcome.OK
		if outcome.Err != nil {
			log.Warn("pipeline: alert failed", zap.Error(outcome.Err))
		}
	}

	res.Elapsed = time.Since(start)
	log.Info("pipeline: lead finished",
		zap.Bool("phone", merged.Notifiable()),
		zap.Bool("alerted", res.Alerted),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

// BatchSummary counts what a batch run did.
type BatchSummary struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
	Alerted  int `json:"alerted"`
	Failed   int `json:"failed"`
}

// RunBatch re-resolves up to limit stored leads that still lack a phone,
// one at a time. A failing lead is counted and the batch moves on; only a
// listing failure or a cancelled context stops it.
func (p *Pipeline) RunBatch(ctx context.Context, limit int) (BatchSummary, error) {
	var summary BatchSummary

	rows, err := p.store.ListWithoutPhone(ctx, limit)
	if err != nil {
		return summary, eris.Wrap(err, "pipeline: list leads without phone")
	}
	zap.L().Info("pipeline: batch starting", zap.Int("leads", len(rows)))

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "pipeline: batch cancelled")
		}
		summary.Total++

		res, err := p.Run(ctx, row.Identity(), row.Meta())
		if err != nil {
			summary.Failed++
			zap.L().Error("pipeline: batch lead failed", zap.String("source_id", row.SourceID), zap.Error(err))
			continue
		}
		if res.Lead.Notifiable() {
			summary.Resolved++
		}
		if res.Alerted {
			summary.Alerted++
		}
	}

	zap.L().Info("pipeline: batch complete",
		zap.Int("total", summary.Total),
		zap.Int("resolved", summary.Resolved),
		zap.Int("alerted", summary.Alerted),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
