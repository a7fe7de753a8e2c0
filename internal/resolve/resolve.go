// Package resolve runs the provider cascade for one identity and folds
// the results into a MergedLead.
package resolve

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/model"
	"github.com/sells-group/lead-resolver/internal/provider"
)

const defaultTierTimeout = 90 * time.Second

// Config bounds each tier invocation.
type Config struct {
	// TierTimeout applies to any provider without an entry in Timeouts.
	TierTimeout time.Duration
	// Timeouts overrides TierTimeout per provider name.
	Timeouts map[string]time.Duration
}

func (c Config) timeoutFor(name string) time.Duration {
	if d, ok := c.Timeouts[name]; ok && d > 0 {
		return d
	}
	if c.TierTimeout > 0 {
		return c.TierTimeout
	}
	return defaultTierTimeout
}

// Resolver sequences the registered providers by tier.
type Resolver struct {
	cfg      Config
	registry *provider.Registry
}

// New creates a Resolver over registry.
func New(cfg Config, registry *provider.Registry) *Resolver {
	return &Resolver{cfg: cfg, registry: registry}
}

// Resolve runs the cascade for id. Providers run one at a time in tier
// order; the cascade stops at the first result carrying a phone. It never
// fails: a tier that errors, panics or times out contributes a failed
// result and the next tier runs.
func (r *Resolver) Resolve(ctx context.Context, id model.Identity, meta model.LeadMeta) model.MergedLead {
	lead := newLead(id, meta)
	log := zap.L().With(zap.String("source_id", meta.SourceID), zap.String("name", lead.Name))

	for _, p := range r.registry.Ordered() {
		if ctx.Err() != nil {
			log.Warn("resolve: context done, stopping cascade", zap.Error(ctx.Err()))
			break
		}

		start := time.Now()
		res := r.invoke(ctx, p, id)
		log.Info("resolve: tier finished",
			zap.String("provider", p.Name()),
			zap.Int("tier", p.Tier()),
			zap.Bool("success", res.Success),
			zap.String("reason", string(res.Reason)),
			zap.Int("phones", len(res.Phones)),
			zap.Duration("elapsed", time.Since(start)),
		)

		Merge(&lead, res)
		if res.HasPhone() {
			break
		}
	}

	if !lead.Notifiable() {
		log.Info("resolve: no phone resolved, lead will be stored without alert")
	}
	return lead
}

// invoke runs one provider under its own deadline, turning a panic into
// a failed result.
func (r *Resolver) invoke(ctx context.Context, p provider.Provider, id model.Identity) (res model.ProviderResult) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeoutFor(p.Name()))
	defer cancel()

	defer func() {
		if v := recover(); v != nil {
			zap.L().Error("resolve: provider panicked",
				zap.String("provider", p.Name()),
				zap.Any("panic", v),
				zap.ByteString("stack", debug.Stack()),
			)
			res = model.Failed(p.Name(), p.Tier(), model.KindPanic, fmt.Sprint(v))
		}
	}()

	res = p.Lookup(ctx, id)
	if res.ProviderID == "" {
		res.ProviderID = p.Name()
	}
	if res.Tier == 0 {
		res.Tier = p.Tier()
	}
	return res
}

func newLead(id model.Identity, meta model.LeadMeta) model.MergedLead {
	name := strings.TrimSpace(meta.DisplayName)
	if name == "" {
		name = id.FullName()
	}
	lead := model.MergedLead{
		SourceID:      meta.SourceID,
		Name:          name,
		City:          id.City,
		State:         id.State,
		LeadType:      meta.LeadType,
		Location:      meta.Location,
		MessageSentAt: meta.MessageSentAt,
	}
	lead.AppendNote(meta.Description)
	return lead
}

// Merge folds res into lead. Scalar fields keep the first non-empty value
// seen; each fact a provider reports adds one provenance note.
func Merge(lead *model.MergedLead, res model.ProviderResult) {
	lead.Results = append(lead.Results, res)
	if !res.Success {
		return
	}

	if lead.Phone == "" {
		lead.Phone = res.FirstPhone()
	}
	if lead.PhysicalAddress == "" {
		lead.PhysicalAddress = res.Address
	}
	if lead.Email == "" {
		lead.Email = res.Email
	}

	label := noteLabel(res.ProviderID)
	if nums := res.PhoneNumbers(); len(nums) > 0 {
		lead.AppendNote(fmt.Sprintf("%s Phones: %s", label, strings.Join(nums, ", ")))
	}
	if res.Address != "" {
		lead.AppendNote(fmt.Sprintf("%s Address: %s", label, res.Address))
	}
	if res.Email != "" {
		lead.AppendNote(fmt.Sprintf("%s Email: %s", label, res.Email))
	}
}

var labels = map[string]string{
	"familytree": "FTN",
	"melissa":    "Melissa",
	"textscan":   "ThatsThem",
}

func noteLabel(providerID string) string {
	if l, ok := labels[providerID]; ok {
		return l
	}
	return providerID
}
