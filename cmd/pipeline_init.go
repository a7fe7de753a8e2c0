package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-resolver/internal/alert"
	"github.com/sells-group/lead-resolver/internal/browser"
	"github.com/sells-group/lead-resolver/internal/challenge"
	"github.com/sells-group/lead-resolver/internal/config"
	"github.com/sells-group/lead-resolver/internal/judge"
	"github.com/sells-group/lead-resolver/internal/lead"
	"github.com/sells-group/lead-resolver/internal/pipeline"
	"github.com/sells-group/lead-resolver/internal/provider"
	"github.com/sells-group/lead-resolver/internal/provider/familytree"
	"github.com/sells-group/lead-resolver/internal/provider/melissa"
	"github.com/sells-group/lead-resolver/internal/provider/textscan"
	"github.com/sells-group/lead-resolver/internal/resolve"
	"github.com/sells-group/lead-resolver/internal/scrape"
	anthropicpkg "github.com/sells-group/lead-resolver/pkg/anthropic"
	"github.com/sells-group/lead-resolver/pkg/twocaptcha"
)

// pipelineEnv holds the store and the pipeline needed by the
// resolve, batch and serve commands.
type pipelineEnv struct {
	Store    lead.Store
	Resolver *resolve.Resolver
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens and migrates the store,
// and builds the provider cascade. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	resolver, err := initResolver()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var notifier alert.Notifier
	if cfg.Alert.URL != "" {
		notifier = alert.NewDispatcher(cfg.Alert.URL, config.Seconds(cfg.Alert.TimeoutSecs))
	} else {
		zap.L().Warn("alert.url not set, resolved leads will not be alerted")
	}

	return &pipelineEnv{
		Store:    st,
		Resolver: resolver,
		Pipeline: pipeline.New(resolver, st, notifier),
	}, nil
}

func initStore(ctx context.Context) (lead.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leads.db"
		}
		return lead.NewSQLite(dsn, cfg.Store.Table)
	case "postgres":
		return lead.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Table, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initResolver registers every enabled tier and wraps them in a Resolver.
func initResolver() (*resolve.Resolver, error) {
	registry, err := initRegistry()
	if err != nil {
		return nil, err
	}
	zap.L().Info("providers registered", zap.Strings("providers", registry.List()))

	return resolve.New(resolve.Config{
		TierTimeout: 90 * time.Second,
		Timeouts: map[string]time.Duration{
			familytree.Name: config.Seconds(cfg.FamilyTree.TimeoutSecs),
			melissa.Name:    config.Seconds(cfg.Melissa.TimeoutSecs),
			textscan.Name:   config.Seconds(cfg.TextScan.TimeoutSecs),
		},
	}, registry), nil
}

func initRegistry() (*provider.Registry, error) {
	registry := provider.NewRegistry()

	ftn, err := initFamilyTree()
	if err != nil {
		return nil, err
	}
	registry.Register(ftn)

	if cfg.Melissa.Enabled {
		m, err := initMelissa()
		if err != nil {
			return nil, err
		}
		registry.Register(m)
	}

	if cfg.TextScan.Enabled {
		ts, err := initTextScan()
		if err != nil {
			return nil, err
		}
		registry.Register(ts)
	}

	return registry, nil
}

// initFamilyTree builds tier 1 with its split transport: results pages go
// through the unblocker, record pages through a residential session, and
// both fall back to a direct connection. All of them share one cookie jar
// so a cleared challenge carries over between search and detail.
func initFamilyTree() (*familytree.Adapter, error) {
	ft := cfg.FamilyTree

	direct, err := newFetcher("direct", config.Seconds(ft.DetailTimeoutSecs))
	if err != nil {
		return nil, err
	}
	search := newChain(direct, "unblocker", ft.Unblocker, config.Seconds(ft.SearchTimeoutSecs))
	detail := newChain(direct, "residential", ft.Residential, config.Seconds(ft.DetailTimeoutSecs))

	var solver challenge.Solver
	if cfg.TwoCaptcha.Key != "" {
		client := twocaptcha.NewClient(cfg.TwoCaptcha.Key, twocaptcha.WithBaseURL(cfg.TwoCaptcha.BaseURL))
		solver = challenge.NewBridge(client, config.Millis(cfg.TwoCaptcha.PollIntervalMs), config.Millis(cfg.TwoCaptcha.TimeoutMs))
	} else {
		zap.L().Warn("twocaptcha.key not set, challenges will fail fast")
	}

	return familytree.New(familytree.Config{
		BaseURL:       ft.BaseURL,
		DefaultState:  cfg.Pipeline.DefaultState,
		SearchTimeout: config.Seconds(ft.SearchTimeoutSecs),
		DetailTimeout: config.Seconds(ft.DetailTimeoutSecs),
		DebugDir:      ft.DebugDir,
	}, search, detail, solver), nil
}

// newFetcher builds a paced fetcher with the configured user agent.
func newFetcher(name string, timeout time.Duration, opts ...scrape.FetcherOption) (*scrape.HTTPFetcher, error) {
	opts = append([]scrape.FetcherOption{
		scrape.WithTimeout(timeout),
		scrape.WithRateLimit(cfg.Pipeline.RequestRPS),
		scrape.WithUserAgent(cfg.Pipeline.UserAgent),
	}, opts...)
	return scrape.NewHTTPFetcher(name, opts...)
}

// newChain puts a proxied fetcher in front of direct, sharing its cookie
// jar. A proxy that is not configured or fails to build is left out.
func newChain(direct *scrape.HTTPFetcher, name string, proxy scrape.ProxyConfig, timeout time.Duration) *scrape.Chain {
	chain := scrape.NewChain(direct)
	if proxy.Enabled() {
		proxied, err := newFetcher(name, timeout, scrape.WithProxy(proxy), scrape.WithCookieJar(direct.Jar()))
		if err != nil {
			zap.L().Warn("proxy fetcher disabled",
				zap.String("fetcher", name),
				zap.String("proxy", proxy.String()),
				zap.Error(err),
			)
		} else {
			chain = scrape.NewChain(proxied, direct)
		}
	}
	zap.L().Debug("fetch chain ready", zap.String("chain", chain.Name()), zap.Int("fetchers", chain.Len()))
	return chain
}

func initMelissa() (*melissa.Adapter, error) {
	m := cfg.Melissa
	fetcher, err := newFetcher(melissa.Name, config.Seconds(m.ResultsTimeoutSecs))
	if err != nil {
		return nil, err
	}

	j, err := initJudge()
	if err != nil {
		return nil, err
	}

	return melissa.New(melissa.Config{
		SigninURL:        m.SigninURL,
		SearchURL:        m.SearchURL,
		Username:         m.Username,
		Password:         m.Password,
		Timeout:          config.Seconds(m.TimeoutSecs),
		ResultsTimeout:   config.Seconds(m.ResultsTimeoutSecs),
		MaxDistanceMiles: m.MaxDistanceMiles,
	}, browser.NewStaticPage(fetcher), j), nil
}

func initJudge() (*judge.Judge, error) {
	jc := cfg.Judge
	var completer judge.Completer
	switch jc.Provider {
	case "anthropic":
		completer = judge.NewAnthropicCompleter(anthropicpkg.NewClient(jc.AnthropicKey, jc.BaseURL), jc.AnthropicModel)
	case "openai":
		completer = judge.NewOpenAICompleter(jc.OpenAIKey, jc.BaseURL, jc.OpenAIModel)
	default:
		return nil, eris.Errorf("unsupported judge provider: %s", jc.Provider)
	}
	return judge.New(completer, config.Seconds(jc.TimeoutSecs)), nil
}

func initTextScan() (*textscan.Adapter, error) {
	ts := cfg.TextScan
	direct, err := newFetcher(textscan.Name, config.Seconds(ts.TimeoutSecs))
	if err != nil {
		return nil, err
	}

	fetchers := []scrape.Fetcher{direct}
	if cfg.FamilyTree.Unblocker.Enabled() {
		unblocked, err := newFetcher(textscan.Name+"-unblocker", config.Seconds(ts.TimeoutSecs), scrape.WithProxy(cfg.FamilyTree.Unblocker))
		if err == nil {
			fetchers = append(fetchers, unblocked)
		}
	}

	return textscan.New(textscan.Config{
		BaseURL:      ts.BaseURL,
		DefaultState: cfg.Pipeline.DefaultState,
		Timeout:      config.Seconds(ts.TimeoutSecs),
	}, fetchers...), nil
}
