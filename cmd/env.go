package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/adapter"
	"github.com/sells-group/profile-cli/internal/config"
	"github.com/sells-group/profile-cli/internal/orchestrator"
	"github.com/sells-group/profile-cli/internal/ratelimit"
	"github.com/sells-group/profile-cli/internal/resilience"
	"github.com/sells-group/profile-cli/internal/store"
	"github.com/sells-group/profile-cli/internal/tracker"
	anthropicpkg "github.com/sells-group/profile-cli/pkg/anthropic"
	"github.com/sells-group/profile-cli/pkg/google"
	"github.com/sells-group/profile-cli/pkg/jina"
	"github.com/sells-group/profile-cli/pkg/notion"
	"github.com/sells-group/profile-cli/pkg/perplexity"
)

// profileEnv holds the store, clients and orchestrator shared by commands.
type profileEnv struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Tracker      *tracker.Tracker
	Notion       notion.Client // nil without a notion token

	publisher *tracker.RedisPublisher
	stopFwd   context.CancelFunc
}

// Close releases resources held by the environment.
func (e *profileEnv) Close() {
	if e.stopFwd != nil {
		e.stopFwd()
	}
	if e.publisher != nil {
		_ = e.publisher.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newLimiter builds the per-provider pacing from config intervals.
func newLimiter(c config.ProvidersConfig) *ratelimit.Limiter {
	intervals := make(map[string]time.Duration, len(c.IntervalsMs))
	for name, ms := range c.IntervalsMs {
		intervals[name] = time.Duration(ms) * time.Millisecond
	}
	return ratelimit.New(intervals, time.Duration(c.DefaultIntervalMs)*time.Millisecond)
}

func secs(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// buildAdapters creates one adapter per stage whose provider has credentials.
// Stages without one are left out so a batch enabling them fails fast.
func buildAdapters(ctx context.Context, c *config.Config) ([]adapter.Adapter, error) {
	caller := adapter.NewCaller(
		newLimiter(c.Providers),
		resilience.NewBreakers(resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)),
		resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs),
	)
	searchTimeout := secs(c.Stages.SearchTimeout, 15)

	var adapters []adapter.Adapter

	gen, err := textGenerator(ctx, c)
	if err != nil {
		return nil, err
	}
	if gen != nil {
		adapters = append(adapters, adapter.NewBackground(gen, caller, secs(c.Stages.BackgroundTimeout, 60)))
	}

	if c.Google.Key != "" {
		var opts []google.Option
		if c.Google.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(c.Google.BaseURL))
		}
		gc := google.NewClient(c.Google.Key, c.Google.CX, opts...)
		excluded := c.Image.ExcludedHosts
		if len(excluded) == 0 {
			excluded = config.DefaultExcludedHosts
		}
		adapters = append(adapters,
			adapter.NewIdentity(gc, caller, searchTimeout),
			adapter.NewImage(gc, caller, searchTimeout, excluded),
		)
	} else {
		zap.L().Warn("google key not set, identity and image stages unavailable")
	}

	if c.Jina.Key != "" {
		var opts []jina.Option
		if c.Jina.SearchBaseURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
		}
		adapters = append(adapters, adapter.NewLink(jina.NewClient(c.Jina.Key, opts...), caller, searchTimeout))
	} else {
		zap.L().Warn("jina key not set, link stage unavailable")
	}

	return adapters, nil
}

// textGenerator returns the configured background provider, or nil when its
// credential is missing.
func textGenerator(ctx context.Context, c *config.Config) (adapter.TextGenerator, error) {
	switch c.Stages.BackgroundProvider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			break
		}
		return adapter.NewAnthropicGenerator(anthropicpkg.NewClient(c.Anthropic.Key), c.Anthropic.Model, c.Anthropic.MaxTokens), nil
	case "gemini":
		if c.Gemini.Key == "" {
			break
		}
		gen, err := adapter.NewGeminiGenerator(ctx, c.Gemini.Key, c.Gemini.Model)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		if c.Perplexity.Key == "" {
			break
		}
		pc := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		return adapter.NewPerplexityGenerator(pc), nil
	}
	zap.L().Warn("background provider has no key, background stage unavailable",
		zap.String("provider", c.Stages.BackgroundProvider))
	return nil, nil
}

// initEnv sets up the store, provider adapters, tracker and orchestrator.
// mode is passed to config validation. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*profileEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	env := &profileEnv{Store: st, Tracker: tracker.New()}

	if cfg.Notion.Token != "" {
		env.Notion = notion.NewClient(cfg.Notion.Token,
			notion.WithRateLimit(cfg.Notion.RateLimit),
			notion.WithRetry(cfg.Notion.MaxRetries),
		)
	}

	if cfg.Redis.Addr != "" {
		pub, err := tracker.NewRedisPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Channel)
		if err != nil {
			zap.L().Warn("redis publisher unavailable, stage events stay in process", zap.Error(err))
		} else {
			fwdCtx, cancel := context.WithCancel(ctx)
			env.publisher, env.stopFwd = pub, cancel
			go tracker.Forward(fwdCtx, env.Tracker, pub, 256)
			zap.L().Info("forwarding stage events to redis", zap.String("channel", pub.Channel()))
		}
	}

	var adapters []adapter.Adapter
	if mode == "enrich" || mode == "serve" {
		adapters, err = buildAdapters(ctx, cfg)
		if err != nil {
			env.Close()
			return nil, err
		}
	}

	env.Orchestrator = orchestrator.New(orchestrator.Options{
		Adapters:    adapters,
		Gateway:     st,
		Tracker:     env.Tracker,
		Concurrency: cfg.Batch.MaxConcurrentEntities,
	})
	return env, nil
}
