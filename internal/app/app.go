// Package app is the composition root: it builds every component in
// dependency order from a loaded config.Config and runs the gateway
// until ctx is cancelled.
//
// Grounded on wisbric-nightowl's internal/app/app.go Run shape: a single
// package-level function that builds logger-adjacent infrastructure,
// storage, domain managers and the HTTP surface inline with defer-based
// teardown, rather than a struct with New/Run methods.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/mymmrac/telego"
	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"

	"github.com/raidcore/raidcore/internal/apierr"
	"github.com/raidcore/raidcore/internal/bus"
	"github.com/raidcore/raidcore/internal/config"
	"github.com/raidcore/raidcore/internal/gatewayhttp"
	"github.com/raidcore/raidcore/internal/identity"
	"github.com/raidcore/raidcore/internal/ingress"
	discordingress "github.com/raidcore/raidcore/internal/ingress/discord"
	slackingress "github.com/raidcore/raidcore/internal/ingress/slack"
	telegramingress "github.com/raidcore/raidcore/internal/ingress/telegram"
	"github.com/raidcore/raidcore/internal/memory"
	"github.com/raidcore/raidcore/internal/modelengine"
	"github.com/raidcore/raidcore/internal/prompt"
	"github.com/raidcore/raidcore/internal/raid"
	"github.com/raidcore/raidcore/internal/raid/verify"
	"github.com/raidcore/raidcore/internal/session"
	"github.com/raidcore/raidcore/internal/storerouter"
	"github.com/raidcore/raidcore/internal/telemetry"
)

// Run constructs every component from cfg, starts background loops (the
// session sweep, the blocklist file watcher), and blocks serving the
// HTTP/WS surface until ctx is cancelled. Teardown runs in reverse
// dependency order via defer.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return apierr.ErrConfigInvalid.Wrap(err)
	}

	registry := telemetry.NewRegistry()

	router, backendKind, err := buildRouter(ctx, cfg)
	if err != nil {
		return apierr.ErrPoolUnreachable.Wrap(err)
	}
	defer router.Close()

	eventBus := bus.New()

	memStore := memory.New(router, memory.Backend(backendKind), memory.NoopEmbedder{Dim: cfg.Memory.EmbeddingDim}, logger)
	identResolver := identity.New(router, identity.Backend(backendKind), logger)

	sessionCfg := session.Config{Retention: cfg.SessionRetention()}
	if cfg.Sessions.SweepIntervalMS >= 1000 {
		sessionCfg.SweepCronExpr = fmt.Sprintf("@every %ds", cfg.Sessions.SweepIntervalMS/1000)
	}
	sessionMgr := session.New(router, session.Backend(backendKind), eventBus, sessionCfg, logger)

	verifyRegistry, browser, launch, err := buildVerifyRegistry(cfg)
	if err != nil {
		return fmt.Errorf("app: verify registry: %w", err)
	}
	defer func() {
		if browser != nil {
			_ = browser.Close()
		}
		if launch != nil {
			launch.Cleanup()
		}
	}()

	raidCoord := raid.New(router, raid.Backend(backendKind), eventBus, verifyRegistry, raid.Config{}, logger)

	blocklist := ingress.NewBlocklist()
	stopBlocklist, err := wireBlocklist(cfg, blocklist, logger)
	if err != nil {
		return fmt.Errorf("app: blocklist: %w", err)
	}
	if stopBlocklist != nil {
		defer stopBlocklist()
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	}

	rateLimiter := buildRateLimiter(cfg, rdb)
	dedup := ingress.NewDeduplicator(rdb, cfg.DedupTTL(), 0)
	pipeline := ingress.NewPipeline(ingress.Config{
		RateLimitPerMin:            cfg.Ingress.RateLimitPerMin,
		DedupTTL:                   cfg.DedupTTL(),
		RateLimitEventsToBlocklist: cfg.Ingress.RateLimitEventsToBlocklist,
	}, blocklist, rateLimiter, dedup, logger)

	adapters, err := buildAdapters(cfg)
	if err != nil {
		return fmt.Errorf("app: ingress adapters: %w", err)
	}

	composer := prompt.NewComposer(prompt.Params{
		Temperature:      cfg.Prompt.Temperature,
		TopP:             cfg.Prompt.TopP,
		FrequencyPenalty: cfg.Prompt.FrequencyPenalty,
		PresencePenalty:  cfg.Prompt.PresencePenalty,
	}, cfg.Prompt.HistoryLimit)

	engine := buildModelEngine(cfg)

	dispatcher := prompt.NewDispatcher(composer, engine, memStore, eventBus, cfg.PromptTimeout(), prompt.HumanizationConfig{
		TypoRate:          cfg.Prompt.TypoRate,
		ContradictionRate: cfg.Prompt.ContradictionRate,
	}, 0, logger)

	server := gatewayhttp.NewServer(cfg.Gateway, sessionMgr, raidCoord, memStore, identResolver, pipeline, adapters, dispatcher, eventBus, registry, logger)

	stopSweep := sessionMgr.StartSweep(ctx)
	defer stopSweep()

	return server.Start(ctx)
}

func buildRouter(ctx context.Context, cfg *config.Config) (*storerouter.Router, int, error) {
	routerCfg := storerouter.Config{
		TxPoolSize:   cfg.Database.PoolTxSize,
		SessPoolSize: cfg.Database.PoolSessSize,
	}

	if cfg.Database.IsStandalone() {
		router, err := storerouter.NewStandalone(ctx, cfg.Database.StandaloneDir, routerCfg)
		if err != nil {
			return nil, 0, fmt.Errorf("standalone router: %w", err)
		}
		if err := storerouter.MigrateStandalone(ctx, router); err != nil {
			return nil, 0, fmt.Errorf("standalone migrate: %w", err)
		}
		return router, backendSQLite, nil
	}

	if err := storerouter.MigratePostgres(cfg.Database.TxDSN); err != nil {
		return nil, 0, fmt.Errorf("postgres migrate: %w", err)
	}
	router, err := storerouter.NewPostgres(ctx, cfg.Database.TxDSN, routerCfg)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres router: %w", err)
	}
	return router, backendPostgres, nil
}

// backendPostgres/backendSQLite mirror the iota values every domain
// package independently defines on its own Backend type (memory,
// identity, session, raid); the numeric values line up because each
// package orders BackendPostgres before BackendSQLite, matching the
// teacher's convention of a locally-scoped enum per package rather than
// one shared type.
const (
	backendPostgres = iota
	backendSQLite
)

func buildVerifyRegistry(cfg *config.Config) (*verify.Registry, *rod.Browser, *launcher.Launcher, error) {
	var fallback verify.Adapter
	var browser *rod.Browser
	var launch *launcher.Launcher

	if cfg.Platforms.WebScrapeFallback {
		launch = launcher.New().Headless(true)
		controlURL, err := launch.Launch()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("launch headless browser: %w", err)
		}
		browser = rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			return nil, nil, nil, fmt.Errorf("connect headless browser: %w", err)
		}
		fallback = verify.NewWebScrapeAdapter(browser)
	}

	registry := verify.NewRegistry(fallback)

	// Each platform gets its own lightweight client here rather than
	// sharing the ingress adapter's: discordgo/slack/telego clients are
	// cheap REST wrappers, and keeping verification's client separate
	// from reply delivery's means a platform rate-limit on one path
	// never blocks the other.
	if cfg.Platforms.Discord.Enabled() {
		discordSession, err := discordgo.New("Bot " + cfg.Platforms.Discord.BotToken)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("discord verify client: %w", err)
		}
		registry.Register("discord", verify.NewDiscordAdapter(discordSession))
	}
	if cfg.Platforms.Slack.Enabled() {
		registry.Register("slack", verify.NewSlackAdapter(slack.New(cfg.Platforms.Slack.BotToken)))
	}
	if cfg.Platforms.Telegram.Enabled() {
		bot, err := telego.NewBot(cfg.Platforms.Telegram.BotToken)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("telegram verify client: %w", err)
		}
		registry.Register("telegram", verify.NewTelegramAdapter(bot))
	}

	return registry, browser, launch, nil
}

func wireBlocklist(cfg *config.Config, blocklist *ingress.Blocklist, logger *slog.Logger) (func(), error) {
	if cfg.Ingress.BlocklistFile == "" {
		return nil, nil
	}
	stop, err := config.WatchBlocklistFile(cfg.Ingress.BlocklistFile, func(data []byte) {
		if err := blocklist.Load(data); err != nil {
			logger.Warn("app.blocklist_reload_failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return stop, nil
}

func buildRateLimiter(cfg *config.Config, rdb *redis.Client) ingress.RateLimiter {
	if rdb != nil {
		return ingress.NewRedisRateLimiter(rdb, cfg.Ingress.RateLimitPerMin)
	}
	return ingress.NewInProcessRateLimiter(cfg.Ingress.RateLimitPerMin)
}

func buildAdapters(cfg *config.Config) (map[string]ingress.Adapter, error) {
	adapters := make(map[string]ingress.Adapter)

	if cfg.Platforms.Discord.Enabled() {
		a, err := discordingress.New(cfg.Platforms.Discord.BotToken, cfg.Platforms.Discord.PublicKeyHex)
		if err != nil {
			return nil, fmt.Errorf("discord adapter: %w", err)
		}
		adapters[a.Platform()] = a
	}
	if cfg.Platforms.Telegram.Enabled() {
		a, err := telegramingress.New(cfg.Platforms.Telegram.BotToken, cfg.Platforms.Telegram.SecretToken)
		if err != nil {
			return nil, fmt.Errorf("telegram adapter: %w", err)
		}
		adapters[a.Platform()] = a
	}
	if cfg.Platforms.Slack.Enabled() {
		a := slackingress.New(cfg.Platforms.Slack.BotToken, cfg.Platforms.Slack.SigningSecret)
		adapters[a.Platform()] = a
	}

	return adapters, nil
}

func buildModelEngine(cfg *config.Config) prompt.ModelEngine {
	if cfg.ModelEngine.Enabled() {
		return modelengine.NewHTTPEngine(cfg.ModelEngine.APIBase, cfg.ModelEngine.APIKey, cfg.ModelEngine.Model)
	}
	return modelengine.EchoEngine{}
}
