package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hverduzco/atiende"
	"github.com/hverduzco/atiende/frontend/telegram"
	"github.com/hverduzco/atiende/internal/config"
	"github.com/hverduzco/atiende/internal/health"
	"github.com/hverduzco/atiende/observer"
	"github.com/hverduzco/atiende/provider/openai"
	"github.com/hverduzco/atiende/store/postgres"
	"github.com/hverduzco/atiende/store/sqlite"
	"github.com/hverduzco/atiende/tools/clock"
	"github.com/hverduzco/atiende/tools/onthisday"
	"github.com/hverduzco/atiende/tools/weather"
)

// humanHandoffThreshold is the consecutive fallback count after which a
// conversation is switched to human mode.
const humanHandoffThreshold = 3

func main() {
	// 1. Load config
	cfg := config.Load(os.Getenv("ATIENDE_CONFIG"))
	if cfg.Telegram.Token == "" {
		log.Fatal("telegram token is required (ATIENDE_TELEGRAM_TOKEN)")
	}
	if cfg.OpenAI.APIKey == "" || cfg.OpenAI.AssistantID == "" {
		log.Fatal("openai api key and assistant id are required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	// 2. Observability (optional)
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	// 3. Assistant client
	var clientOpts []openai.Option
	if cfg.OpenAI.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	clientOpts = append(clientOpts, openai.WithLogger(logger))
	var client atiende.AssistantClient = openai.New(cfg.OpenAI.APIKey, cfg.OpenAI.AssistantID, clientOpts...)
	if inst != nil {
		client = observer.WrapClient(client, inst)
	}

	// 4. Store
	var store atiende.ConversationStore
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			log.Fatalf("postgres pool: %v", err)
		}
		defer pool.Close()
		store = postgres.New(pool)
	default:
		store = sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	}
	defer store.Close()

	// 5. Tools
	tools := atiende.NewToolRegistry()
	for _, tool := range []atiende.Tool{clock.New(), weather.New(), onthisday.New()} {
		if inst != nil {
			tool = observer.WrapTool(tool, inst)
		}
		tools.Add(tool)
	}

	// 6. Run lifecycle: registry, tracker, invoker, escalator
	stats := atiende.NewStats()
	registry := atiende.NewThreadRegistry(client,
		atiende.WithMaxContextMessages(cfg.Assistant.MaxContextMessages),
		atiende.WithRegistryLogger(logger))
	tracker := atiende.NewRunTracker(client,
		atiende.WithTrackerLogger(logger))

	invokerOpts := []atiende.InvokerOption{
		atiende.WithTools(tools),
		atiende.WithInvokerStats(stats),
		atiende.WithInvokerLogger(logger),
		atiende.WithPollInterval(time.Duration(cfg.Assistant.PollIntervalMS) * time.Millisecond),
	}
	if cfg.Assistant.Preamble != "" {
		invokerOpts = append(invokerOpts, atiende.WithPreamble(cfg.Assistant.Preamble))
	}
	if cfg.Assistant.Signature != "" {
		invokerOpts = append(invokerOpts, atiende.WithSignature(cfg.Assistant.Signature))
	}
	invoker := atiende.NewInvoker(client, registry, tracker, invokerOpts...)

	escalatorOpts := []atiende.EscalatorOption{
		atiende.WithEscalatorStats(stats),
		atiende.WithEscalatorLogger(logger),
	}
	if ladder := cfg.Assistant.Ladder(); ladder != nil {
		escalatorOpts = append(escalatorOpts, atiende.WithLadder(ladder...))
	}
	if cfg.Assistant.Fallback != "" {
		escalatorOpts = append(escalatorOpts, atiende.WithFallbackReply(cfg.Assistant.Fallback))
	}
	escalator := atiende.NewEscalator(invoker, escalatorOpts...)

	// 7. Frontend and dispatcher. The reply observer maintains the
	// consecutive-fallback counter and hands the conversation to a human
	// after too many misses in a row.
	bot := telegram.NewBot(cfg.Telegram.Token, telegram.WithLogger(logger))

	dispatcher := atiende.NewDispatcher(escalator, bot,
		atiende.WithDrainPause(time.Duration(cfg.Assistant.DrainPauseMS)*time.Millisecond),
		atiende.WithDispatcherLogger(logger),
		atiende.WithReplyObserver(func(ctx context.Context, conversationID string, fallback bool) {
			if !fallback {
				if err := store.ResetFailures(ctx, conversationID); err != nil {
					logger.Warn("reset failures", "conversation_id", conversationID, "error", err)
				}
				return
			}
			n, err := store.IncrementFailures(ctx, conversationID)
			if err != nil {
				logger.Warn("increment failures", "conversation_id", conversationID, "error", err)
				return
			}
			if n >= humanHandoffThreshold {
				if err := store.SetHumanMode(ctx, conversationID, true); err != nil {
					logger.Warn("human handoff", "conversation_id", conversationID, "error", err)
					return
				}
				logger.Info("conversation handed to human", "conversation_id", conversationID, "failures", n)
			}
		}))

	// 8. Background workers: stale-run sweeper and health endpoint.
	sweeper, err := atiende.NewSweeper(tracker, cfg.Sweep.Schedule,
		atiende.WithSweepMaxAge(cfg.Sweep.MaxAgeDuration()),
		atiende.WithIdleBindings(registry, cfg.Sweep.BindingTTLDuration()),
		atiende.WithSweeperStats(stats),
		atiende.WithSweeperLogger(logger))
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	go sweeper.Run(ctx)

	if cfg.Health.Addr != "" {
		healthSrv := health.New(tracker, stats, logger)
		go func() {
			if err := healthSrv.Start(ctx, cfg.Health.Addr); err != nil {
				logger.Error("health server", "error", err)
			}
		}()
	}

	// 9. App
	appOpts := []atiende.AppOption{
		atiende.WithAppStats(stats),
		atiende.WithAppLogger(logger),
	}
	if cfg.Telegram.AdminChatID != "" {
		admin := atiende.NewAdmin(tracker, registry, stats, store, logger)
		appOpts = append(appOpts, atiende.WithAdmin(admin, cfg.Telegram.AdminChatID))
	}
	app := atiende.NewApp(bot, store, dispatcher, appOpts...)

	if err := app.RunWithSignal(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}
