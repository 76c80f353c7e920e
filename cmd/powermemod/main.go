// Command powermemod runs the memory service's HTTP server: it wires the
// Postgres/Redis stores, the LLM gateway, the write-behind buffer, the
// chat-flush pipeline and the context assembler into internal/httpapi and
// serves spec §6's routes. Grounded on the teacher's cmd/manifold/main.go
// boot sequence (load config, init observability, open stores, construct
// services, serve).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/skorpland/powermemo/internal/buffer"
	"github.com/skorpland/powermemo/internal/cache"
	"github.com/skorpland/powermemo/internal/chatflush"
	"github.com/skorpland/powermemo/internal/config"
	contextassembler "github.com/skorpland/powermemo/internal/context"
	"github.com/skorpland/powermemo/internal/httpapi"
	"github.com/skorpland/powermemo/internal/llmgateway"
	"github.com/skorpland/powermemo/internal/observability"
	"github.com/skorpland/powermemo/internal/storepg"
	"github.com/skorpland/powermemo/internal/telemetry"
	"github.com/skorpland/powermemo/internal/tokencount"
)

func main() {
	observability.InitLogger(os.Getenv("POWERMEMO_LOG_PATH"), os.Getenv("POWERMEMO_LOG_LEVEL"))

	cfg, err := config.Load(os.Getenv("POWERMEMO_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("config_load_failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:     os.Getenv("POWERMEMO_OTLP_ENDPOINT") != "",
		OTLP:        os.Getenv("POWERMEMO_OTLP_ENDPOINT"),
		ServiceName: "powermemod",
		Environment: cfg.TelemetryDeploymentEnvironment,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("otel_init_failed")
	}
	defer shutdownOTel(context.Background())

	pool, err := storepg.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres_open_failed")
	}
	defer pool.Close()
	if err := storepg.EnsureSchema(ctx, pool, cfg.EmbeddingDim); err != nil {
		log.Fatal().Err(err).Msg("schema_ensure_failed")
	}

	redisOpts, err := redis.ParseURL(cfg.KVURL)
	if err != nil {
		log.Fatal().Err(err).Msg("kv_url_parse_failed")
	}
	kv, err := cache.New(cache.Config{Addr: redisOpts.Addr, Password: redisOpts.Password, DB: redisOpts.DB})
	if err != nil {
		log.Fatal().Err(err).Msg("redis_connect_failed")
	}

	counter, err := tokencount.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("tokenizer_init_failed")
	}

	projects := storepg.NewProjectStore(pool)
	users := storepg.NewUserStore(pool)
	blobs := storepg.NewBlobStore(pool)
	profiles := storepg.NewProfileStore(pool)
	events := storepg.NewEventStore(pool)
	bufferStore := storepg.NewBufferStore(pool)

	profileCache := cache.NewProfileCache(kv, time.Duration(cfg.CacheUserProfilesTTL)*time.Second)
	projectAuthCache := cache.NewProjectAuthCache(kv)
	userLock := cache.NewUserLock(kv,
		time.Duration(cfg.UserLockTTLSeconds)*time.Second,
		time.Duration(cfg.UserLockWaitSeconds)*time.Second)

	resolver := config.Resolver{Global: cfg, Projects: projects}

	metrics := telemetry.New()

	completer := llmgateway.NewOpenAIBackend(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.BestLLMModel, cfg.EmbeddingModel)
	var embedder llmgateway.Provider = completer
	if cfg.EmbeddingProvider == "jina" {
		embedder = llmgateway.NewJinaBackend(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)
	}
	provider := llmgateway.CompositeProvider{Completer: completer, Embedder: embedder}
	gateway := llmgateway.New(provider, metrics).WithBilling(projects, cfg.CostPerThousandTokensMicroUSD)

	flusher := chatflush.New(blobs, profiles, profileCache, events, gateway, counter, resolver, chatflush.Config{
		BestLLMModel:                         cfg.BestLLMModel,
		SummaryLLMModel:                      cfg.SummaryLLMModel,
		MaxProfileSubtopics:                  cfg.MaxProfileSubtopics,
		MaxPreProfileTokenSize:               cfg.MaxPreProfileTokenSize,
		TabSeparator:                         cfg.LLMTabSeparator,
		EnableEventEmbedding:                 cfg.EnableEventEmbedding,
		EmbeddingModel:                       cfg.EmbeddingModel,
		MinimumChatsTokenSizeForEventSummary: cfg.MinimumChatsTokenSizeForEventSummary,
	})

	buf := buffer.New(bufferStore, blobs, userLock, counter, buffer.Config{
		FlushInterval:       time.Duration(cfg.BufferFlushInterval) * time.Second,
		MaxBufferTokenSize:  cfg.MaxChatBlobBufferTokenSize,
		LockTTL:             time.Duration(cfg.UserLockTTLSeconds) * time.Second,
		LockWait:            time.Duration(cfg.UserLockWaitSeconds) * time.Second,
		PersistentChatBlobs: cfg.PersistentChatBlobs,
	}, flusher)

	assembler := contextassembler.New(profiles, profileCache, events, gateway, counter, resolver,
		cfg.EmbeddingModel, cfg.EnableEventEmbedding)

	server := httpapi.New(httpapi.Deps{
		RootToken:        cfg.RootToken,
		Projects:         projects,
		ProjectAuthCache: projectAuthCache,
		Users:            users,
		Blobs:            blobs,
		Profiles:         profiles,
		ProfileCache:     profileCache,
		Events:           events,
		Buffer:           buf,
		Assembler:        assembler,
		Gateway:          gateway,
		Counter:          counter,
		Metrics:          metrics,
		Global:           cfg,
		Pool: httpapi.Pinger{
			DB: func(r *http.Request) error { return pool.Ping(r.Context()) },
			KV: func(r *http.Request) error { return kv.Ping(r.Context()) },
		},
	})

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("powermemod_listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http_server_failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("powermemod_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http_server_shutdown_error")
	}
}
