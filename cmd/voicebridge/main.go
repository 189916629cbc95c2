package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/curalink/voicebridge/pkg/asr"
	"github.com/curalink/voicebridge/pkg/auth"
	"github.com/curalink/voicebridge/pkg/completion"
	"github.com/curalink/voicebridge/pkg/config"
	"github.com/curalink/voicebridge/pkg/conversation"
	"github.com/curalink/voicebridge/pkg/logging"
	"github.com/curalink/voicebridge/pkg/runner"
	"github.com/curalink/voicebridge/pkg/session"
	"github.com/curalink/voicebridge/pkg/transport/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the service config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config_load_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	store, err := buildStore(cfg.Conversation)
	if err != nil {
		logger.Error("store_init_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	recognizers, err := buildRecognizerFactory(cfg.Vendors.ASR)
	if err != nil {
		logger.Error("asr_init_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	adapter, err := buildLLMAdapter(cfg.Vendors.LLM)
	if err != nil {
		logger.Error("llm_init_failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := session.NewRegistry()
	factory := func(sess *session.Session, sink session.EventSink) (*session.Controller, error) {
		rec, err := recognizers(sess.ID, sess.TraceID)
		if err != nil {
			return nil, err
		}
		bridge := asr.NewBridge(rec, asr.BridgeConfig{SessionID: sess.ID, TraceID: sess.TraceID}, logger)
		trigger := completion.NewTrigger(adapter, completion.Config{
			System:           cfg.BasePrompt,
			MaxResponseBytes: cfg.Session.MaxResponseBytes,
		}, logger)
		ctrlCfg := session.ControllerConfig{
			ForwardInterim: cfg.Session.ForwardInterim,
			GracePeriod:    cfg.Session.GracePeriod,
		}
		return session.NewController(sess, bridge, trigger, store, sink, ctrlCfg, logger), nil
	}

	server := ws.NewServer(cfg.Server, buildAuthorizer(cfg.Auth), factory, registry, logger)

	lifecycle := runner.NewLifecycleRunner(registry, runner.Hooks{
		OnStart: func() {
			if err := server.Start(context.Background()); err != nil {
				logger.Error("server_start_failed", slog.String("error", err.Error()))
			}
			logger.Info("server_listening",
				slog.String("addr", server.Addr()),
				slog.String("environment", cfg.Environment))
		},
		OnStop: func() {
			_ = server.Stop()
			logger.Info("server_stopped")
		},
	}, 2*cfg.Session.GracePeriod)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown_signal_received")
		cancel()
	}()

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("shutdown_incomplete", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func buildStore(cfg config.ConversationConfig) (conversation.Store, error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return conversation.NewRedisStore(client, cfg.TTL), nil
	default:
		return conversation.NewMemoryStore(), nil
	}
}

func buildAuthorizer(cfg config.AuthConfig) auth.Authorizer {
	if cfg.Mode == "none" {
		return auth.AllowAll{}
	}
	return auth.NewStaticAuthorizer(cfg.Tokens)
}
