// Command refreshd runs the RefreshApp conversational study assistant: it
// wires the agent graph, session store, storage and corpus services, and
// the optional remote login toolset behind the HTTP front door.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/refreshapp/refresh/config"
	"github.com/refreshapp/refresh/core"
	"github.com/refreshapp/refresh/corpus"
	"github.com/refreshapp/refresh/logging"
	"github.com/refreshapp/refresh/model"
	"github.com/refreshapp/refresh/model/anthropic"
	"github.com/refreshapp/refresh/model/openai"
	"github.com/refreshapp/refresh/runner"
	"github.com/refreshapp/refresh/server"
	"github.com/refreshapp/refresh/session"
	"github.com/refreshapp/refresh/storage"
	"github.com/refreshapp/refresh/study"
	"github.com/refreshapp/refresh/tool"
	"github.com/refreshapp/refresh/toolset"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewDefaultSlogLogger().Error("invalid configuration", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildSessionStore(cfg)
	if err != nil {
		logger.Error("failed to open session store", "error", err.Error())
		os.Exit(1)
	}
	defer cleanup()

	llm := buildModel(cfg)

	objects := storage.NewMemoryStore()
	objects.CreateBucket(cfg.BucketName)
	corpusSvc := corpus.NewMemoryService(corpus.NewObjectStoreLoader(objects))

	remoteTools := loadRemoteTools(ctx, cfg, logger)

	studyCfg := study.Config{
		BucketName: cfg.BucketName,
		CorpusName: cfg.CorpusName,
		CorpusID:   cfg.CorpusID,
		ListLimit:  cfg.ListLimit,
	}
	hooks := study.NewLoggingHooks(logger)

	question := study.NewQuestionAgent(llm, corpusSvc, studyCfg, func(o *study.QuestionAgentOptions) {
		o.Hooks = hooks
	})
	activity := study.NewActivityAgent(llm, objects, corpusSvc, question, studyCfg, func(o *study.ActivityAgentOptions) {
		o.Hooks = hooks
	})
	login := study.NewLoginAgent(llm, remoteTools, func(o *study.LoginAgentOptions) {
		o.Hooks = hooks
	})

	router, err := study.NewRouter(login, activity, func(o *study.RouterOptions) {
		o.Hooks = hooks
		o.Logger = logger
	})
	if err != nil {
		logger.Error("failed to build agent graph", "error", err.Error())
		os.Exit(1)
	}

	r := runner.New(router, func(o *runner.Options) {
		o.SessionStore = store
		o.Logger = logger
	})

	srv := server.New(r, studyCfg, func(o *server.Options) {
		o.Logger = logger
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("refreshd listening", "addr", cfg.HTTPAddr, "model_provider", cfg.ModelProvider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err.Error())
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err.Error())
	}
}

func buildSessionStore(cfg *config.Config) (core.SessionStore, func(), error) {
	if cfg.SessionBackend == "sqlite" {
		s, err := session.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return session.NewInMemoryStore(), func() {}, nil
}

func buildModel(cfg *config.Config) model.Model {
	switch cfg.ModelProvider {
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.AnthropicAPIKey != "" {
				o.APIKey = cfg.AnthropicAPIKey
			}
			if cfg.ModelName != "" {
				o.Model = anthropicsdk.Model(cfg.ModelName)
			}
		})
	case "mock":
		return model.NewMockModel("mock", "mock")
	default:
		client := openaisdk.NewClient(openaiClientOptions(cfg)...)
		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
		})
	}
}

func openaiClientOptions(cfg *config.Config) []option.RequestOption {
	if cfg.OpenAIAPIKey == "" {
		return nil
	}
	return []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
}

// loadRemoteTools connects to the login toolset if one is configured. A
// missing or unreachable toolbox degrades to local-only login tools.
func loadRemoteTools(ctx context.Context, cfg *config.Config, logger logging.Logger) []tool.Tool {
	if cfg.ToolboxURL == "" {
		logger.Warn("no toolbox configured, login will run with local tools only")
		return nil
	}

	ts := toolset.New(cfg.ToolboxURL, func(o *toolset.Options) {
		o.CallTimeout = cfg.ToolsetTimeout
		o.Logger = logger
	})

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := ts.Connect(connectCtx); err != nil {
		logger.Error("failed to connect to toolbox", "url", cfg.ToolboxURL, "error", err.Error())
		return nil
	}

	tools, err := ts.Load(connectCtx)
	if err != nil {
		logger.Error("failed to load toolbox tools", "url", cfg.ToolboxURL, "error", err.Error())
		return nil
	}
	return tools
}
