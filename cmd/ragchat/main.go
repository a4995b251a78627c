package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/chunker"
	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/handler"
	"github.com/xxxsen/ragchat/internal/job"
	"github.com/xxxsen/ragchat/internal/middleware"
	"github.com/xxxsen/ragchat/internal/queue"
	"github.com/xxxsen/ragchat/internal/results"
	"github.com/xxxsen/ragchat/internal/retriever"
	"github.com/xxxsen/ragchat/internal/schedule"
	"github.com/xxxsen/ragchat/internal/vectorstore"
	"github.com/xxxsen/ragchat/internal/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ragchat",
		Short: "ragchat backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragchat server and worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init("", cfg.LogLevel, 0, 0, 0, true)
			logutil.GetLogger(context.Background()).Info("config loaded",
				zap.Int("port", cfg.Port),
				zap.String("embed_provider", cfg.EmbedProvider),
				zap.String("collection", cfg.QdrantCollection),
			)
			return runServer(cfg)
		},
	}

	rootCmd.AddCommand(runCmd)
	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func embedProviderArgs(cfg *config.Config) (interface{}, error) {
	switch cfg.EmbedProvider {
	case "gemini":
		return map[string]interface{}{"api_key": cfg.GeminiAPIKey}, nil
	case "huggingface":
		return map[string]interface{}{"api_key": cfg.HFKey}, nil
	default:
		return nil, fmt.Errorf("unsupported embed provider: %s", cfg.EmbedProvider)
	}
}

func chatProviderArgs(cfg *config.Config) (interface{}, error) {
	switch cfg.ChatProvider {
	case "openrouter":
		return map[string]interface{}{"api_key": cfg.OpenRouterKey}, nil
	case "openai":
		return map[string]interface{}{"api_key": cfg.OpenAIKey}, nil
	case "gemini":
		return map[string]interface{}{"api_key": cfg.GeminiAPIKey}, nil
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", cfg.ChatProvider)
	}
}

func runServer(cfg *config.Config) error {
	rootCtx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(rootCtx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	jobQueue := queue.New(rdb, queue.DefaultName)
	answerStore := results.New(rdb, time.Duration(cfg.AnswerTTLHours)*time.Hour)

	store := vectorstore.NewQdrantStore(vectorstore.Config{
		BaseURL:    cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Dimension:  cfg.EmbedDimension,
	})

	embedArgs, err := embedProviderArgs(cfg)
	if err != nil {
		return err
	}
	embedProvider, err := ai.NewEmbedProvider(cfg.EmbedProvider, embedArgs)
	if err != nil {
		return fmt.Errorf("init embed provider: %w", err)
	}
	chatArgs, err := chatProviderArgs(cfg)
	if err != nil {
		return err
	}
	chatProvider, err := ai.NewChatProvider(cfg.ChatProvider, chatArgs)
	if err != nil {
		return fmt.Errorf("init chat provider: %w", err)
	}
	embedder := ai.NewEmbedder(embedProvider, cfg.EmbedModel)
	assistant := ai.NewAssistant(chatProvider, cfg.ChatModel, cfg.ReasoningEffort)

	rtv := retriever.New(store, cfg.TopK)
	wk, err := worker.New(
		jobQueue,
		chunker.New(),
		embedder,
		store,
		rtv,
		assistant,
		answerStore,
		worker.Config{
			Concurrency:     cfg.WorkerConcurrency,
			ReasoningEffort: cfg.ReasoningEffort,
		},
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := wk.Run(ctx); err != nil {
			logutil.GetLogger(ctx).Error("worker stopped", zap.Error(err))
		}
	}()
	defer wk.Close()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewQueueReclaimJob(jobQueue), "* * * * *"); err != nil {
		return fmt.Errorf("schedule queue reclaim: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.CORS(nil), gzip.Gzip(gzip.DefaultCompression), gin.Recovery())
	engine.GET("/health-check", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	api := engine.Group("/api/v1")
	handler.RegisterRoutes(api, handler.RouterDeps{
		Messages: handler.NewMessageHandler(jobQueue, answerStore),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler: engine,
	}
	go func() {
		logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(ctx).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(rootCtx).Info("server stopping...")
	shutdownCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
