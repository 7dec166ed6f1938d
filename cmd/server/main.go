package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nutricopilot.com/mealplan-copilot/internal/api"
	"nutricopilot.com/mealplan-copilot/internal/config"
	"nutricopilot.com/mealplan-copilot/internal/core"
	"nutricopilot.com/mealplan-copilot/internal/logger"
	"nutricopilot.com/mealplan-copilot/internal/store"
	"nutricopilot.com/mealplan-copilot/internal/suggestion"
)

func main() {
	seedFlag := flag.Bool("seed", false, "Seed the default food catalog and meal plan, then exit")
	flag.Parse()

	config.LoadConfig()
	cfg := config.AppConfig

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.L().Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbStore.Close()

	ctx := context.Background()
	planID, err := dbStore.Seed(ctx)
	if err != nil {
		logger.L().Fatal("failed to seed database", zap.Error(err))
	}
	if *seedFlag {
		logger.Info("database seeded", zap.String("plan_id", planID))
		return
	}

	var parserOpts []suggestion.Option
	if cfg.FoodAliasesFile != "" {
		aliases, err := suggestion.LoadAliases(cfg.FoodAliasesFile)
		if err != nil {
			logger.L().Fatal("failed to load food aliases", zap.String("file", cfg.FoodAliasesFile), zap.Error(err))
		}
		parserOpts = append(parserOpts, suggestion.WithAliases(aliases))
		logger.Info("food aliases loaded", zap.Int("count", len(aliases)))
	}

	llmService, err := core.NewLLMService(ctx)
	if err != nil {
		logger.L().Fatal("failed to initialize LLM service", zap.Error(err))
	}
	defer llmService.Close()

	assistant := core.NewAssistantService(dbStore, llmService, cfg.HistoryLimit)
	catalog := core.NewCatalog(dbStore, llmService, cfg.MacroRatePerMinute)
	chatService := core.NewChatService(dbStore, assistant, llmService, catalog, suggestion.NewParser(parserOpts...))

	router := api.NewRouter(api.NewAPIHandler(chatService))

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // model calls can take a while
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", serverAddr), zap.String("driver", cfg.DatabaseDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal("could not listen", zap.String("addr", serverAddr), zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
