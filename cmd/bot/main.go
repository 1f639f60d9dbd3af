package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Brownie44l1/letter-api/internal/config"
	"github.com/Brownie44l1/letter-api/internal/history"
	"github.com/Brownie44l1/letter-api/internal/model"
	"github.com/Brownie44l1/letter-api/internal/pipeline"
	"github.com/Brownie44l1/letter-api/internal/raster"
	"github.com/Brownie44l1/letter-api/internal/telegram"
)

func main() {
	cfg := config.Load()
	token := config.MustEnv("TELEGRAM_BOT_TOKEN")

	filter, err := raster.ParseFilter(cfg.ResampleFilter)
	if err != nil {
		log.Fatalf("Invalid RESAMPLE_FILTER: %v", err)
	}

	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath, cfg.ONNXRuntimeLib)
	if err != nil {
		log.Fatalf("Failed to initialize model server: %v", err)
	}
	defer modelServer.Close()

	// chats are served one update at a time, so queueing never blocks long
	opts := []pipeline.Option{
		pipeline.WithMode(pipeline.ModeQueue),
		pipeline.WithFilter(filter),
		pipeline.WithClasses(modelServer.Metadata.Classes),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL != "" {
		db, err := history.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open history database: %v", err)
		}
		defer db.Close()
		repo := history.NewRepo(db)
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate history: %v", err)
		}
		opts = append(opts, pipeline.WithRecorder(repo))
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Fatal(err)
	}
	api.Debug = false
	log.Printf("Authorized on account %s", api.Self.UserName)

	bot := telegram.New(api, pipeline.New(modelServer, opts...))
	telegram.Run(ctx, api, bot)
	log.Println("Bot stopped")
}
