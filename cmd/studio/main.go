package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/imagestudio/internal/config"
	"github.com/digkill/imagestudio/internal/httpapi"
	"github.com/digkill/imagestudio/internal/kie"
	"github.com/digkill/imagestudio/internal/kvstore"
	"github.com/digkill/imagestudio/internal/repository"
	"github.com/digkill/imagestudio/internal/service"
	"github.com/digkill/imagestudio/internal/storage"
	"github.com/digkill/imagestudio/internal/telegram"
	"github.com/digkill/imagestudio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := kvstore.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	if cfg.KIEAPIKey == "" {
		logr.Warn("KIE_API_KEY is empty, generation requests will fail")
	}
	kieClient := kie.NewClient(cfg, logr)

	var uploader *storage.Uploader
	if cfg.UploaderEnabled() {
		uploader, err = storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3ImagePrefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
	}

	historyService := service.NewHistoryService(repository.NewHistoryRepository(store), logr)
	subscriptionService := service.NewSubscriptionService(repository.NewSubscriptionRepository(store), logr)

	var mirror service.ImageMirror
	if cfg.MirrorImages && uploader != nil {
		mirror = uploader
	}
	generationService := service.NewGenerationService(logr, kieClient, mirror, historyService, subscriptionService)

	var wg sync.WaitGroup

	if cfg.BotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			log.Fatalf("telegram bot: %v", err)
		}
		var refs telegram.ImageStorage
		if uploader != nil {
			refs = uploader
		}
		bot := telegram.NewBot(botAPI, cfg.BotOwnerID, logr, historyService, subscriptionService, generationService, refs)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("bot stopped", "err", err)
			}
		}()
	}

	server := httpapi.NewServer(cfg.ListenAddr, cfg.CORSOrigins, logr, historyService, subscriptionService, generationService)
	if err := server.Run(ctx); err != nil {
		logr.Error("http server stopped", "err", err)
		stop()
	}
	wg.Wait()
}
