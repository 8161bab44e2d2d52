package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkwell/api/internal/activity"
	"inkwell/api/internal/app"
	"inkwell/api/internal/archive"
	"inkwell/api/internal/comments"
	"inkwell/api/internal/config"
	"inkwell/api/internal/kv"
	"inkwell/api/internal/search"
	"inkwell/api/internal/sharelink"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("storage connection failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		log.Fatalf("storage ping failed: %v", err)
	}

	var archiver activity.Archiver
	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		minioArchiver, err := archive.NewMinioArchiver(archive.Config{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			UseSSL:    cfg.ArchiveUseSSL,
		})
		if err != nil {
			log.Fatalf("archive connection failed: %v", err)
		}
		log.Printf("Archiving pruned activity to %s/%s", cfg.ArchiveEndpoint, cfg.ArchiveBucket)
		archiver = minioArchiver
	}

	activityLog := activity.NewLog(store, cfg.ActivityRetention, archiver)
	commentStore := comments.NewStore(store, activityLog, nil)
	linkManager := sharelink.NewManager(store, activityLog)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewScan(commentStore))
	commentStore.SetIndexer(searchService)

	service := app.NewService(store, commentStore, linkManager, activityLog, searchService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Inkwell API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (kv.Store, error) {
	switch cfg.StorageBackend {
	case "postgres":
		log.Printf("Using PostgreSQL storage")
		return kv.NewPostgresStore(ctx, cfg.DatabaseURL)
	case "memory":
		log.Printf("Using in-memory storage")
		return kv.NewMemoryStore(), nil
	default:
		log.Printf("Using Redis storage")
		return kv.NewRedisStore(cfg.RedisURL)
	}
}
