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

	"streetwatch/api/internal/app"
	"streetwatch/api/internal/config"
	"streetwatch/api/internal/email"
	"streetwatch/api/internal/media"
	"streetwatch/api/internal/notify"
	"streetwatch/api/internal/session"
	"streetwatch/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	emitter := notify.NewEmitter(dataStore, mailer)

	service := app.New(cfg, dataStore, emitter)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for refresh token storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		service = service.WithSessionStore(redisStore)
	} else {
		log.Printf("Using PostgreSQL for refresh token storage")
	}

	if strings.TrimSpace(cfg.MediaEndpoint) != "" {
		storage, err := media.NewStorage(media.Config{
			Endpoint:     cfg.MediaEndpoint,
			AccessKey:    cfg.MediaAccessKey,
			SecretKey:    cfg.MediaSecretKey,
			BucketVideos: cfg.MediaBucketVideos,
			BucketPhotos: cfg.MediaBucketPhotos,
			UseSSL:       cfg.MediaUseSSL,
			URLTTL:       cfg.MediaURLTTL,
		})
		if err != nil {
			log.Fatalf("media storage init failed: %v", err)
		}
		if err := storage.EnsureBuckets(ctx); err != nil {
			log.Printf("WARNING: bucket setup failed (uploads may be unavailable): %v", err)
		}
		service = service.WithMedia(storage)
	}

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
		log.Printf("Streetwatch API listening on %s", cfg.Addr)
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
