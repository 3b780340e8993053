package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena-go/internal/archive"
	appcfg "github.com/kapu/chess-arena-go/internal/config"
	"github.com/kapu/chess-arena-go/internal/gateway"
	"github.com/kapu/chess-arena-go/internal/identity"
	"github.com/kapu/chess-arena-go/internal/match"
	"github.com/kapu/chess-arena-go/internal/mirror"
	"github.com/kapu/chess-arena-go/internal/obslog"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = obslog.L().Sync() }()

	svc := match.NewService()
	if cfg.MoveValidation {
		svc.SetValidator(match.RulesValidator())
		obslog.L().Info("move_validation_enabled")
	}

	var mirrorStore *mirror.Store
	if cfg.RedisURL != "" {
		mirrorStore, err = mirror.New(cfg.RedisURL)
		if err != nil {
			log.Fatalf("mirror init error: %v", err)
		}
		svc.AttachMirror(mirrorStore)
	}

	var archiveRepo *archive.Repository
	if cfg.DatabaseURL != "" {
		archiveRepo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("archive init error: %v", err)
		}
		svc.AttachArchiver(archiveRepo)
	} else {
		svc.AttachArchiver(archive.NewMemory())
	}

	gwOpts := []gateway.Option{
		gateway.WithOriginPatterns(cfg.AllowedOrigins),
		gateway.WithEgressBuffer(cfg.EgressBuffer),
	}
	if cfg.IdentityBaseURL != "" {
		gwOpts = append(gwOpts, gateway.WithResolver(identity.NewClient(cfg.IdentityBaseURL)))
	}
	gw := gateway.New(svc, gwOpts...)
	svc.AttachSender(gw)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/statsz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"connections": gw.Count(),
			"match":       svc.Stats(),
		})
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("server_shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	gw.Shutdown(ctx)
	_ = srv.Shutdown(ctx)
	if mirrorStore != nil {
		_ = mirrorStore.Close()
	}
	if archiveRepo != nil {
		_ = archiveRepo.Close()
	}
}
