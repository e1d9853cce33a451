package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"bizdesk.org/internal/auth"
	"bizdesk.org/internal/config"
	"bizdesk.org/internal/directory"
	"bizdesk.org/internal/httpapi"
	"bizdesk.org/internal/obs"
	"bizdesk.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()
	defer func() { _ = logger.Sync() }()

	codec, err := auth.NewCodec(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Audience,
		auth.WithLogger(logger))
	if err != nil {
		logger.Fatal("token codec", zap.Error(err))
	}
	blacklist := auth.NewBlacklist(auth.BlacklistMaxTokenTTL(cfg.Auth.AccessTTL))

	// The directory is either the local Postgres store or a sibling service
	// over HTTP. With neither configured the gate denies everything.
	var (
		store      *pg.Store
		userLookup auth.UserLookup
		permLookup auth.PermissionLookup
	)
	switch {
	case cfg.PGDSN != "":
		store, err = pg.Open(cfg.PGDSN)
		if err != nil {
			logger.Fatal("open directory db", zap.Error(err))
		}
		defer func() { _ = store.Close() }()
		userLookup = store
		permLookup = store
	case cfg.Directory.BaseURL != "":
		client, err := directory.NewClient(cfg.Directory.BaseURL,
			directory.WithTimeout(cfg.Directory.Timeout),
			directory.WithLogger(logger))
		if err != nil {
			logger.Fatal("directory client", zap.Error(err))
		}
		userLookup = client
		permLookup = client
	default:
		logger.Warn("no directory configured, all requests will be denied")
	}

	var gate auth.Gate = auth.DenyAllGate{}
	var verifier *auth.VerificationCache
	if userLookup != nil {
		verifier = auth.NewVerificationCache(userLookup, cfg.Cache.UserTTL, cfg.Cache.Size, logger)
		gate = httpapi.NewEdgeGate(codec, blacklist, verifier, cfg.Auth.AccessCookie)
	}
	resolver := auth.NewResolver(permLookup, cfg.Cache.PermissionTTL, cfg.Cache.Size, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go blacklist.Run(ctx, time.Minute)

	api := httpapi.New(cfg, httpapi.Deps{
		Codec:     codec,
		Blacklist: blacklist,
		Verifier:  verifier,
		Resolver:  resolver,
		Store:     store,
		Gate:      gate,
		Log:       logger,
	}, version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting bizdesk-auth",
		zap.String("version", version),
		zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
