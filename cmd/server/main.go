// Package main initializes and starts the kdbexd vault server, setting up
// configuration, logging, the transit cipher, session and sync services,
// handlers, and the HTTP listener.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/kdbex/kdbexd/internal/config"
	"github.com/kdbex/kdbexd/internal/icon"
	"github.com/kdbex/kdbexd/internal/logger"
	"github.com/kdbex/kdbexd/internal/repository"
	"github.com/kdbex/kdbexd/internal/server/handler/http"
	"github.com/kdbex/kdbexd/internal/session"
	"github.com/kdbex/kdbexd/internal/syncer"
	"github.com/kdbex/kdbexd/internal/transit"
	"github.com/kdbex/kdbexd/internal/vault"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line, config-file, and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	if err := options.Validate(); err != nil {
		zapLogger.Fatal("invalid configuration", zap.Error(err))
	}

	// Initialize the transit cipher shared with clients.
	cipher, err := transit.New(options.TransitKey)
	if err != nil {
		zapLogger.Fatal("cannot init transit cipher", zap.Error(err))
	}

	// Session store owning the single decrypted vault handle.
	sessions := session.NewStore(options.VaultPath, options.MasterOverride, zapLogger)

	// First run with an operator-provided master secret: create an empty
	// vault so login has something to open.
	if options.MasterOverride != "" {
		if _, err := os.Stat(options.VaultPath); os.IsNotExist(err) {
			if err := createVault(options.VaultPath, options.MasterOverride); err != nil {
				zapLogger.Fatal("cannot create vault", zap.Error(err))
			}
			zapLogger.Info("empty vault created", zap.String("path", options.VaultPath))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional remote reconciliation over an S3-compatible store.
	var remote syncer.RemoteStore
	var state *syncer.StateStore
	if options.Remote != nil {
		state, err = syncer.OpenState(options.StatePath)
		if err != nil {
			zapLogger.Fatal("cannot open sync state", zap.Error(err))
		}
		defer func() { _ = state.Close() }()

		s3remote, err := syncer.NewS3Remote(ctx, syncer.RemoteOptions{
			Bucket:          options.Remote.Bucket,
			Key:             options.Remote.Key,
			Region:          options.Remote.Region,
			Endpoint:        options.Remote.Endpoint,
			AccessKeyID:     options.Remote.AccessKeyID,
			SecretAccessKey: options.Remote.SecretAccessKey,
		})
		if err != nil {
			zapLogger.Fatal("cannot init remote store", zap.Error(err))
		}
		remote = s3remote
	}

	sync := syncer.New(sessions, options.VaultPath, remote, state, zapLogger)
	sync.Start(ctx, time.Duration(options.SyncIntervalSeconds)*time.Second)

	// Favicon resolution with a bounded-timeout HTTP client.
	icons := icon.New(nil, zapLogger)

	// Entry operations over the held vault.
	repo := repository.New(sessions, cipher, icons, sync, zapLogger)

	// Create HTTP handlers for auth and entry endpoints.
	authHandler := &http.AuthHandler{Sessions: sessions, Transit: cipher}
	entriesHandler := &http.EntriesHandler{Repo: repo}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, entriesHandler, sessions, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Addr))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}

// createVault writes a fresh empty container to path.
func createVault(path, password string) error {
	data, err := vault.NewEmpty(password).Serialize()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
