// Command mailsync runs the mailbox synchronization engine behind its
// two HTTP triggers: a scheduler-driven bulk pass and an on-demand
// single-account pass.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dispatchware/mailsync/internal/api"
	"github.com/dispatchware/mailsync/internal/blob"
	"github.com/dispatchware/mailsync/internal/config"
	"github.com/dispatchware/mailsync/internal/credential"
	"github.com/dispatchware/mailsync/internal/imapx"
	"github.com/dispatchware/mailsync/internal/store"
	"github.com/dispatchware/mailsync/internal/sync"
	"github.com/dispatchware/mailsync/internal/vault"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to the configuration file")
	pretty := flag.Bool("pretty", false, "human-readable console logging")
	storeSecret := flag.String("store-secret",
		"", "store a secret ("+config.SecretVaultKey+" or "+config.SecretSyncSecret+") read from stdin in the system keyring, then exit")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if *storeSecret != "" {
		if err := seedSecret(*storeSecret, os.Stdin); err != nil {
			logger.Fatal().Err(err).Msg("storing secret")
		}
		logger.Info().Str("name", *storeSecret).Msg("secret stored")
		return
	}

	if err := run(*configPath, logger); err != nil {
		logger.Fatal().Err(err).Msg("mailsync exited")
	}
}

// seedSecret reads one secret value from r and stores it in the system
// keyring under name. The value arrives on stdin so it never shows up
// in argv or shell history.
func seedSecret(name string, r io.Reader) error {
	if name != config.SecretVaultKey && name != config.SecretSyncSecret {
		return fmt.Errorf("unknown secret %q (want %s or %s)",
			name, config.SecretVaultKey, config.SecretSyncSecret)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading secret value: %w", err)
	}
	value := strings.TrimRight(string(data), "\r\n")
	if value == "" {
		return errors.New("empty secret value")
	}

	return credential.Set(name, value)
}

func run(configPath string, logger zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := blob.NewFileStore(cfg.Storage.BlobDir)
	if err != nil {
		return err
	}

	v, err := vault.New(cfg.VaultKey)
	if err != nil {
		return err
	}

	engine := sync.NewEngine(st, blobs, v, sync.ServerDialer{
		Config: imapx.ServerConfig{
			Host: cfg.IMAP.Host,
			Port: cfg.IMAP.Port,
			TLS:  cfg.IMAP.TLS,
		},
	}, logger, sync.Options{
		AccountTimeout: cfg.AccountTimeout(),
		Workers:        cfg.Sync.Workers,
	})
	defer engine.Close()

	router := api.SetupRouter(api.NewServer(engine, cfg.SyncSecret, logger))

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("mailsync listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
