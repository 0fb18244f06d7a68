package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreauthz/coreauthz"
	"github.com/coreauthz/coreauthz/storage/memory"
	"github.com/coreauthz/coreauthz/storage/pebble"
	"github.com/coreauthz/coreauthz/storage/postgres"
)

// NewServerCmd builds the "server" subcommand: it opens the store named by
// --storage, wraps it in a [Handler], and serves it over HTTP until the
// command's context is cancelled.
func NewServerCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server [flags]",
		Short: "serve the authorization decision core over HTTP",
	}

	var (
		port        int
		storageKind string
		databaseURL string
		pebbleDir   string
	)

	flags := cmd.Flags()
	flags.IntVar(&port, "port", 4000, "port the server listens on")
	flags.StringVar(&storageKind, "storage", "memory", "storage backend: memory, postgres, pebble")
	flags.StringVar(&databaseURL, "database-url", "", "postgres connection string (storage=postgres)")
	flags.StringVar(&pebbleDir, "pebble-dir", "", "pebble data directory (storage=pebble)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, storageKind, databaseURL, pebbleDir)
		if err != nil {
			return fmt.Errorf("opening storage %q: %w", storageKind, err)
		}
		defer store.Close()

		handler := New(log.WithGroup("handler"), coreauthz.NewClient(store))

		httpServer := http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: handler,
			BaseContext: func(net.Listener) context.Context {
				return ctx
			},
		}

		log.Info(fmt.Sprintf("started server on 0.0.0.0:%d", port))
		go func() {
			if err := httpServer.ListenAndServe(); errors.Is(err, http.ErrServerClosed) {
				log.Info("server gracefully closed")
			} else if err != nil {
				log.Error("error listening on server", slog.Any("error", err))
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error on server shutdown", slog.Any("error", err))
			return err
		}
		return nil
	}

	return cmd
}

func openStore(ctx context.Context, kind, databaseURL, pebbleDir string) (coreauthz.Store, error) {
	switch kind {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if databaseURL == "" {
			return nil, fmt.Errorf("--database-url is required for storage=postgres")
		}
		if err := postgres.RunMigrations(databaseURL); err != nil {
			return nil, err
		}
		return postgres.New(ctx, databaseURL)
	case "pebble":
		if pebbleDir == "" {
			return nil, fmt.Errorf("--pebble-dir is required for storage=pebble")
		}
		return pebble.Open(pebbleDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
