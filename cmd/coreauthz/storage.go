package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreauthz/coreauthz"
	"github.com/coreauthz/coreauthz/storage/memory"
	"github.com/coreauthz/coreauthz/storage/pebble"
	"github.com/coreauthz/coreauthz/storage/postgres"
)

// storageFlags are the --storage/--database-url/--pebble-dir flags shared
// by every subcommand that opens a store directly (as opposed to talking
// to a running server).
type storageFlags struct {
	kind        string
	databaseURL string
	pebbleDir   string
}

func addStorageFlags(cmd *cobra.Command) *storageFlags {
	f := &storageFlags{}
	flags := cmd.Flags()
	flags.StringVar(&f.kind, "storage", "memory", "storage backend: memory, postgres, pebble")
	flags.StringVar(&f.databaseURL, "database-url", "", "postgres connection string (storage=postgres)")
	flags.StringVar(&f.pebbleDir, "pebble-dir", "", "pebble data directory (storage=pebble)")
	return f
}

func (f *storageFlags) open(ctx context.Context) (coreauthz.Store, error) {
	switch f.kind {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if f.databaseURL == "" {
			return nil, fmt.Errorf("--database-url is required for storage=postgres")
		}
		if err := postgres.RunMigrations(f.databaseURL); err != nil {
			return nil, err
		}
		return postgres.New(ctx, f.databaseURL)
	case "pebble":
		if f.pebbleDir == "" {
			return nil, fmt.Errorf("--pebble-dir is required for storage=pebble")
		}
		return pebble.Open(f.pebbleDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", f.kind)
	}
}
