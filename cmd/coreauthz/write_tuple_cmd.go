package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/coreauthz/coreauthz"
)

func newWriteTupleCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write-tuple object:id#relation@subject:id [flags]",
		Short: "write (or, with --delete, remove) a tuple",
		Args:  cobra.ExactArgs(1),
	}

	storageFlags := addStorageFlags(cmd)
	var delete bool
	cmd.Flags().BoolVar(&delete, "delete", false, "delete the tuple instead of writing it")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := storageFlags.open(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		tuple := coreauthz.TupleString(args[0])
		client := coreauthz.NewClient(store)

		if delete {
			removed, err := client.RemoveTuple(ctx, tuple)
			if err != nil {
				return err
			}
			log.Info("tuple deleted", slog.String("tuple", tuple.String()), slog.Bool("existed", removed))
			return nil
		}

		if err := client.AddTuple(ctx, tuple); err != nil {
			return err
		}
		log.Info("tuple written", slog.String("tuple", tuple.String()))
		return nil
	}

	return cmd
}
