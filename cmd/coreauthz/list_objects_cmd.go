package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/coreauthz/coreauthz"
)

func newListObjectsCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-objects object_type relation subject_type subject_id [flags]",
		Short: "list every object of object_type the subject holds relation on",
		Args:  cobra.ExactArgs(4),
	}

	storageFlags := addStorageFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := storageFlags.open(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		ids, err := coreauthz.ListObjects(ctx, store, args[0], args[1], args[2], args[3], coreauthz.Options{})
		if err != nil {
			return err
		}

		log.Info("list-objects complete", slog.Int("count", len(ids)))
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}

	return cmd
}
