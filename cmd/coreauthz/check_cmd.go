package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/coreauthz/coreauthz"
)

func newCheckCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check object:id#relation@subject:id [flags]",
		Short: "evaluate one authorization decision against a store",
		Args:  cobra.ExactArgs(1),
	}

	storageFlags := addStorageFlags(cmd)
	var contextJSON string
	cmd.Flags().StringVar(&contextJSON, "context", "", "JSON object of request context")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var reqContext map[string]any
		if contextJSON != "" {
			if err := json.Unmarshal([]byte(contextJSON), &reqContext); err != nil {
				return fmt.Errorf("parsing --context: %w", err)
			}
		}

		store, err := storageFlags.open(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		tuple := coreauthz.TupleString(args[0])
		checker := coreauthz.NewChecker(store)
		allowed, err := checker.Check(ctx, coreauthz.Request{
			ObjectType:      tuple.ObjectType,
			ObjectID:        tuple.ObjectID,
			Relation:        tuple.Relation,
			SubjectType:     tuple.SubjectType,
			SubjectID:       tuple.SubjectID,
			SubjectRelation: tuple.SubjectRelation,
			Context:         reqContext,
		}, coreauthz.Options{})
		if err != nil {
			return err
		}

		log.Info("check complete", slog.String("tuple", tuple.String()), slog.Bool("allowed", allowed))
		fmt.Println(allowed)
		return nil
	}

	return cmd
}
