package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coreauthz/coreauthz"
)

// schemaFile is the on-disk shape accepted by "load-schema": one
// RelationConfig per (object type, relation), keyed by object type and
// then relation, plus a list of condition definitions, so a single file
// can seed a whole namespace.
type schemaFile struct {
	Relations  map[string]map[string]coreauthz.RelationConfig `json:"relations"`
	Conditions []coreauthz.ConditionDefinition                 `json:"conditions"`
}

func newLoadSchemaCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load-schema file.json [flags]",
		Short: "load relation configs and condition definitions from a JSON file",
		Args:  cobra.ExactArgs(1),
	}

	storageFlags := addStorageFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading schema file: %w", err)
		}
		var doc schemaFile
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("parsing schema file: %w", err)
		}

		store, err := storageFlags.open(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		client := coreauthz.NewClient(store)
		count := 0
		for objectType, relations := range doc.Relations {
			for relation, cfg := range relations {
				if err := client.WriteRelationConfig(ctx, objectType, relation, cfg); err != nil {
					return fmt.Errorf("writing %s#%s: %w", objectType, relation, err)
				}
				count++
			}
		}
		log.Info("loaded relation configs", slog.Int("count", count))

		for _, def := range doc.Conditions {
			if err := client.WriteConditionDefinition(ctx, def); err != nil {
				return fmt.Errorf("writing condition %q: %w", def.Name, err)
			}
		}
		log.Info("loaded condition definitions", slog.Int("count", len(doc.Conditions)))
		return nil
	}

	return cmd
}
