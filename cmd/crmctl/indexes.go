package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"lighthouse-crm/internal/config"
	"lighthouse-crm/internal/directory/mongostore"
	"lighthouse-crm/pkg/utils"
)

var indexesTimeout time.Duration

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create the unique and tenant indexes in the document store",
	RunE:  runIndexes,
}

func init() {
	indexesCmd.Flags().DurationVar(&indexesTimeout, "timeout", time.Minute, "overall deadline")
	rootCmd.AddCommand(indexesCmd)
}

func runIndexes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), indexesTimeout)
	defer cancel()

	client, db, err := utils.OpenMongo(ctx, utils.MongoConfig{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := mongostore.New(db).EnsureIndexes(ctx); err != nil {
		return err
	}
	slog.Info("indexes ensured", "database", cfg.Mongo.Database)
	return nil
}
