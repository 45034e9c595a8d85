package main

import (
	"errors"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/config"
	"lighthouse-crm/pkg/utils"
)

var auditSchemaCmd = &cobra.Command{
	Use:   "audit-schema",
	Short: "Create the activity history table in Postgres",
	RunE:  runAuditSchema,
}

func init() {
	rootCmd.AddCommand(auditSchemaCmd)
}

func runAuditSchema(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Audit.DSN == "" {
		return errors.New("AUDIT_DSN is required")
	}

	db, err := utils.OpenPostgres(cmd.Context(), "pgx", cfg.Audit.DSN, utils.PostgresPoolConfig{})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := audit.NewPostgresRepo(db).EnsureSchema(cmd.Context()); err != nil {
		return err
	}
	slog.Info("activity schema ensured")
	return nil
}
