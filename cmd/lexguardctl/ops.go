package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/lexguard/internal/config"
	tokens "github.com/dropDatabas3/lexguard/internal/security/token"
	"github.com/dropDatabas3/lexguard/internal/store/pg"
	migrations "github.com/dropDatabas3/lexguard/migrations/postgres"
)

// migrate: aplica las migraciones embebidas usando el storage del config.
func newMigrateCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de Postgres pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf(".env: %w", err)
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
				return errors.New("migrate requiere storage.driver=postgres y storage.dsn")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			st, err := pg.New(ctx, pg.Config{DSN: cfg.Storage.DSN, MaxConns: 2})
			if err != nil {
				return err
			}
			defer st.Close()

			applied, err := st.Migrate(ctx, migrations.SecurityFS, migrations.SecurityDir)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to apply")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %04d\n", v)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", os.Getenv("LEXGUARD_CONFIG"), "Config YAML (env LEXGUARD_CONFIG)")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Timeout total")
	return cmd
}

// gen-key: clave aleatoria de 32 bytes para security.secretbox_key o mfa.signing_key.
func newGenKeyCmd() *cobra.Command {
	var hexOut bool
	cmd := &cobra.Command{
		Use:   "gen-key",
		Short: "Genera una clave aleatoria de 32 bytes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hexOut {
				k, err := tokens.RandomHex(nil, 32)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), k)
				return nil
			}
			b, err := tokens.RandomBytes(nil, 32)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(b))
			return nil
		},
	}
	cmd.Flags().BoolVar(&hexOut, "hex", false, "Salida en hex en lugar de base64")
	return cmd
}
