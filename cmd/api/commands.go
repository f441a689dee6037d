package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"callrep/internal/auth"
	"callrep/internal/catalog"
	"callrep/internal/config"
	"callrep/internal/migrate"
	"callrep/internal/rbac"
	"callrep/pkg/logger"
	"callrep/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var (
		memory   bool
		seedFile string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and provider webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var opts []config.Option
			if memory {
				opts = append(opts, config.WithoutDatabase())
			}
			cfg, err := config.Load(opts...)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			return serve(ctx, cfg, serveOptions{Memory: memory, SeedFile: seedFile})
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep catalog, calls and audit in process memory instead of Postgres")
	cmd.Flags().StringVar(&seedFile, "seed", "", "Catalog YAML to load at startup")
	return cmd
}

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			log := logger.New(cfg.App.Env)

			db, err := utils.OpenPostgres(cmd.Context(), "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
			if err != nil {
				return fmt.Errorf("postgres init failed: %w", err)
			}
			defer db.Close()

			v, err := migrate.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "version", v)
			return nil
		},
	}
}

func buildSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load representatives, issues, scripts and personas from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := catalog.LoadSeedFile(file)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			log := logger.New(cfg.App.Env)

			db, err := utils.OpenPostgres(cmd.Context(), "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
			if err != nil {
				return fmt.Errorf("postgres init failed: %w", err)
			}
			defer db.Close()

			if err := seed.Apply(cmd.Context(), catalog.NewPostgresRepo(db)); err != nil {
				return err
			}
			log.Info("catalog seeded",
				"representatives", len(seed.Representatives),
				"issues", len(seed.Issues),
				"scripts", len(seed.Scripts),
				"personas", len(seed.Personas),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "seed/catalog.yaml", "Seed file path")
	return cmd
}

func buildTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a service token for peer systems or operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !rbac.IsKnownRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, err := config.Load(config.WithoutDatabase())
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			m, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.ServiceTokenTTL
			}
			tok, err := m.IssueWithTTL(time.Now(), subject, role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject (calling system or operator)")
	cmd.Flags().StringVar(&role, "role", rbac.RoleService, "Role: service or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_SERVICE_TTL)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
