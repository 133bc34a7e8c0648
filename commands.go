package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/artifact"
	"github.com/example/neuroscan/internal/config"
	"github.com/example/neuroscan/internal/logging"
	"github.com/example/neuroscan/internal/repository"
	"github.com/example/neuroscan/internal/usecase"
)

type rootOptions struct {
	envFile string
	addr    string
}

func execute() int {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "neuroscan",
		Short:         "Brain MRI classification API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file merged into the environment")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "Listen address (overrides SERVER_ADDR)")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newFetchModelCmd(opts))
	root.AddCommand(newCreateAdminCmd(opts))
	return root
}

// setup loads configuration and the logger shared by every subcommand.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.envFile)
	if err != nil {
		return nil, nil, err
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	logger, err := logging.NewLogger(cfg.Logger.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the model and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return serve(cfg, logger)
		},
	}
}

func newFetchModelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-model",
		Short: "Download the model artifact if it is not already present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			fetcher, err := artifact.NewFetcher(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if c, ok := fetcher.(interface{ Close() error }); ok {
				defer c.Close()
			}
			p := artifact.NewProvisioner(cfg.Model.Path, cfg.Model.RemoteID, fetcher, cfg.Model.FetchTimeout, logger)
			if err := p.EnsureArtifact(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model artifact ready at %s\n", p.Path())
			return nil
		},
	}
}

func newCreateAdminCmd(opts *rootOptions) *cobra.Command {
	var (
		username string
		reset    bool
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, reading the password from ADMIN_PASSWORD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := os.Getenv("ADMIN_PASSWORD")
			if username == "" || password == "" {
				return errors.New("--username and ADMIN_PASSWORD are required")
			}
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			db, err := initDatabase(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer closeDatabase(db, logger)

			store := repository.NewGormStore(db, logger)
			if err := store.AutoMigrate(ctx); err != nil {
				return err
			}
			changed, err := usecase.NewAccountUseCase(store, logger).EnsureAdmin(ctx, username, password, reset)
			if err != nil {
				return err
			}
			switch {
			case changed && reset:
				fmt.Fprintf(cmd.OutOrStdout(), "admin %q saved\n", username)
			case changed:
				fmt.Fprintf(cmd.OutOrStdout(), "admin %q created\n", username)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "admin %q already exists; pass --reset to change the password\n", username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Admin username")
	cmd.Flags().BoolVar(&reset, "reset", false, "Overwrite the password of an existing admin")
	return cmd
}
