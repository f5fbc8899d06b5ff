package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/freekieb7/jet/app"
	"github.com/freekieb7/jet/config"
	"github.com/freekieb7/jet/database"
	"github.com/freekieb7/jet/database/migration"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "jet.toml"

func main() {
	rootCmd := &cobra.Command{
		Use:           "jet",
		Short:         "HTTP dispatch engine and demo item service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(defaultConfigFile), "configuration file")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig only insists on the file when the flag was given explicitly.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	return config.Load(path, cmd.Flags().Changed("config"))
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, *configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			globals, err := app.NewGlobals(ctx, cfg)
			if err != nil {
				return err
			}

			srv := globals.Server()
			srv.Logger.InfoContext(ctx, "starting",
				"version", app.VersionString(cfg.Main.Debug),
				"address", globals.BindAddress().String(),
				"database", globals.DB != nil,
			)
			return srv.Run(ctx)
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert database migrations",
	}

	open := func(cmd *cobra.Command) (*migration.Migrator, func() error, error) {
		cfg, err := loadConfig(cmd, *configPath)
		if err != nil {
			return nil, nil, err
		}
		if !cfg.DB.Configured() {
			return nil, nil, errors.New("migrate: no [db_main] host or socket configured")
		}
		db, err := database.Open(cfg.DB, cfg.ResolvePath)
		if err != nil {
			return nil, nil, err
		}
		return migration.NewMigrator(db, nil), db.Close, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				migrator, closeDB, err := open(cmd)
				if err != nil {
					return err
				}
				defer closeDB()

				applied, err := migrator.Up(cmd.Context())
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Println("Nothing to migrate")
				}
				for _, version := range applied {
					fmt.Printf("Applied %s\n", version)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert the latest migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				migrator, closeDB, err := open(cmd)
				if err != nil {
					return err
				}
				defer closeDB()

				version, err := migrator.Down(cmd.Context())
				if err != nil {
					return err
				}
				if version == "" {
					fmt.Println("Nothing to revert")
					return nil
				}
				fmt.Printf("Reverted %s\n", version)
				return nil
			},
		},
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(app.Version)
		},
	}
}
