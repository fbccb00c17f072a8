package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/vibes/internal/shared"
	"github.com/urfave/cli/v3"
)

// loadConfig reads path, creating it from the embedded template first when it does not exist.
func (r *Runner) loadConfig(path string) *shared.Config {
	if _, err := os.Stat(path); err != nil {
		r.logger.Info("config file not found, creating from template", "path", path)
		if err := shared.CreateConfigFile(path); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			return shared.DefaultConfig()
		}
		r.logger.Info("config file created", "path", path)
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		return shared.DefaultConfig()
	}
	return config
}

// SetupConfig writes a config file from the embedded template.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if err := shared.CreateConfigFile(configPath); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	r.writePlain("✓ Config written to %s\n", configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret\n")
	r.writePlain("2. Set credentials.ai.api_key for AI suggestions\n")
	r.writePlain("3. Run 'vibes setup database' to create the graph database\n")
	return nil
}

// SetupDatabase initializes the graph database and runs migrations.
//
// With --rollback it reverts the most recently applied migration instead.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	if cmd.Bool("rollback") {
		return r.rollbackDatabase(config.Database)
	}

	if config.Graph.Backend != shared.GraphBackendSQLite {
		r.logger.Warn("graph backend is not sqlite, the database will not be used", "backend", config.Graph.Backend)
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.OpenGraphDatabase(config.Database)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("✓ Database ready at %s\n", config.Database.Path)
	return nil
}

func (r *Runner) rollbackDatabase(cfg shared.DatabaseConfig) error {
	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrGraphUnavailable, err)
	}
	defer db.Close()

	r.logger.Info("rolling back latest migration", "path", cfg.Path)
	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}

	r.writePlain("✓ Rolled back the latest migration in %s\n", cfg.Path)
	return nil
}

func setupCommand(r *Runner) *cli.Command {
	configFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   r.configFile(),
		}
	}

	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and graph database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write config.toml from the built-in template",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the graph database and run migrations",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Revert the most recently applied migration",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}
