package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles `roundtable migrate <action> [options] [N]`
func runMigrate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage(stdout)
		if len(args) < 1 {
			return fmt.Errorf("missing migrate action")
		}
		return nil
	}
	action := args[0]

	fs := flag.NewFlagSet("migrate "+action, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	dbType := fs.String("db-type", "", "Database type: postgres, mysql (default: from config)")
	dbURL := fs.String("db-url", "", "Database connection URL (default: from config)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	migrator, err := createMigrator(&common, *dbType, *dbURL)
	if err != nil {
		return err
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)
	return cli.Run(ctx, append([]string{action}, fs.Args()...))
}

// createMigrator 优先使用 --db-type/--db-url，否则读取 store.database 配置
func createMigrator(common *commonFlags, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL)
	}

	if err := loadEnvFile(common.envFile); err != nil {
		return nil, err
	}
	loader := config.NewLoader()
	if common.configPath != "" {
		loader = loader.WithConfigPath(common.configPath)
	}
	// 迁移只关心数据库配置，不做整体校验
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbType != "" {
		cfg.Store.Database.Driver = dbType
	}
	return migration.NewMigratorFromConfig(cfg)
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(w io.Writer) {
	fmt.Fprintf(w, `Database Migration Commands

Usage:
  roundtable migrate <action> [options] [N]

Actions:
  %s

Options:
  --config <path>     Path to configuration file (YAML)
  --env-file <path>   Load a dotenv file first
  --db-type <type>    Database type: postgres, mysql (default: store.database.driver)
  --db-url <url>      Database connection URL (default: from config)

SQLite stores create their tables with store.database.auto_migrate instead.

Examples:
  roundtable migrate up
  roundtable migrate up --config /etc/roundtable/config.yaml
  roundtable migrate status
  roundtable migrate steps --db-type postgres --db-url postgres://u:p@localhost/rt 2
  roundtable migrate force 1
`, migration.Usage)
}
