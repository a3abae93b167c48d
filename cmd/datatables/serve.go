package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gnemet/datatables"
	"github.com/gnemet/datatables/assets"
	"github.com/gnemet/datatables/cache"
	"github.com/gnemet/datatables/database/sqlpool"
	"github.com/gnemet/datatables/internal/config"
	"github.com/gnemet/datatables/internal/logging"
	"github.com/gnemet/datatables/session"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the data, config and asset endpoints of the catalog tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
		slog.SetDefault(logger)

		dbCfg, err := cfg.DefaultDatabase()
		if err != nil {
			return err
		}
		driver := dbCfg.Driver
		if driver == "sqlite3" {
			driver = sqlpool.DriverSQLite
		}
		pool, err := sqlpool.Open(driver, dbCfg.DSN(), sqlpool.Tuning{
			MaxConns:    cfg.Pool.MaxConnections,
			IdleTimeout: config.Duration(cfg.Pool.IdleTimeout, 5*time.Minute),
			AbsTimeout:  config.Duration(cfg.Pool.AbsTimeout, time.Hour),
		})
		if err != nil {
			return err
		}
		defer pool.Close()
		pool.WithLogger(logger)

		dialect, err := datatables.ParseDialect(dbCfg.Driver)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		schema, err := loadSchema(ctx, cfg, pool)
		if err != nil {
			return err
		}

		registry := datatables.NewRegistry(cfg.Application.Namespace)
		defs, err := datatables.LoadCatalogDefinitions(cfg.Catalog.Definitions)
		if err != nil {
			return fmt.Errorf("load definitions: %w", err)
		}
		list := make([]datatables.Definition, len(defs))
		for i, d := range defs {
			list[i] = d
		}
		if err := registry.Register(list...); err != nil {
			return err
		}

		store, err := openStore(ctx, cfg, pool, dbCfg.Driver)
		if err != nil {
			return err
		}

		builder := datatables.NewBuilder(registry, schema, datatables.WithCache(store), datatables.WithLogger(logger))
		for _, name := range registry.Names() {
			// configuration errors are fatal at startup
			if _, err := builder.GetConfigBundle(ctx, name); err != nil {
				return err
			}
		}

		version := cfg.Assets.Version
		if version == "" {
			version = assets.DefaultVersion
		}
		selector := assets.NewSelector(os.DirFS(cfg.Assets.Root), assets.WithCache(store), assets.WithLogger(logger))

		exec := datatables.NewSQLExecutor(pool, dialect)
		exec.Logger = logger
		server := datatables.NewServer(builder, exec, selector, cfg.Server.Prefix)
		server.Logger = logger

		sessions := session.NewManager(
			config.Duration(cfg.Session.IdleTimeout, 30*time.Minute),
			config.Duration(cfg.Session.AbsTimeout, 12*time.Hour),
		).WithLogger(logger)
		sessions.StartCleanup(time.Minute)
		defer sessions.Close()

		addr := ":" + cfg.Server.Port
		logger.Info("Starting server", "addr", addr, "prefix", server.Prefix, "tables", registry.Names(), "asset_version", version)
		return http.ListenAndServe(addr, sessions.Middleware(server.Handler()))
	},
}

func loadSchema(ctx context.Context, cfg *config.Config, pool *sqlpool.Pool) (*datatables.Schema, error) {
	if cfg.Catalog.Introspect {
		dbCfg, _ := cfg.DefaultDatabase()
		name := dbCfg.Schema
		if name == "" {
			name = "public"
		}
		return datatables.IntrospectPostgres(ctx, pool.DB(), name)
	}
	return datatables.LoadSchema(cfg.Catalog.Schema)
}

func openStore(ctx context.Context, cfg *config.Config, pool *sqlpool.Pool, driver string) (cache.Store, error) {
	switch cfg.Cache.Driver {
	case "memory":
		return cache.NewMemory(cfg.Cache.Size)
	case "sql":
		store, err := cache.NewSQL(pool.DB(), driver)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "none":
		return cache.Nop{}, nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
}
