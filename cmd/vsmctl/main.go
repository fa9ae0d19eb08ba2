// Command vsmctl is the operator CLI: migrations, tenant provisioning, domains and job inspection.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/motorsales/vsms/config"
	"github.com/motorsales/vsms/internal/permissions"
	"github.com/motorsales/vsms/internal/tenancy"
	"github.com/motorsales/vsms/pkg/database"
	"github.com/motorsales/vsms/pkg/logger"
	"github.com/motorsales/vsms/pkg/redis"
)

var rootCmd = &cobra.Command{
	Use:           "vsmctl",
	Short:         "Operate the vehicle sales platform",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env holds the connections a command needs. Redis is only opened on demand.
type env struct {
	cfg       *config.Config
	log       *zap.Logger
	pool      *pgxpool.Pool
	rdb       *redis.Client
	directory *tenancy.Directory
	router    *tenancy.Router
}

func openEnv(ctx context.Context, withRedis bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, "console", "vsmctl")
	if err != nil {
		return nil, err
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), 4, log)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log, pool: pool, router: tenancy.NewRouter(pool, log)}
	var cache tenancy.Cache
	if withRedis {
		e.rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			pool.Close()
			return nil, err
		}
		cache = tenancy.NewRedisCache(e.rdb.Client, cfg.Tenancy.CacheTTL, log)
	}
	e.directory = tenancy.NewDirectory(tenancy.NewPGStore(pool), cache, tenancy.NewSchemaProvisioner(log, permissions.Seed), log)
	return e, nil
}

func (e *env) Close() {
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
	e.pool.Close()
	_ = e.log.Sync()
}

// withEnv adapts a command body that needs connections.
func withEnv(withRedis bool, fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context(), withRedis)
		if err != nil {
			return err
		}
		defer e.Close()
		return fn(cmd, args, e)
	}
}
