package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	flag "github.com/spf13/pflag"

	"ms-ordering/internal/config"
	"ms-ordering/internal/database/migrations"
	"ms-ordering/internal/logger"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	cfg, loadedEnv := config.Load()
	if loadedEnv {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	opts := migrations.DefaultOptions()
	flag.StringVar(&opts.MigrationsDir, "dir", cfg.Database.MigrationsDir, "directory containing migration files")
	flag.BoolVar(&opts.SeedData, "seed", false, "also apply demo data migrations")
	down := flag.Bool("down", false, "roll back all migrations")
	to := flag.Uint("to", 0, "migrate up or down to this version")
	status := flag.Bool("status", false, "print the current version and exit")
	flag.Parse()

	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	defer sqldb.Close()

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
	}

	runner := migrations.NewRunner(sqldb, opts, log)
	defer runner.Close()

	switch {
	case *status:
		var st migrations.Status
		if st, err = runner.Status(); err == nil {
			log.Info("MIGRATE", fmt.Sprintf("version=%d dirty=%t empty=%t", st.Version, st.Dirty, st.Empty))
			return
		}
	case *down:
		err = runner.MigrateDown()
	case *to > 0:
		err = runner.MigrateTo(*to)
	default:
		err = runner.RunMigrations()
	}
	if err != nil {
		log.Error("MIGRATE", err.Error())
		os.Exit(1)
	}

	log.Info("MIGRATE", "✅ Migrations finished")
}
