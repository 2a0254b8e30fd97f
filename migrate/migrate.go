package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// migrationsFS holds embedded SQL migrations in migrate/sql.
//
//go:embed sql/*.sql
var migrationsFS embed.FS

const migrationsDir = "sql"

// Options defines how to run migrations.
type Options struct {
	Driver  string      // postgres or sqlite
	DSN     string      // full DSN for postgres, file path for sqlite
	Command string      // up, down, status, version, up-to, down-to, redo, reset
	Target  int64       // used with up-to/down-to
	Logger  *log.Logger // optional logger
}

// dialects maps database/sql driver names to goose dialects.
var dialects = map[string]string{
	"postgres": "postgres",
	"pgx":      "postgres",
	"sqlite":   "sqlite3",
}

// Run executes migrations based on provided options. If Driver or DSN are empty, it is a no-op.
func Run(opts Options) error {
	return RunContext(context.Background(), opts)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, opts Options) error {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" || strings.TrimSpace(opts.DSN) == "" {
		return nil
	}
	dialect, ok := dialects[driver]
	if !ok {
		return fmt.Errorf("unsupported migration driver: %s", opts.Driver)
	}
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	if opts.Logger != nil {
		goose.SetLogger(opts.Logger)
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName("schema_migrations")

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	switch strings.ToLower(strings.TrimSpace(opts.Command)) {
	case "", "up":
		return goose.UpContext(ctx, db, migrationsDir)
	case "down":
		return goose.DownContext(ctx, db, migrationsDir)
	case "status":
		return goose.StatusContext(ctx, db, migrationsDir)
	case "version":
		return goose.VersionContext(ctx, db, migrationsDir)
	case "up-to":
		return goose.UpToContext(ctx, db, migrationsDir, opts.Target)
	case "down-to":
		return goose.DownToContext(ctx, db, migrationsDir, opts.Target)
	case "redo":
		return goose.RedoContext(ctx, db, migrationsDir)
	case "reset":
		return goose.ResetContext(ctx, db, migrationsDir)
	default:
		return fmt.Errorf("unknown migration command: %s", opts.Command)
	}
}

// OptionsFromEnv reads MIGRATE_DRIVER, MIGRATE_DSN, MIGRATE_CMD and
// MIGRATE_TARGET.
func OptionsFromEnv() Options {
	cmd := strings.TrimSpace(os.Getenv("MIGRATE_CMD"))
	if cmd == "" {
		cmd = "up"
	}
	var target int64
	if v := strings.TrimSpace(os.Getenv("MIGRATE_TARGET")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			target = n
		}
	}
	driver := strings.TrimSpace(os.Getenv("MIGRATE_DRIVER"))
	if driver == "" {
		driver = "postgres"
	}
	return Options{
		Driver:  driver,
		DSN:     strings.TrimSpace(os.Getenv("MIGRATE_DSN")),
		Command: cmd,
		Target:  target,
		Logger:  log.New(os.Stdout, "[migrate] ", log.LstdFlags),
	}
}

// RunFromEnv runs migrations from OptionsFromEnv when MIGRATE_ON_START is
// truthy (1/true/yes/y).
func RunFromEnv() error {
	if !isTruthy(os.Getenv("MIGRATE_ON_START")) {
		return nil
	}
	return Run(OptionsFromEnv())
}

func isTruthy(v string) bool {
	s := strings.TrimSpace(strings.ToLower(v))
	return s == "1" || s == "true" || s == "yes" || s == "y"
}
