package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sop/backend/internal/infrastructure/config"
	"github.com/sop/backend/internal/infrastructure/logger"
	"github.com/sop/backend/internal/infrastructure/migration"
)

const defaultMigrationsPath = "migrations"

// command is one migrate subcommand. Commands marked needsDB get a connected
// Migrator in their environment; create and list work on files alone.
type command struct {
	name    string
	usage   string
	summary string
	needsDB bool
	run     func(env *cliEnv, args []string) error
}

type cliEnv struct {
	log      *zap.Logger
	path     string
	migrator *migration.Migrator
}

var commands = []command{
	{name: "up", usage: "up", summary: "apply all pending migrations", needsDB: true, run: runUp},
	{name: "down", usage: "down", summary: "roll back all migrations", needsDB: true, run: runDown},
	{name: "step", usage: "step <n>", summary: "apply n migrations, negative n rolls back", needsDB: true, run: runStep},
	{name: "goto", usage: "goto <version>", summary: "migrate to a specific schema version", needsDB: true, run: runGoTo},
	{name: "version", usage: "version", summary: "show the current schema version", needsDB: true, run: runVersion},
	{name: "force", usage: "force <version>", summary: "overwrite the recorded version after manual repair", needsDB: true, run: runForce},
	{name: "drop", usage: "drop -confirm", summary: "drop every object in the database", needsDB: true, run: runDrop},
	{name: "create", usage: "create <name> [description]", summary: "scaffold a new up/down migration pair", run: runCreate},
	{name: "list", usage: "list", summary: "list migration pairs on disk", run: runList},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	migrationsPath := fs.String("path", "", "migrations directory (default ./migrations)")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	fs.Usage = printUsage
	_ = fs.Parse(argv)

	args := fs.Args()
	if len(args) == 0 {
		printUsage()
		return 2
	}

	cmd, ok := lookup(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "migrate: unknown command %q\n\n", args[0])
		printUsage()
		return 2
	}

	log := newLogger(*logLevel)
	defer func() {
		_ = logger.Sync(log)
	}()

	path, err := resolveMigrationsPath(*migrationsPath)
	if err != nil {
		log.Error("Cannot resolve migrations path", zap.Error(err))
		return 1
	}
	log.Info("Migration CLI started",
		zap.String("command", cmd.name),
		zap.String("migrations_path", path),
	)

	env := &cliEnv{log: log, path: path}
	if cmd.needsDB {
		migrator, cleanup, err := connectMigrator(log, path)
		if err != nil {
			log.Error("Database connection failed", zap.Error(err))
			return 1
		}
		defer cleanup()
		env.migrator = migrator
	}

	if err := cmd.run(env, args[1:]); err != nil {
		log.Error("Command failed", zap.String("command", cmd.name), zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(level string) *zap.Logger {
	log, err := logger.New(&logger.Config{
		Level:      level,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: logger setup failed: %v\n", err)
		os.Exit(1)
	}
	return log
}

// resolveMigrationsPath falls back to ./migrations, then to the directory two
// levels above the executable (the repo root when running a binary built from
// cmd/migrate).
func resolveMigrationsPath(flagValue string) (string, error) {
	path := flagValue
	if path == "" {
		path = defaultMigrationsPath
		if _, err := os.Stat(path); err != nil {
			if execPath, err := os.Executable(); err == nil {
				candidate := filepath.Join(filepath.Dir(execPath), "..", "..", defaultMigrationsPath)
				if _, err := os.Stat(candidate); err == nil {
					path = candidate
				}
			}
		}
	}
	return filepath.Abs(path)
}

// connectMigrator loads the configuration, opens the database and wraps it in
// a Migrator. The returned cleanup closes both.
func connectMigrator(log *zap.Logger, path string) (*migration.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	migrator, err := migration.New(db, path, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}

	cleanup := func() {
		if err := migrator.Close(); err != nil {
			log.Warn("Migrator close failed", zap.Error(err))
		}
		_ = db.Close()
	}
	return migrator, cleanup, nil
}

func runUp(env *cliEnv, _ []string) error {
	return env.migrator.Up()
}

func runDown(env *cliEnv, _ []string) error {
	return env.migrator.Down()
}

func runStep(env *cliEnv, args []string) error {
	if len(args) == 0 {
		return errors.New("step needs a count, e.g. 'migrate step -1'")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("step count %q is not a number", args[0])
	}
	return env.migrator.Steps(n)
}

func runGoTo(env *cliEnv, args []string) error {
	if len(args) == 0 {
		return errors.New("goto needs a version, e.g. 'migrate goto 20260715093042'")
	}
	version, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("version %q is not a number", args[0])
	}
	return env.migrator.GoTo(uint(version))
}

func runVersion(env *cliEnv, _ []string) error {
	version, dirty, err := env.migrator.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		env.log.Info("No migrations applied")
		return nil
	}
	env.log.Info("Current schema version",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
	return nil
}

func runForce(env *cliEnv, args []string) error {
	if len(args) == 0 {
		return errors.New("force needs a version, e.g. 'migrate force 20260715093042'")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("version %q is not a number", args[0])
	}
	return env.migrator.Force(version)
}

func runDrop(env *cliEnv, args []string) error {
	if !slices.Contains(args, "-confirm") && !slices.Contains(args, "--confirm") {
		return errors.New("refusing to drop the schema without -confirm")
	}
	return env.migrator.Drop()
}

func runCreate(env *cliEnv, args []string) error {
	if len(args) == 0 {
		return errors.New("create needs a name, e.g. 'migrate create add_forecast_lines'")
	}
	description := ""
	if len(args) > 1 {
		description = args[1]
	}

	mf, err := migration.CreateMigration(env.path, args[0], description)
	if err != nil {
		return err
	}

	env.log.Info("Migration created",
		zap.String("version", mf.Version),
		zap.String("up", mf.UpPath),
		zap.String("down", mf.DownPath),
	)
	return nil
}

func runList(env *cliEnv, _ []string) error {
	migrations, err := migration.ListMigrations(env.path)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		env.log.Info("No migrations found", zap.String("path", env.path))
		return nil
	}
	for _, name := range migrations {
		fmt.Println(name)
	}
	return nil
}

func printUsage() {
	out := os.Stderr
	fmt.Fprintln(out, "Schema migration tool for the S&OP backend.")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  migrate [flags] <command> [arguments]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-28s %s\n", c.usage, c.summary)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprintln(out, "  -path string        migrations directory (default ./migrations)")
	fmt.Fprintln(out, "  -log-level string   debug, info, warn or error (default info)")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Database settings come from config.toml or SOP_DATABASE_* environment variables.")
}
