package main

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/database"
	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

// migrator is the part of *migrate.Migrate the commands use.
type migrator interface {
	Up() error
	Steps(n int) error
	Migrate(version uint) error
	Version() (uint, bool, error)
}

type command struct {
	usage string
	run   func(m migrator, args []string) (string, error)
}

var commands = map[string]command{
	"up": {"apply every pending migration", func(m migrator, _ []string) (string, error) {
		return outcome(m.Up(), "Migrations applied", "No change: database is up to date")
	}},
	"down": {"roll back the last migration", func(m migrator, _ []string) (string, error) {
		if err := m.Steps(-1); err != nil {
			return "", fmt.Errorf("roll back: %w", err)
		}
		return "Last migration rolled back", nil
	}},
	"goto": {"migrate to version N", func(m migrator, args []string) (string, error) {
		if len(args) == 0 {
			return "", errors.New("goto needs a version number")
		}
		v, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return outcome(m.Migrate(uint(v)),
			fmt.Sprintf("Migrated to version %d", v),
			fmt.Sprintf("No change: database is already at version %d", v))
	}},
	"status": {"print the current migration version", func(m migrator, _ []string) (string, error) {
		v, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			return "No migration has been applied yet", nil
		case err != nil:
			return "", fmt.Errorf("read version: %w", err)
		case dirty:
			return fmt.Sprintf("Current migration version: %d (dirty)", v), nil
		default:
			return fmt.Sprintf("Current migration version: %d", v), nil
		}
	}},
}

// outcome treats ErrNoChange as success.
func outcome(err error, done, unchanged string) (string, error) {
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		return unchanged, nil
	case err != nil:
		return "", err
	default:
		return done, nil
	}
}

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		printUsage()
		os.Exit(1)
	}

	driver := database.Driver()
	source := "file://" + strings.TrimRight(env.GetEnv("MIGRATIONS_DIR", "migrations"), "/") + "/" + driver
	log.Printf("Migrating %s database %s from %s", driver, env.GetEnv("DB_NAME", ""), source)

	m, err := migrate.New(source, migrationURL(driver))
	if err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	msg, runErr := cmd.run(m, os.Args[2:])
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		log.Printf("Failed to close migration resources: %v, %v", srcErr, dbErr)
	}
	if runErr != nil {
		log.Fatalf("%s failed: %v", os.Args[1], runErr)
	}
	log.Println(msg)
}

// migrationURL builds the golang-migrate URL. For postgres a DATABASE_URL
// (the Supabase connection string) is reused with the pgx5 scheme.
func migrationURL(driver string) string {
	if driver == "mysql" {
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)
	}
	if raw := strings.TrimSpace(env.GetEnv("DATABASE_URL", "")); raw != "" {
		for _, scheme := range []string{"postgresql://", "postgres://"} {
			if strings.HasPrefix(raw, scheme) {
				return "pgx5://" + strings.TrimPrefix(raw, scheme)
			}
		}
		return raw
	}
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(env.GetEnv("DB_USER", "postgres"), env.GetEnv("DB_PASSWORD", "")),
		Host:     env.GetEnv("DB_HOST", "127.0.0.1") + ":" + env.GetEnv("DB_PORT", "5432"),
		Path:     "/" + env.GetEnv("DB_NAME", "postgres"),
		RawQuery: "sslmode=" + env.GetEnv("DB_SSLMODE", "require"),
	}
	return u.String()
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands:")
	for _, name := range []string{"up", "down", "goto", "status"} {
		label := name
		if name == "goto" {
			label = "goto N"
		}
		fmt.Printf("  %-7s- %s\n", label, commands[name].usage)
	}
}
