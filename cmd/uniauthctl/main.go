// uniauthctl runs the administrative operations of the account store:
// institution management, migrations of identities written by older schemes,
// the placeholder sweep and manual merges.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"uniauth/internal/config"
	"uniauth/internal/observability/logging"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/store"
	"uniauth/pkg/db"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const serviceName = "uniauth"

func main() {
	// a missing .env is fine; the process environment still applies
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}

	flags := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	opts := cmd.flags(flags)
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	if n := len(flags.Args()); n < cmd.minArgs || (cmd.maxArgs >= 0 && n > cmd.maxArgs) {
		return fmt.Errorf("%s: usage: uniauthctl %s %s", args[0], args[0], cmd.usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		Output:      os.Stderr,
	})
	slog.SetDefault(logger)

	st, closeDB, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	a, err := newApp(cfg, st, logger, stdin, stdout)
	if err != nil {
		return err
	}
	return cmd.run(ctx, a, opts, flags.Args())
}

func openStore(cfg config.Config) (*store.Store, func(), error) {
	dbCfg := db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL}
	if db.Dialector(cfg.DatabaseURL).Name() == "sqlite" {
		dbCfg.MaxOpenConns = 1
	}
	gdb, err := db.OpenGorm(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("db handle: %w", err)
	}
	if err := store.AutoMigrate(gdb); err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	st := store.New(gdb)
	st.HandleRetries = cfg.HandleRetries
	return st, func() { _ = sqlDB.Close() }, nil
}

func registerMetrics() {
	metrics.MustRegister(serviceName)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: uniauthctl <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-20s %s\n", name, commands[name].summary)
	}
}
