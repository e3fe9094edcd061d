// throttlectl is the command-line client for the throttle admission
// engine, used to install the stored procedure, probe its availability,
// run a one-off admission check, or reset an identity's state.
//
// Usage:
//
//	throttlectl [global options] <command> [command args]
//
// Global options:
//
//	--host       redis host (default: REDIS_HOST or 127.0.0.1)
//	--port       redis port (default: REDIS_PORT or 6379)
//	--db         redis database index (default: REDIS_DB or 0)
//	--prefix     key prefix (default: THROTTLER_KEY_PREFIX or throttle)
//
// Commands:
//
//	install              load the admission stored procedure
//	probe                (re)install the stored procedure and report whether
//	                     it is available
//	check <identity> <policy> <ttl> <limit> <blockDuration>
//	                     run one admission call and print the decision
//	reset <identity>     delete all state for an identity
//
// Exit codes:
//
//	0: success
//	1: command failed (redis error, blocked decision on check)
//	2: argument error
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"github.com/throttlekit/throttle/pkg/throttle"
	"github.com/throttlekit/throttle/pkg/xlog"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	app := createApp()
	ctx := context.Background()

	if err := app.Run(ctx, os.Args); err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "argument error: %v\n", err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

type usageError struct{ error }

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "throttlectl",
		Usage:   "command-line client for the sliding-window throttle engine",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "redis host", Sources: cli.EnvVars("REDIS_HOST")},
			&cli.IntFlag{Name: "port", Value: 6379, Usage: "redis port", Sources: cli.EnvVars("REDIS_PORT")},
			&cli.IntFlag{Name: "db", Value: 0, Usage: "redis database index", Sources: cli.EnvVars("REDIS_DB")},
			&cli.StringFlag{Name: "prefix", Value: "throttle", Usage: "key prefix", Sources: cli.EnvVars("THROTTLER_KEY_PREFIX")},
		},
		Commands: []*cli.Command{
			installCommand(),
			probeCommand(),
			checkCommand(),
			resetCommand(),
		},
		DefaultCommand: "probe",
	}
}

func buildAdapter(cmd *cli.Command) (*throttle.Adapter, error) {
	cfg := throttle.Config{
		Redis: throttle.RedisConfig{
			Host: cmd.String("host"),
			Port: cmd.Int("port"),
			DB:   cmd.Int("db"),
		},
		Throttler: throttle.DefaultThrottlerConfig(),
	}
	cfg.Throttler.KeyPrefix = cmd.String("prefix")

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		DB:   cfg.Redis.DB,
	})

	return throttle.New(client, cfg, throttle.WithLogger(xlog.NewText(os.Stderr, xlog.LevelInfo)))
}

func installCommand() *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "load the admission stored procedure",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			adapter, err := buildAdapter(cmd)
			if err != nil {
				return err
			}
			if err := adapter.Install(ctx); err != nil {
				return err
			}
			fmt.Println("stored procedure installed")
			return nil
		},
	}
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "(re)install the stored procedure and report whether it is available",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			adapter, err := buildAdapter(cmd)
			if err != nil {
				return err
			}
			// Install/reload doubles as the probe: it reports an error only
			// when the procedure cannot be made available.
			if err := adapter.Install(ctx); err != nil {
				fmt.Println("stored procedure not available:", err)
				return nil
			}
			fmt.Println("stored procedure available")
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "run one admission call and print the decision",
		ArgsUsage: "<identity> <policy> <ttl> <limit> <blockDuration>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) != 5 {
				return usageError{fmt.Errorf("expected 5 arguments, got %d", len(args))}
			}
			identity, policy := args[0], args[1]

			ttl, err := time.ParseDuration(args[2])
			if err != nil {
				return usageError{fmt.Errorf("invalid ttl: %w", err)}
			}
			var limit int
			if _, err := fmt.Sscanf(args[3], "%d", &limit); err != nil {
				return usageError{fmt.Errorf("invalid limit: %w", err)}
			}
			blockDuration, err := time.ParseDuration(args[4])
			if err != nil {
				return usageError{fmt.Errorf("invalid blockDuration: %w", err)}
			}

			adapter, err := buildAdapter(cmd)
			if err != nil {
				return err
			}

			decision, err := adapter.Increment(ctx, identity, ttl, limit, blockDuration, policy)
			if err != nil {
				return err
			}
			fmt.Println(decision.String())
			if decision.IsBlocked {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func resetCommand() *cli.Command {
	return &cli.Command{
		Name:      "reset",
		Usage:     "delete all state for an identity",
		ArgsUsage: "<identity>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) != 1 {
				return usageError{fmt.Errorf("expected 1 argument, got %d", len(args))}
			}
			adapter, err := buildAdapter(cmd)
			if err != nil {
				return err
			}
			if err := adapter.Reset(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("reset complete")
			return nil
		},
	}
}
