package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/pflag"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *App, args []string) error
}

var commands = map[string]command{
	"login":          {"log in with username and password", cmdLogin},
	"login-telegram": {"log in with a Telegram login-widget proof", cmdLoginTelegram},
	"register":       {"create a password account and log in", cmdRegister},
	"logout":         {"end the session locally and notify the backend", cmdLogout},
	"status":         {"show the current session", cmdStatus},
	"watch":          {"stay connected and refetch resources on push events", cmdWatch},
}

// Streams are the process's standard streams, injectable for tests.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Run is the CLI entrypoint used by cmd/fleetdash. It returns an error
// instead of calling os.Exit to keep defers effective.
func Run(args []string, streams Streams, opts ...Option) error {
	fs := pflag.NewFlagSet("fleetdash", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(streams.Err)

	configPath := fs.String("config", "", "YAML config file (default $FLEETDASH_CONFIG)")
	logLevel := fs.String("log-level", "", "debug|info|warn|error (overrides FLEETDASH_LOG_LEVEL)")
	logFormat := fs.String("log-format", "", "json|pretty (overrides FLEETDASH_LOG_FORMAT)")
	fs.Usage = func() { printUsage(streams.Err, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return usageErrorf("%v", err)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(streams.Err, fs)
		return usageErrorf("missing command")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return usageErrorf("unknown command %q", rest[0])
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat, streams.Err)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log, append([]Option{WithOutput(streams.Out), withInput(streams.In)}, opts...)...)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Rehydrate(ctx); err != nil {
		return err
	}

	return cmd.run(ctx, a, rest[1:])
}

func printUsage(w io.Writer, fs *pflag.FlagSet) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Usage: fleetdash [global flags] <command> [flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(w, "  %-15s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nGlobal flags:\n%s", fs.FlagUsages())
}
