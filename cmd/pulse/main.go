// pulse is a command-line client for the project-management API: list
// boards and pulses, change statuses, mirror a board into SQLite, and
// browse a board in a full-screen terminal UI.
//
// The API key is resolved from --api-key, then PULSE_API_KEY or the
// config file, then the system keyring (see "pulse login").
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nhle/gopulse/internal/config"
	"github.com/nhle/gopulse/internal/credential"
	"github.com/nhle/gopulse/pulse"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "%s\n\n", errorStyle.Render("error: "+usage.Error()))
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

// usageError reports a malformed command line.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// env is the state shared by every subcommand.
type env struct {
	cfg        *config.Config
	configPath string
	apiKeyFlag string
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer

	openCredentials func() (*credential.Store, error)
}

// openCredentials opens the system keyring. Tests replace it with an
// in-memory ring.
var openCredentials = credential.Open

// command is one subcommand of the CLI.
type command struct {
	name    string
	args    string
	summary string
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, e *env, args []string) error
}

// commands builds a fresh command, with fresh flag state, per name.
var commands = map[string]func() *command{
	"login":      loginCommand,
	"logout":     logoutCommand,
	"boards":     boardsCommand,
	"board":      boardCommand,
	"pulses":     pulsesCommand,
	"set-status": setStatusCommand,
	"comment":    commentCommand,
	"mirror":     mirrorCommand,
	"runs":       runsCommand,
	"browse":     browseCommand,
}

func run(argv []string, stdout, stderr io.Writer) error {
	var configPath, apiKey, logLevel string

	flagSet := pflag.NewFlagSet("pulse", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&configPath, "config", config.DefaultConfigPath(), "path to the config file")
	flagSet.StringVar(&apiKey, "api-key", "", "API key (overrides PULSE_API_KEY, the config file and the keyring)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage(stdout)
			return nil
		}
		return usagef("%v", err)
	}
	if help, _ := flagSet.GetBool("help"); help {
		printUsage(stdout)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		return usagef("no command given")
	}
	newCommand, ok := commands[args[0]]
	if !ok {
		return usagef("unknown command %q", args[0])
	}
	cmd := newCommand()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return usagef("%v", err)
	}

	e := &env{
		cfg:             cfg,
		configPath:      configPath,
		apiKeyFlag:      apiKey,
		logger:          slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		stdout:          stdout,
		stderr:          stderr,
		openCredentials: openCredentials,
	}

	cmdFlags := pflag.NewFlagSet(cmd.name, pflag.ContinueOnError)
	cmdFlags.SetOutput(io.Discard)
	if cmd.flags != nil {
		cmd.flags(cmdFlags)
	}
	if err := cmdFlags.Parse(args[1:]); err != nil {
		return usagef("%s: %v", cmd.name, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cmd.run(ctx, e, cmdFlags.Args())
}

// apiKey resolves the API key: flag, then environment or config file,
// then keyring.
func (e *env) apiKey() (string, error) {
	if e.apiKeyFlag != "" {
		return e.apiKeyFlag, nil
	}
	if e.cfg.APIKey != "" {
		return e.cfg.APIKey, nil
	}
	store, err := e.openCredentials()
	if err != nil {
		return "", fmt.Errorf("opening keyring: %w", err)
	}
	key, err := store.APIKey()
	if errors.Is(err, credential.ErrNotFound) {
		return "", errors.New(`no API key configured: run "pulse login" or set PULSE_API_KEY`)
	}
	return key, err
}

// client builds the HTTP transport for the resolved API key.
func (e *env) client() (*pulse.Client, error) {
	key, err := e.apiKey()
	if err != nil {
		return nil, err
	}
	return e.clientWithKey(key)
}

func (e *env) clientWithKey(key string) (*pulse.Client, error) {
	return pulse.NewClient(pulse.ClientConfig{
		APIKey:     key,
		BaseURL:    e.cfg.BaseURL,
		APIVersion: e.cfg.APIVersion,
		HTTPClient: newHTTPClient(e.cfg.Timeout()),
		Logger:     e.logger,
	})
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, titleStyle.Render("pulse")+" - project-management API client")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pulse [--config path] [--api-key key] [--log-level level] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]()
		usage := strings.TrimSpace(c.name + " " + c.args)
		fmt.Fprintf(w, "  %-44s %s\n", usage, dimStyle.Render(c.summary))
	}
}
