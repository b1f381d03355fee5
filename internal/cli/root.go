package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultTimeout = 15 * time.Second

var (
	// ErrMissingURL is returned when neither --url nor LOXHOME_BACKEND_URL
	// is set.
	ErrMissingURL = errors.New("cli: backend URL required (--url or LOXHOME_BACKEND_URL)")

	// ErrMissingToken is returned when neither --token nor
	// LOXHOME_BACKEND_TOKEN is set.
	ErrMissingToken = errors.New("cli: access token required (--token or LOXHOME_BACKEND_TOKEN)")
)

// BuildInfo is injected via ldflags in cmd/loxctl.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Options configures the root command. Zero values use the process
// streams and DialManager.
type Options struct {
	Build  BuildInfo
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
	Dial   DialFunc

	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string

	// SkipDotEnv disables loading .env from the working directory.
	SkipDotEnv bool
}

// app carries resolved flags and dependencies shared by all commands.
type app struct {
	opts    Options
	url     string
	token   string
	timeout time.Duration
	noColor bool
}

// NewRootCommand builds the loxctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Dial == nil {
		opts.Dial = DialManager
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	a := &app{opts: opts}

	root := &cobra.Command{
		Use:   "loxctl",
		Short: "LoxHome command-line client",
		Long: `loxctl connects to the Home Assistant backend with an access token to
inspect discovery results, entity states and the LoxHome dashboard config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.resolve(cmd)
		},
	}

	if opts.Stdout != nil {
		root.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		root.SetErr(opts.Stderr)
	}
	if opts.Stdin != nil {
		root.SetIn(opts.Stdin)
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.url, "url", "", "Backend base URL (env LOXHOME_BACKEND_URL)")
	flags.StringVar(&a.token, "token", "", "Long-lived access token (env LOXHOME_BACKEND_TOKEN)")
	flags.DurationVar(&a.timeout, "timeout", defaultTimeout, "Timeout for the whole command")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		a.newDiscoverCommand(),
		a.newStatesCommand(),
		a.newToggleCommand(),
		a.newCallCommand(),
		a.newConfigCommand(),
		a.newDBCommand(),
		a.newVersionCommand(),
	)
	return root
}

// Execute runs loxctl with the process streams and exits non-zero on error.
func Execute(build BuildInfo) int {
	root := NewRootCommand(Options{Build: build})
	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err) //nolint:errcheck // best effort
		return 1
	}
	return 0
}

// resolve fills unset connection flags from the environment.
func (a *app) resolve(cmd *cobra.Command) error {
	if !a.opts.SkipDotEnv {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
	}
	if a.noColor {
		color.NoColor = true
	}

	flags := cmd.Flags()
	if !flags.Changed("url") {
		if v := a.opts.Getenv("LOXHOME_BACKEND_URL"); v != "" {
			a.url = v
		}
	}
	if !flags.Changed("token") {
		if v := a.opts.Getenv("LOXHOME_BACKEND_TOKEN"); v != "" {
			a.token = v
		}
	}
	return nil
}

// connect opens a session bounded by the command timeout. The returned
// cancel also closes the session.
func (a *app) connect(cmd *cobra.Command) (context.Context, Session, func(), error) {
	if a.url == "" {
		return nil, nil, nil, ErrMissingURL
	}
	if a.token == "" {
		return nil, nil, nil, ErrMissingToken
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	session, err := a.opts.Dial(ctx, a.url, a.token, cmd.ErrOrStderr())
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, session, func() {
		session.Close()
		cancel()
	}, nil
}

// Output styles.
var (
	headerColor  = color.New(color.FgYellow, color.Bold)
	nameColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	dimColor     = color.New(color.Faint)
)
