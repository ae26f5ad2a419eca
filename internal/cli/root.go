// Package cli implements the minion command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kingrea/minion/internal/config"
	"github.com/kingrea/minion/internal/connectors"
	"github.com/kingrea/minion/internal/logging"
	"github.com/kingrea/minion/internal/prompt"
	"github.com/kingrea/minion/internal/registry"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

var (
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FD18B"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
)

// AskFunc obtains a value for a missing parameter.
type AskFunc func(ctx context.Context, path string) (any, error)

// Options wires the command tree to its environment. Zero fields fall back
// to the process defaults.
type Options struct {
	Fs  afero.Fs
	In  io.Reader
	Out io.Writer
	Err io.Writer
	// Catalog replaces the builtin catalog.
	Catalog *registry.Catalog
	// Ask replaces the terminal prompt used by `run --prompt`.
	Ask AskFunc
}

type app struct {
	fs       afero.Fs
	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	settings config.Settings
	logger   *logging.Logger
	catalog  *registry.Catalog
	ask      AskFunc
}

func newApp(opts Options) *app {
	a := &app{
		fs:       opts.Fs,
		in:       opts.In,
		out:      opts.Out,
		errOut:   opts.Err,
		settings: config.Default(),
		logger:   logging.Discard(),
		catalog:  opts.Catalog,
		ask:      opts.Ask,
	}
	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.errOut == nil {
		a.errOut = os.Stderr
	}
	if a.catalog == nil {
		a.catalog = connectors.NewCatalog(connectors.Options{Out: a.out})
	}
	if a.ask == nil {
		a.ask = a.terminalAsk
	}
	return a
}

// NewRootCmd builds the minion command tree.
func NewRootCmd(opts Options) *cobra.Command {
	a := newApp(opts)
	cmd := &cobra.Command{
		Use:   "minion",
		Short: "Run YAML-described jobs that wire providers and stream functions together.",
		Long: `
minion resolves a job document whose tags construct providers, call functions
and substitute parameters, then drains the resulting stream.
`,
		Example: `  # Run a job with parameters from a file
  minion run sync.yaml -p params.yaml

  # Show the tag tree of a job without running it
  minion check sync.yaml

  # List the functions a job can call
  minion functions`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.settings.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(a.errOut, a.settings.LogLevel, a.settings.LogFormat)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}
	cmd.SetIn(a.in)
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)
	a.settings.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newCheckCmd(a))
	cmd.AddCommand(newFunctionsCmd(a))
	cmd.AddCommand(newProvidersCmd(a))
	cmd.AddCommand(newJobsCmd(a))
	cmd.AddCommand(newLogbookCmd(a))
	cmd.AddCommand(newVersionCmd(a))
	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, opts Options) int {
	cmd := NewRootCmd(opts)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		errOut := opts.Err
		if errOut == nil {
			errOut = os.Stderr
		}
		fmt.Fprintln(errOut, errorStyle.Render("Error: "+err.Error()))
		return 1
	}
	return 0
}

func (a *app) terminalAsk(ctx context.Context, path string) (any, error) {
	f, ok := a.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, errors.New("stdin is not a terminal")
	}
	return prompt.Ask(ctx, a.in, a.errOut, path)
}
