// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package cli implements the bindgraph command line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/alecthomas/kong"
	"github.com/posener/complete"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/errors/errlog"
	"github.com/terramate-io/bindgraph/errors/verbosity"
	"github.com/terramate-io/bindgraph/exit"
	"github.com/terramate-io/bindgraph/graph"
	"github.com/terramate-io/bindgraph/printer"
	"github.com/terramate-io/bindgraph/typekey"
	"github.com/willabides/kongplete"
)

// ErrNoDescriptors indicates no descriptor file was given or found in the
// working directory.
const ErrNoDescriptors errors.Kind = "no descriptor files found"

const (
	defaultLogLevel = "warn"
	defaultLogFmt   = "console"
)

// descriptorPatterns are the file patterns looked up in the working
// directory when no descriptor file is given.
var descriptorPatterns = []string{
	"bindgraph.hcl",
	"bindgraph.toml",
	"*.bindgraph.hcl",
	"*.bindgraph.toml",
}

type cliSpec struct {
	Version     struct{} `cmd:"" help:"bindgraph version"`
	VersionFlag bool     `name:"version" help:"bindgraph version"`
	Chdir       string   `short:"C" optional:"true" predictor:"dir" help:"Sets working directory"`
	LogLevel    string   `optional:"true" default:"warn" env:"BINDGRAPH_LOG_LEVEL" enum:"trace,debug,info,warn,error,fatal" help:"Log level to use: 'trace', 'debug', 'info', 'warn', 'error', or 'fatal'"`
	LogFmt      string   `optional:"true" default:"console" env:"BINDGRAPH_LOG_FMT" enum:"console,text,json" help:"Log format to use: 'console', 'text', or 'json'"`
	Verbose     int      `short:"v" type:"counter" help:"Increase the verbosity of errors, binding stacks are printed from -v on"`
	Parallel    int      `short:"j" default:"1" help:"Number of graphs resolved concurrently"`
	Graphs      []string `name:"graph" short:"g" help:"Glob pattern of the graph names to resolve, resolves every graph if not set"`

	Order struct {
		Files   []string `arg:"" optional:"true" name:"files" predictor:"file" help:"Descriptor files (bindgraph files in the working directory if not set)"`
		Reverse bool     `default:"false" help:"Reverse the generation order"`
		Short   bool     `default:"false" help:"Render types by their simple name"`
	} `cmd:"" help:"Show the generation order of the bindings of each graph"`

	Dot struct {
		Files   []string `arg:"" optional:"true" name:"files" predictor:"file" help:"Descriptor files (bindgraph files in the working directory if not set)"`
		Outfile string   `short:"o" default:"" help:"Output .dot file"`
	} `cmd:"" help:"Generate the graph of the resolved bindings in the DOT language"`

	Validate struct {
		Files []string `arg:"" optional:"true" name:"files" predictor:"file" help:"Descriptor files (bindgraph files in the working directory if not set)"`
	} `cmd:"" help:"Validate the descriptors by resolving every graph"`

	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions"`
}

// Exec executes bindgraph with the provided flags defined on args.
// Only flags should be on the args slice.
//
// Results are written on stdout and errors/warnings on stderr. The returned
// status is meant to be the process exit status.
//
// Each Exec call is isolated from each other as far as the parameters are not
// shared between the calls, apart from the global logger configuration.
func Exec(args []string, stdout, stderr io.Writer) exit.Status {
	configureLogging(defaultLogLevel, defaultLogFmt, stderr)
	c := newCLI(args, stdout, stderr)
	if c.exit {
		return c.status
	}
	return c.run()
}

type cli struct {
	ctx        *kong.Context
	parsedArgs *cliSpec
	stdout     *printer.Printer
	stderr     *printer.Printer
	output     io.Writer
	wd         string

	exit   bool
	status exit.Status
}

func newCLI(args []string, stdout, stderr io.Writer) *cli {
	if len(args) == 0 {
		// WHY: avoid default kong error, print help
		args = []string{"--help"}
	}

	logger := log.With().
		Str("action", "newCli()").
		Logger()

	kongExit := false
	kongExitStatus := 0

	errPrinter := printer.NewPrinter(stderr, verbosity.V0)

	parsedArgs := cliSpec{}
	parser, err := kong.New(&parsedArgs,
		kong.Name("bindgraph"),
		kong.Description("A tool for resolving dependency injection binding graphs"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Exit(func(status int) {
			// Avoid kong aborting entire process since we designed CLI as lib
			kongExit = true
			kongExitStatus = status
		}),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		errPrinter.ErrorWithDetailsln("failed to create cli parser", err)
		return &cli{exit: true, status: exit.Failed}
	}

	kongplete.Complete(parser,
		kongplete.WithPredictor("file", complete.PredictOr(
			complete.PredictFiles("*.hcl"),
			complete.PredictFiles("*.toml"),
		)),
		kongplete.WithPredictor("dir", complete.PredictDirs("*")),
	)

	ctx, err := parser.Parse(args)

	if kongExit && kongExitStatus == 0 {
		return &cli{exit: true, status: exit.OK}
	}

	// When we run bindgraph --version the kong parser just fails
	// since no subcommand was provided.
	// So we check if the flag for version is present before checking the error.
	if parsedArgs.VersionFlag {
		logger.Debug().Msg("Get bindgraph version using --version.")
		fmt.Fprintln(stdout, bindgraph.Version())
		return &cli{exit: true, status: exit.OK}
	}

	if err != nil {
		errPrinter.ErrorWithDetailsln(fmt.Sprintf("failed to parse cli args: %v", args), err)
		return &cli{exit: true, status: exit.Usage}
	}

	configureLogging(parsedArgs.LogLevel, parsedArgs.LogFmt, stderr)
	// If we don't re-create the logger after configuring we get some
	// log entries with a mix of default fmt and selected fmt.
	logger = log.With().
		Str("action", "newCli()").
		Logger()

	switch ctx.Command() {
	case "version":
		logger.Debug().Msg("Get bindgraph version with version subcommand.")
		fmt.Fprintln(stdout, bindgraph.Version())
		return &cli{exit: true, status: exit.OK}
	case "install-completions":
		logger.Debug().Msg("Handle `install-completions` command.")

		err := parsedArgs.InstallCompletions.Run(ctx)
		if err != nil {
			errPrinter.ErrorWithDetailsln("installing shell completions", err)
			return &cli{exit: true, status: exit.Failed}
		}
		return &cli{exit: true, status: exit.OK}
	}

	if parsedArgs.Chdir != "" {
		logger.Debug().
			Str("dir", parsedArgs.Chdir).
			Msg("Changing working directory")
		if err := os.Chdir(parsedArgs.Chdir); err != nil {
			errPrinter.ErrorWithDetailsln("changing working directory", err)
			return &cli{exit: true, status: exit.Failed}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		errPrinter.ErrorWithDetailsln("getting working directory", err)
		return &cli{exit: true, status: exit.Failed}
	}

	return &cli{
		ctx:        ctx,
		parsedArgs: &parsedArgs,
		stdout:     printer.NewPrinter(stdout, verbosity.V0),
		stderr:     printer.NewPrinter(stderr, min(parsedArgs.Verbose, verbosity.V2)),
		output:     stdout,
		wd:         wd,
	}
}

func (c *cli) run() exit.Status {
	logger := log.With().
		Str("action", "run()").
		Str("cmd", c.ctx.Command()).
		Str("workingDir", c.wd).
		Logger()

	logger.Debug().Msg("Handle command.")

	switch c.ctx.Command() {
	case "order", "order <files>":
		return c.printOrder()
	case "dot", "dot <files>":
		return c.generateGraph()
	case "validate", "validate <files>":
		return c.validate()
	default:
		logger.Error().Msg("unexpected command sequence")
		return exit.Usage
	}
}

func (c *cli) printOrder() exit.Status {
	args := c.parsedArgs.Order
	resolved, loaded, resolveErr := c.resolve(args.Files)
	if !loaded {
		return exit.Failed
	}

	for i, r := range resolved {
		if i > 0 {
			c.stdout.Println("")
		}
		c.stdout.Printf("%s:", r.Graph.Name())

		keys := slices.Clone(r.Sorted)
		if args.Reverse {
			slices.Reverse(keys)
		}
		for _, k := range keys {
			line := "\t" + k.Render(args.Short, true)
			if slices.Contains(r.Deferred, k) {
				line += " (deferred)"
			}
			c.stdout.Println(line)
		}
	}
	return c.resolveStatus(resolveErr)
}

func (c *cli) generateGraph() exit.Status {
	logger := log.With().
		Str("action", "generateGraph()").
		Str("workingDir", c.wd).
		Logger()

	args := c.parsedArgs.Dot
	resolved, loaded, resolveErr := c.resolve(args.Files)
	if !loaded {
		return exit.Failed
	}

	out := c.output
	if args.Outfile != "" {
		logger.Trace().
			Str("path", args.Outfile).
			Msg("Set output to file.")

		f, err := os.Create(args.Outfile)
		if err != nil {
			c.reportErr("opening output file", errors.E(err, "creating %s", args.Outfile))
			return exit.Failed
		}
		defer func() {
			if err := f.Close(); err != nil {
				errlog.Warn(logger, "closing output graph file", err)
			}
		}()
		out = f
	}

	logger.Debug().
		Int("graphs", len(resolved)).
		Msg("Write graphs to output.")

	for _, r := range resolved {
		if _, err := io.WriteString(out, r.Dot().String()); err != nil {
			c.reportErr("writing output", errors.E(err, "writing graph %s", r.Graph.Name()))
			return exit.Failed
		}
	}
	return c.resolveStatus(resolveErr)
}

func (c *cli) validate() exit.Status {
	resolved, loaded, resolveErr := c.resolve(c.parsedArgs.Validate.Files)
	if !loaded {
		return exit.Failed
	}

	for _, r := range resolved {
		if len(r.Broken) == 0 {
			continue
		}
		c.stderr.Warnln(fmt.Sprintf("graph %s has cycles broken by deferrable requests: %s",
			r.Graph.Name(), renderKeys(r.Deferred)))
	}
	if resolveErr != nil {
		return c.resolveStatus(resolveErr)
	}
	c.stdout.Successln(fmt.Sprintf("%d graph(s) resolved", len(resolved)))
	return exit.OK
}

// resolve loads the descriptor files and resolves the selected graphs.
// Load failures are reported on stderr and loaded is false. The graphs
// that fail to resolve are returned in err, next to the ones that did,
// for the caller to report once it has printed its output.
func (c *cli) resolve(files []string) (resolved []*graph.Resolved, loaded bool, err error) {
	logger := log.With().
		Str("action", "resolve()").
		Str("workingDir", c.wd).
		Logger()

	if len(files) == 0 {
		files, err = discover(c.wd)
		if err != nil {
			c.reportErr("looking up descriptors", err)
			return nil, false, nil
		}
	}

	logger.Debug().
		Strs("files", files).
		Msg("Load descriptors.")

	file, err := bindgraph.Load(files...)
	if err != nil {
		c.reportErr("loading descriptors", loadErr(err))
		return nil, false, nil
	}

	resolved, err = bindgraph.ResolveAll(context.Background(), file, bindgraph.Options{
		Parallel: c.parsedArgs.Parallel,
		Graphs:   c.parsedArgs.Graphs,
	})
	if err != nil {
		logger.Debug().
			Int("resolved", len(resolved)).
			Msg("Some graphs failed to resolve.")
	}
	return resolved, true, err
}

// resolveStatus reports the graphs that failed to resolve, if any.
func (c *cli) resolveStatus(err error) exit.Status {
	if err == nil {
		return exit.OK
	}
	c.reportErr("resolving graphs", err)
	return exit.Failed
}

func (c *cli) reportErr(title string, err error) {
	if c.parsedArgs.LogFmt == "json" {
		errlog.Error(log.Logger, title, err)
		return
	}
	c.stderr.ErrorWithDetailsln(title, err)
}

// loadErr adds hints to version mismatches.
func loadErr(err error) error {
	if !errors.IsKind(err, bindgraph.ErrVersion) {
		return err
	}
	return errors.D("descriptors require another bindgraph version").
		WithCode(bindgraph.ErrVersion).
		WithCause(err).
		WithDetailf(verbosity.V0, "running bindgraph %s", bindgraph.Version()).
		WithDetailf(verbosity.V1, "prereleases are accepted if allow_prereleases is set in the bindgraph block")
}

// discover looks up the descriptor files of dir.
func discover(dir string) ([]string, error) {
	var files []string
	for _, pattern := range descriptorPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, errors.E(err, "looking up %s", pattern)
		}
		for _, m := range matches {
			if !slices.Contains(files, m) {
				files = append(files, m)
			}
		}
	}
	if len(files) == 0 {
		return nil, errors.E(ErrNoDescriptors, "looking up %v in %s", descriptorPatterns, dir)
	}
	slices.Sort(files)
	return files, nil
}

func renderKeys(keys []typekey.Key) string {
	s := ""
	for i, k := range keys {
		if i > 0 {
			s += ", "
		}
		s += k.Render(true, true)
	}
	return s
}

func configureLogging(logLevel string, logFmt string, output io.Writer) {
	zloglevel, err := zerolog.ParseLevel(logLevel)

	if err != nil {
		zloglevel = zerolog.FatalLevel
	}

	zerolog.SetGlobalLevel(zloglevel)

	if logFmt == "json" {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(output)
	} else if logFmt == "text" { // no color
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: output, NoColor: true, TimeFormat: time.RFC3339})
	} else { // default: console mode using color
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: output, NoColor: false, TimeFormat: time.RFC3339})
	}
}
