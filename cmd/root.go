// Package cmd implements the cdptab command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/liuxd6825/cdptab/cmd/state"
	"github.com/liuxd6825/cdptab/errext"
	"github.com/liuxd6825/cdptab/errext/exitcodes"
	"github.com/liuxd6825/cdptab/version"
)

// BannerColor colors the long description of the root command.
var BannerColor = color.New(color.FgCyan) //nolint:gochecknoglobals

// This is to keep all fields needed for the main/root cdptab command
type rootCommand struct {
	gs  *state.GlobalState
	cmd *cobra.Command
}

func newRootCommand(gs *state.GlobalState) *rootCommand {
	c := &rootCommand{gs: gs}
	// the base command when called without any subcommands.
	rootCmd := &cobra.Command{
		Use:               "cdptab",
		Short:             "drive a single Chromium tab over the DevTools protocol",
		Long:              BannerColor.Sprint("\ncdptab adopts or launches a Chromium browser and drives one of its tabs."),
		Version:           version.Full(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}

	rootCmd.PersistentFlags().AddFlagSet(rootCmdPersistentFlagSet(gs))
	rootCmd.SetArgs(gs.CmdArgs[1:])
	rootCmd.SetOut(gs.Stdout)
	rootCmd.SetErr(gs.Stderr)
	rootCmd.SetIn(gs.Stdin)

	rootCmd.AddCommand(
		getCmdTabs(gs),
		getCmdNavigate(gs),
		getCmdEval(gs),
		getCmdClick(gs),
		getCmdType(gs),
		getCmdScreenshot(gs),
		getCmdContent(gs),
		getCmdVersion(gs),
	)

	c.cmd = rootCmd
	return c
}

func (c *rootCommand) persistentPreRunE(_ *cobra.Command, _ []string) error {
	if err := c.setupLoggers(); err != nil {
		return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
	}

	if c.gs.Flags.NoColor {
		c.gs.Stdout.Writer = colorable.NewNonColorable(c.gs.Stdout.Writer)
		c.gs.Stderr.Writer = colorable.NewNonColorable(c.gs.Stderr.Writer)
	}
	stdlog.SetOutput(c.gs.Logger.Writer())
	c.gs.Logger.Debugf("cdptab version: v%s", version.Full())
	return nil
}

func (c *rootCommand) execute() {
	ctx, cancel := context.WithCancel(c.gs.Ctx)
	defer cancel()
	c.gs.Ctx = ctx

	err := c.cmd.Execute()
	if err == nil {
		return
	}

	exitCode := -1
	var ecerr errext.HasExitCode
	if errors.As(err, &ecerr) {
		exitCode = int(ecerr.ExitCode())
	}

	errText, fields := errext.Format(err)
	c.gs.Logger.WithFields(fields).Error(errText)

	cancel()
	c.gs.OSExit(exitCode)
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	gs := state.NewGlobalState(context.Background())
	newRootCommand(gs).execute()
}

// ExecuteWithGlobalState runs the root command with an existing GlobalState.
// It is used in tests.
func ExecuteWithGlobalState(gs *state.GlobalState) {
	newRootCommand(gs).execute()
}

func rootCmdPersistentFlagSet(gs *state.GlobalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	// The defaults of the bound values are the env-consolidated ones, so a
	// flag only overrides the environment when it is given.
	flags.BoolVarP(&gs.Flags.Verbose, "verbose", "v", gs.Flags.Verbose, "enable debug logging")
	flags.BoolVar(&gs.Flags.NoColor, "no-color", gs.Flags.NoColor, "disable colored output")
	flags.StringVar(&gs.Flags.LogOutput, "log-output", gs.Flags.LogOutput,
		"change the output for cdptab logs, possible values are stderr,stdout,none")
	flags.Lookup("log-output").DefValue = gs.DefaultFlags.LogOutput
	flags.StringVar(&gs.Flags.LogFormat, "log-format", gs.Flags.LogFormat, "log output format: text, json or raw")
	flags.Lookup("log-format").DefValue = gs.DefaultFlags.LogFormat

	flags.StringVarP(&gs.Flags.ConfigFilePath, "config", "c", gs.Flags.ConfigFilePath, "JSON config file")
	// And we also need to explicitly set the default value for the usage message here, so things
	// like `CDPTAB_CONFIG="blah" cdptab navigate -h` don't produce a weird usage message
	flags.Lookup("config").DefValue = gs.DefaultFlags.ConfigFilePath
	must(cobra.MarkFlagFilename(flags, "config"))
	return flags
}

// RawFormatter it does nothing with the message just prints it
type RawFormatter struct{}

// Format renders a single log entry
func (f RawFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return append([]byte(entry.Message), '\n'), nil
}

func (c *rootCommand) setupLoggers() error {
	if c.gs.Flags.Verbose {
		c.gs.Logger.SetLevel(logrus.DebugLevel)
	}

	switch c.gs.Flags.LogOutput {
	case "stderr":
		c.gs.Logger.SetOutput(c.gs.Stderr)
	case "stdout":
		c.gs.Logger.SetOutput(c.gs.Stdout)
	case "none":
		c.gs.Logger.SetOutput(io.Discard)
	default:
		return fmt.Errorf("unsupported log output '%s'", c.gs.Flags.LogOutput)
	}

	switch c.gs.Flags.LogFormat {
	case "raw":
		c.gs.Logger.SetFormatter(&RawFormatter{})
		c.gs.Logger.Debug("Logger format: RAW")
	case "json":
		c.gs.Logger.SetFormatter(&logrus.JSONFormatter{})
		c.gs.Logger.Debug("Logger format: JSON")
	default:
		c.gs.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors: c.gs.Stderr.IsTTY, DisableColors: c.gs.Flags.NoColor,
		})
		c.gs.Logger.Debug("Logger format: TEXT")
	}
	return nil
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
