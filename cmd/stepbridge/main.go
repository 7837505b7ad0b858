package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/stepbridge/cmd/stepbridge/commands"
	"github.com/slok/stepbridge/internal/log"
	loglogrus "github.com/slok/stepbridge/internal/log/logrus"
	"github.com/slok/stepbridge/internal/model"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("stepbridge", "Run pipeline step commands on local and remote execution targets.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	platformCmd := commands.NewPlatformCommand(rootCmd, app)
	envCmd := commands.NewEnvCommand(rootCmd, app)
	execCmd := commands.NewExecCommand(rootCmd, app)
	runCmd := commands.NewRunCommand(rootCmd, app)
	historyCmd := commands.NewHistoryCommand(rootCmd, app)
	doctorCmd := commands.NewDoctorCommand(rootCmd, app)
	agentCmd := commands.NewAgentCommand(rootCmd, app)

	cmds := map[string]commands.Command{
		platformCmd.Name(): platformCmd,
		envCmd.Name():      envCmd,
		execCmd.Name():     execCmd,
		runCmd.Name():      runCmd,
		historyCmd.Name():  historyCmd,
		doctorCmd.Name():   doctorCmd,
		agentCmd.Name():    agentCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Commands with structured output are quiet unless debugging, so logs don't mix
	// with the printed output.
	printerCommands := map[string]bool{
		"platform": true,
		"env":      true,
		"history":  true,
	}
	if printerCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(*rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Logs go to stderr so they don't mix with the command output.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	// Log format.
	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled") // Will log only when debug enabled.

	return logger
}

// exitCode returns the process exit code of an application error. Bridged commands
// exit with their own code.
func exitCode(err error) int {
	var exitErr commands.ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		code := exitCode(err)
		var exitErr commands.ExitCodeError
		if !errors.As(err, &exitErr) {
			if kind := model.ErrorKind(err); kind != model.ErrorKindUnknown {
				fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", kind, err)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			}
		}
		os.Exit(code)
	}
}
