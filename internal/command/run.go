package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/hostbridge/internal/bridge"
	"github.com/joeycumines/hostbridge/internal/config"
)

// RunCommand evaluates a script file. Arguments after the file are exposed to
// the script as require('hostbridge:host').argv.
type RunCommand struct {
	engineCommand
	quiet bool
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config) *RunCommand {
	return &RunCommand{
		engineCommand: newEngineCommand(cfg,
			"run",
			"Run a JavaScript file on the engine",
			"run [options] <script-file> [script-args...]",
		),
	}
}

func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	c.engineCommand.SetupFlags(fs)
	fs.BoolVar(&c.quiet, "quiet", false, "Do not print the script's completion value")
}

func (c *RunCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New("run: missing script file")
	}
	path := args[0]
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	quiet := c.quiet
	if !quiet {
		if quiet, err = config.DefaultSchema().ResolveCommandBool(c.config, c.Name(), "quiet"); err != nil {
			return err
		}
	}
	format := c.resolveFormat()

	return c.execute(stderr, args[1:], func(ctx context.Context, e *bridge.Engine, _ []string) error {
		v, err := e.Evaluate(string(src))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if quiet {
			return nil
		}
		return writeResult(stdout, format, v)
	})
}
