package command

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/joeycumines/hostbridge/internal/bridge"
	"github.com/joeycumines/hostbridge/internal/config"
)

// EvalCommand evaluates an expression on a fresh engine and prints the result.
type EvalCommand struct {
	engineCommand
}

// NewEvalCommand creates a new eval command.
func NewEvalCommand(cfg *config.Config) *EvalCommand {
	return &EvalCommand{
		engineCommand: newEngineCommand(cfg,
			"eval",
			"Evaluate a JavaScript expression and print the result",
			"eval [options] <expression...>",
		),
	}
}

func (c *EvalCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New("eval: missing expression")
	}
	src := strings.Join(args, " ")
	format := c.resolveFormat()

	return c.execute(stderr, nil, func(ctx context.Context, e *bridge.Engine, _ []string) error {
		v, err := e.Evaluate(src)
		if err != nil {
			return err
		}
		return writeResult(stdout, format, v)
	})
}
