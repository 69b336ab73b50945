package command

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/hostbridge/internal/bridge"
	"github.com/joeycumines/hostbridge/internal/config"
	"github.com/joeycumines/hostbridge/internal/logging"
)

// engineCommand holds what eval and run share: logging flags, config and
// the boot hook.
type engineCommand struct {
	*BaseCommand
	config   *config.Config
	logFile  string
	logLevel string
	format   string

	// boot defaults to bridge.Boot.
	boot func(context.Context, bridge.MainFunc, ...bridge.Option) error
	// ctxFactory defaults to cancellation on SIGINT and SIGTERM.
	ctxFactory func() (context.Context, context.CancelFunc)
}

func newEngineCommand(cfg *config.Config, name, description, usage string) engineCommand {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return engineCommand{
		BaseCommand: NewBaseCommand(name, description, usage),
		config:      cfg,
		boot:        bridge.Boot,
	}
}

func (c *engineCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.logFile, "log-file", "", "Path to log file (JSON output, size-rotated)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&c.format, "format", "", "Result format (text, json)")
}

func (c *engineCommand) context() (context.Context, context.CancelFunc) {
	if c.ctxFactory != nil {
		return c.ctxFactory()
	}
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// logger resolves logging from flags, then config, then defaults. The closer
// must be called once the engine is closed.
func (c *engineCommand) logger(stderr io.Writer) (*slog.Logger, io.Closer, error) {
	schema := config.DefaultSchema()
	opts := logging.Options{
		Level:  c.logLevel,
		File:   c.logFile,
		Stderr: stderr,
	}
	if opts.Level == "" {
		opts.Level = schema.Resolve(c.config, "log.level")
	}
	if opts.File == "" {
		opts.File = schema.Resolve(c.config, "log.file")
	}
	var err error
	if opts.MaxSizeMB, err = schema.ResolveInt(c.config, "log.max-size-mb"); err != nil {
		return nil, nil, err
	}
	if opts.MaxFiles, err = schema.ResolveInt(c.config, "log.max-files"); err != nil {
		return nil, nil, err
	}
	return logging.New(opts)
}

// engineOptions maps the bridge.* config options onto engine options.
func (c *engineCommand) engineOptions(logger *slog.Logger, args []string) ([]bridge.Option, error) {
	schema := config.DefaultSchema()
	capacity, err := schema.ResolveInt(c.config, "bridge.queue-capacity")
	if err != nil {
		return nil, err
	}
	timeout, err := schema.ResolveDuration(c.config, "bridge.submit-timeout")
	if err != nil {
		return nil, err
	}
	console, err := schema.ResolveBool(c.config, "bridge.console")
	if err != nil {
		return nil, err
	}
	return []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithQueueCapacity(capacity),
		bridge.WithSubmitTimeout(timeout),
		bridge.WithConsole(console),
		bridge.WithArgs(args),
	}, nil
}

// execute boots an engine with args and runs main on it.
func (c *engineCommand) execute(stderr io.Writer, args []string, main bridge.MainFunc) error {
	ctx, cancel := c.context()
	defer cancel()

	logger, closer, err := c.logger(stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	opts, err := c.engineOptions(logger, args)
	if err != nil {
		return err
	}
	return c.boot(ctx, main, opts...)
}

func (c *engineCommand) resolveFormat() string {
	if c.format != "" {
		return c.format
	}
	return config.DefaultSchema().ResolveCommand(c.config, c.Name(), "format")
}

// writeResult prints a script completion value. In text format undefined
// and null print nothing.
func writeResult(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		if v == nil {
			return nil
		}
		_, err := fmt.Fprintln(w, v)
		return err
	}
	return fmt.Errorf("unknown format: %s", format)
}
