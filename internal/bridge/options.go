package bridge

import (
	"log/slog"
	"time"

	"github.com/dop251/goja_nodejs/require"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	registry      *require.Registry
	queueCapacity int
	submitTimeout time.Duration
	args          []string
	bootName      string
	bootSource    string
	console       bool
}

func defaultOptions() options {
	return options{
		logger:     slog.Default(),
		bootName:   "hostbridge:boot.js",
		bootSource: bootScript,
		console:    true,
	}
}

// WithLogger sets the logger for engine lifecycle, task and console output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry shares an existing require registry. The engine registers its
// own native modules on it.
func WithRegistry(registry *require.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithQueueCapacity bounds the number of tasks waiting behind the one the
// engine is running. Once it is reached, submissions from other goroutines
// block until a slot frees up. Zero means unbounded.
func WithQueueCapacity(n int) Option {
	return func(o *options) { o.queueCapacity = n }
}

// WithSubmitTimeout makes Submit stop waiting after d. The task itself is not
// cancelled: it still runs to completion on the engine goroutine. Zero, the
// default, waits indefinitely.
func WithSubmitTimeout(d time.Duration) Option {
	return func(o *options) { o.submitTimeout = d }
}

// WithArgs sets the program arguments handed to the bootstrap script.
func WithArgs(args []string) Option {
	return func(o *options) { o.args = append([]string(nil), args...) }
}

// WithBootScript replaces the embedded bootstrap script. The replacement must
// call the handoff function with an eval callback, see boot.js.
func WithBootScript(name, source string) Option {
	return func(o *options) {
		o.bootName = name
		o.bootSource = source
	}
}

// WithConsole toggles the script console global.
func WithConsole(enabled bool) Option {
	return func(o *options) { o.console = enabled }
}
