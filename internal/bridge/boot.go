package bridge

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
	"github.com/joeycumines/hostbridge/internal/goroutineid"
	"github.com/joeycumines/hostbridge/internal/taskqueue"
)

//go:embed boot.js
var bootScript string

const (
	hostModuleName = "hostbridge:host"
	handoffName    = "__hostbridge_boot"
)

// MainFunc is the host entry point started by Boot. It runs on its own
// goroutine and may submit tasks freely.
type MainFunc func(ctx context.Context, e *Engine, args []string) error

// Boot creates and starts an engine, runs main on a separate goroutine, and
// closes the engine once main returns or ctx is done. It returns main's error.
func Boot(ctx context.Context, main MainFunc, opts ...Option) error {
	if main == nil {
		return errors.New("bridge: nil main function")
	}
	e, err := New(opts...)
	if err != nil {
		return err
	}
	if err := e.Start(); err != nil {
		return err
	}
	defer e.Close()

	errCh := make(chan error, 1)
	go func() {
		t := taskqueue.NewTask(func() (any, error) {
			return nil, main(ctx, e, e.Args())
		})
		t.Run()
		_, err := t.Result()
		errCh <- err
	}()

	select {
	case err := <-errCh:
		e.logger.Debug("host main returned", slog.Any("error", err))
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// boot runs on the engine goroutine. It records the goroutine identity, then
// evaluates the bootstrap script, which must hand back an eval callback.
func (e *Engine) boot(vm *goja.Runtime) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bootstrap panicked: %v", r)
		}
	}()

	id := goroutineid.Get()
	if id == 0 {
		return errors.New("unable to identify the engine goroutine")
	}
	e.loopID.Store(id)
	e.vm = vm

	if proto, ok := vm.Get("Object").(*goja.Object); ok {
		if p, ok := proto.Get("prototype").(*goja.Object); ok {
			e.objectProto = p
		}
	}

	global := vm.GlobalObject()
	if err := global.DefineDataProperty(importName, vm.ToValue(e.jsImport), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return fmt.Errorf("define import primitive: %w", err)
	}
	if err := global.Set(handoffName, e.jsHandoff); err != nil {
		return fmt.Errorf("expose handoff: %w", err)
	}
	defer global.Delete(handoffName)

	if _, err := vm.RunScript(e.opts.bootName, e.opts.bootSource); err != nil {
		return fmt.Errorf("run %s: %w", e.opts.bootName, err)
	}
	if e.evalFn == nil {
		return fmt.Errorf("%s did not call %s", e.opts.bootName, handoffName)
	}
	return nil
}

// jsHandoff is called by the bootstrap script with (evalCallback, argv). The
// argv it hands back is what Args, and so the host entry point, receives;
// omitting it keeps the configured arguments.
func (e *Engine) jsHandoff(call goja.FunctionCall) goja.Value {
	if e.evalFn != nil {
		panic(e.vm.NewTypeError("%s: already booted", handoffName))
	}
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(e.vm.NewTypeError("%s: eval callback is not a function", handoffName))
	}
	if arg := call.Argument(1); !goja.IsUndefined(arg) {
		var argv []string
		if err := e.vm.ExportTo(arg, &argv); err != nil || goja.IsNull(arg) {
			panic(e.vm.NewTypeError("%s: argv is not an array of strings", handoffName))
		}
		e.argv = argv
	}
	e.evalFn = fn
	return goja.Undefined()
}

// requireHost loads the hostbridge:host module, which exposes the program
// arguments to the bootstrap and to scripts.
func (e *Engine) requireHost(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	argv := make([]any, len(e.opts.args))
	for i, a := range e.opts.args {
		argv[i] = a
	}
	_ = exports.Set("argv", vm.NewArray(argv...))
}

// consolePrinter routes the script console to the engine logger.
type consolePrinter struct {
	logger *slog.Logger
}

func (p consolePrinter) Log(s string) {
	p.logger.Info(s, slog.String("source", "console"))
}

func (p consolePrinter) Warn(s string) {
	p.logger.Warn(s, slog.String("source", "console"))
}

func (p consolePrinter) Error(s string) {
	p.logger.Error(s, slog.String("source", "console"))
}
