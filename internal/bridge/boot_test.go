package bridge_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/hostbridge/internal/bridge"
	"github.com/joeycumines/hostbridge/internal/taskqueue"
	"github.com/joeycumines/hostbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoot_PassesArgs(t *testing.T) {
	var (
		gotArgs []string
		argv    string
		engine  *bridge.Engine
	)
	err := bridge.Boot(context.Background(), func(ctx context.Context, e *bridge.Engine, args []string) error {
		engine = e
		gotArgs = args
		v, err := e.Evaluate("require('hostbridge:host').argv.join(' ')")
		if err != nil {
			return err
		}
		argv, _ = v.(string)
		return nil
	}, bridge.WithArgs([]string{"alpha", "beta"}), bridge.WithLogger(testutil.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta"}, gotArgs)
	assert.Equal(t, "alpha beta", argv)
	assert.False(t, engine.IsRunning(), "engine closed once main returns")
}

func TestBoot_HandoffRemoved(t *testing.T) {
	e := testutil.NewEngine(t)

	v, err := e.Evaluate("typeof __hostbridge_boot")
	require.NoError(t, err)
	assert.Equal(t, "undefined", v)
}

func TestBoot_MainError(t *testing.T) {
	sentinel := errors.New("main failed")
	err := bridge.Boot(context.Background(), func(context.Context, *bridge.Engine, []string) error {
		return sentinel
	}, bridge.WithLogger(testutil.NewLogger(t)))
	assert.ErrorIs(t, err, sentinel)
}

func TestBoot_MainPanics(t *testing.T) {
	err := bridge.Boot(context.Background(), func(context.Context, *bridge.Engine, []string) error {
		panic("main exploded")
	}, bridge.WithLogger(testutil.NewLogger(t)))
	var pe *taskqueue.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "main exploded", pe.Value)
}

func TestBoot_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bridge.Boot(ctx, func(context.Context, *bridge.Engine, []string) error {
		<-release
		return nil
	}, bridge.WithLogger(testutil.NewLogger(t)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBoot_NilMain(t *testing.T) {
	assert.Error(t, bridge.Boot(context.Background(), nil))
}

func TestBoot_CustomRegistryModule(t *testing.T) {
	e, err := bridge.New(bridge.WithLogger(testutil.NewLogger(t)))
	require.NoError(t, err)
	e.Registry().RegisterNativeModule("test:upper", func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		_ = exports.Set("upper", strings.ToUpper)
	})
	require.NoError(t, e.Start())
	t.Cleanup(func() { _ = e.Close() })

	v, err := e.Evaluate("require('test:upper').upper('shout')")
	require.NoError(t, err)
	assert.Equal(t, "SHOUT", v)
}

func TestBoot_ConsoleDisabled(t *testing.T) {
	var logs testutil.LogBuffer
	e := testutil.NewEngine(t, bridge.WithLogger(logs.Logger()), bridge.WithConsole(false))

	v, err := e.Evaluate("typeof console")
	require.NoError(t, err)
	assert.Equal(t, "undefined", v)
	assert.NotContains(t, logs.String(), `"source":"console"`)
}

func TestBoot_HandoffArgvReachesHost(t *testing.T) {
	const source = `__hostbridge_boot(function (src) { return (0, eval)(src); },
	require('hostbridge:host').argv.concat(['--from-boot']));`

	var gotArgs []string
	err := bridge.Boot(context.Background(), func(ctx context.Context, e *bridge.Engine, args []string) error {
		gotArgs = args
		return nil
	},
		bridge.WithArgs([]string{"alpha"}),
		bridge.WithBootScript("test:boot.js", source),
		bridge.WithLogger(testutil.NewLogger(t)),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "--from-boot"}, gotArgs)
}

func TestBoot_HandoffWithoutArgvKeepsArgs(t *testing.T) {
	e, err := bridge.New(
		bridge.WithArgs([]string{"alpha"}),
		bridge.WithBootScript("test:boot.js", "__hostbridge_boot(function (src) { return (0, eval)(src); })"),
		bridge.WithLogger(testutil.NewLogger(t)),
	)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(func() { assert.NoError(t, e.Close()) })

	assert.Equal(t, []string{"alpha"}, e.Args())
}

func TestBoot_HandoffRejectsBadArgv(t *testing.T) {
	for _, argv := range []string{"42", "null"} {
		t.Run(argv, func(t *testing.T) {
			e, err := bridge.New(
				bridge.WithBootScript("test:boot.js", "__hostbridge_boot(function (src) { return src; }, "+argv+")"),
				bridge.WithLogger(testutil.NewLogger(t)),
			)
			require.NoError(t, err)
			err = e.Start()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "argv is not an array of strings")
			assert.NoError(t, e.Close())
		})
	}
}
