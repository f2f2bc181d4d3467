package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/m3rciful/farebot/core/config"
	coretelegram "github.com/m3rciful/farebot/core/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfig struct{ core *coreconfig.Config }

func (f fakeConfig) CoreConfig() *coreconfig.Config { return f.core }

type fakeApp struct{ started, stopped bool }

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { a.started = true; return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { a.stopped = true; return nil },
	}, nil
}

func TestRunWiresLifecycleHooks(t *testing.T) {
	t.Setenv("FAREBOT_TEST_CONFIG", "config.yaml")
	app := &fakeApp{}
	var loadedPath string
	loggerClosed := false

	err := Run(Options{
		ConfigEnvVar: "FAREBOT_TEST_CONFIG",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedPath = path
			return fakeConfig{core: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(context.Context, ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { loggerClosed = true; return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "config.yaml", loadedPath)
	assert.True(t, app.started)
	assert.True(t, app.stopped)
	assert.True(t, loggerClosed)
}

func TestRunErrors(t *testing.T) {
	load := func(string) (ConfigCarrier, error) { return fakeConfig{core: &coreconfig.Config{}}, nil }
	boot := func(context.Context, ConfigCarrier) (TelegramApp, error) { return &fakeApp{}, nil }

	tests := []struct {
		name string
		opts Options
	}{
		{name: "missing loaders", opts: Options{DefaultConfigPath: "x"}},
		{name: "no path", opts: Options{ConfigEnvVar: "FAREBOT_UNSET_PATH", LoadConfig: load, Bootstrap: boot}},
		{name: "load fails", opts: Options{DefaultConfigPath: "x", Bootstrap: boot, LoadConfig: func(string) (ConfigCarrier, error) {
			return nil, errors.New("bad yaml")
		}}},
		{name: "missing core", opts: Options{DefaultConfigPath: "x", Bootstrap: boot, LoadConfig: func(string) (ConfigCarrier, error) {
			return fakeConfig{}, nil
		}}},
		{name: "bootstrap fails", opts: Options{DefaultConfigPath: "x", LoadConfig: load, ShutdownLogger: func() error { return nil },
			Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) { return nil, errors.New("db down") }}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Run(tt.opts))
		})
	}
}
