package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/TolesaD/botomics/core/config"
	coretelegram "github.com/TolesaD/botomics/core/telegram"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

type fakeApp struct {
	started, stopped, closed bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, *tele.Bot) error {
			a.started = true
			return nil
		},
		OnStop: func(context.Context, *tele.Bot) error {
			a.stopped = true
			return nil
		},
	}, nil
}

func (a *fakeApp) Close() error {
	a.closed = true
	return nil
}

func baseOptions(app *fakeApp) Options {
	return Options{
		ConfigPath: "test.yaml",
		LoadConfig: func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap: func(context.Context, *coreconfig.Config) (TelegramApp, error) {
			return app, nil
		},
		ShutdownLogger: func() error { return nil },
		Signals: func() (context.Context, context.CancelFunc) {
			return context.WithCancel(context.Background())
		},
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("BOTOMICS_TEST_CONFIG", "")

	p, err := Options{ConfigPath: "a.yaml", ConfigEnvVar: "BOTOMICS_TEST_CONFIG"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "a.yaml", p)

	t.Setenv("BOTOMICS_TEST_CONFIG", "env.yaml")
	p, err = Options{ConfigEnvVar: "BOTOMICS_TEST_CONFIG", DefaultConfigPath: "d.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "env.yaml", p)

	t.Setenv("BOTOMICS_TEST_CONFIG", "")
	p, err = Options{ConfigEnvVar: "BOTOMICS_TEST_CONFIG", DefaultConfigPath: "d.yaml"}.ResolveConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "d.yaml", p)

	_, err = Options{ConfigEnvVar: "BOTOMICS_TEST_CONFIG"}.ResolveConfigPath()
	assert.Error(t, err)
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	app := &fakeApp{}
	opts := baseOptions(app)
	opts.RunTelegram = func(ctx context.Context, ro coretelegram.RunOptions) error {
		require.NoError(t, ro.OnStart(ctx, nil))
		return ro.OnStop(ctx, nil)
	}

	require.NoError(t, Run(opts))
	assert.True(t, app.started)
	assert.True(t, app.stopped)
	assert.True(t, app.closed)
}

func TestRunReportsBootstrapFailure(t *testing.T) {
	opts := baseOptions(&fakeApp{})
	opts.Bootstrap = func(context.Context, *coreconfig.Config) (TelegramApp, error) {
		return nil, errors.New("db down")
	}
	opts.RunTelegram = func(context.Context, coretelegram.RunOptions) error {
		t.Fatal("runtime must not start")
		return nil
	}

	err := Run(opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRunRequiresLoaders(t *testing.T) {
	assert.Error(t, Run(Options{}))
	assert.Error(t, Run(Options{LoadConfig: coreconfig.Load}))
}
