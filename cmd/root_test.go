package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/archivebot/internal/config"
)

type fakeApp struct {
	runErr error
	ran    int
	closed int
}

func (f *fakeApp) Run(context.Context) error {
	f.ran++
	return f.runErr
}

func (f *fakeApp) Close(context.Context) error {
	f.closed++
	return nil
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func withFakeApp(t *testing.T, fake *fakeApp) *config.Config {
	t.Helper()
	var got config.Config
	prev := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		got = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = prev })
	return &got
}

func TestServeRunsAndClosesApp(t *testing.T) {
	t.Setenv("ARCHIVEBOT_IRC_HOST", "irc.example.net")
	fake := &fakeApp{}
	got := withFakeApp(t, fake)

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--nick", "grabber", "--channel", "#a", "--channel", "#b", "--max-workers", "3"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	require.Equal(t, 1, fake.ran)
	require.Equal(t, 1, fake.closed, "close runs once across RunE and PersistentPostRun")
	require.Equal(t, "grabber", got.IRC.Nick)
	require.Equal(t, []string{"#a", "#b"}, got.IRC.Channels)
	require.Equal(t, 3, got.Worker.MaxConcurrent)
}

func TestServeReturnsRunError(t *testing.T) {
	t.Setenv("ARCHIVEBOT_IRC_HOST", "irc.example.net")
	fake := &fakeApp{runErr: errors.New("listen failed")}
	withFakeApp(t, fake)

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--channel", "#a"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "listen failed")
	require.Equal(t, 1, fake.closed)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	t.Setenv("ARCHIVEBOT_IRC_HOST", "")
	fake := &fakeApp{}
	withFakeApp(t, fake)

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--channel", "#a"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "irc.host")
	require.Zero(t, fake.ran)
}
