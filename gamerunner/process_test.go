package gamerunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProcessRunnerRunAndPollExit(t *testing.T) {
	r := NewProcessRunner()
	err := r.Run(context.Background(), t.TempDir(), RunParameters{
		GameConfig: "/bin/sh",
		Arguments:  []string{"-c", "exit 0"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		running, err := r.Poll()
		require.NoError(t, err)
		return !running
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessRunnerStopSendsSigterm(t *testing.T) {
	r := NewProcessRunner()
	err := r.Run(context.Background(), t.TempDir(), RunParameters{
		GameConfig: "/bin/sh",
		Arguments:  []string{"-c", "trap 'exit 0' TERM; sleep 30 & wait"},
	})
	require.NoError(t, err)

	running, err := r.Poll()
	require.NoError(t, err)
	require.True(t, running)

	require.NoError(t, r.Stop())

	require.Eventually(t, func() bool {
		running, err := r.Poll()
		require.NoError(t, err)
		return !running
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessRunnerKill(t *testing.T) {
	r := NewProcessRunner()
	err := r.Run(context.Background(), t.TempDir(), RunParameters{
		GameConfig: "/bin/sh",
		Arguments:  []string{"-c", "sleep 30"},
	})
	require.NoError(t, err)
	require.NoError(t, r.Kill())

	require.Eventually(t, func() bool {
		running, _ := r.Poll()
		return !running
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopKillWithoutRunningReturnsErrNotRunning(t *testing.T) {
	r := NewProcessRunner()
	require.ErrorIs(t, r.Stop(), ErrNotRunning)
	require.ErrorIs(t, r.Kill(), ErrNotRunning)
}
