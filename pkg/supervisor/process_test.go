package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagedProcess_StartStopLifecycle(t *testing.T) {
	p := NewManagedProcess("test", "sh", []string{"-c", "sleep 5"}, zerolog.Nop())

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())

	require.NoError(t, p.Stop(2*time.Second))
	assert.False(t, p.IsRunning())
}

func TestManagedProcess_StopForceKillsPastGrace(t *testing.T) {
	p := NewManagedProcess("stubborn", "sh", []string{"-c", "trap '' TERM; sleep 30"}, zerolog.Nop())

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Stop(100*time.Millisecond))
	assert.False(t, p.IsRunning())
}

func TestManagedProcess_RecordRestartIncrementsCounter(t *testing.T) {
	p := NewManagedProcess("test", "sh", []string{"-c", "true"}, zerolog.Nop())
	assert.Equal(t, 0, p.RestartCount())
	p.RecordRestart()
	p.RecordRestart()
	assert.Equal(t, 2, p.RestartCount())
}

func TestManagedProcess_StartTwiceWithoutStopFails(t *testing.T) {
	p := NewManagedProcess("test", "sh", []string{"-c", "sleep 5"}, zerolog.Nop())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(time.Second)

	err := p.Start(context.Background())
	assert.Error(t, err)
}
