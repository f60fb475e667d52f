package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yonaka/mcp-cli/internal/errors"
	"github.com/yonaka/mcp-cli/internal/state"
)

// inProcessSpawn runs the daemon inside the test process instead of
// detaching a child, reporting the test binary's own pid. The supervisor
// polls for the same socket path the in-process daemon binds, because
// both derive it from that pid.
func inProcessSpawn(t *testing.T) SpawnFunc {
	t.Helper()

	return func(key state.Key, _ string, extraArgs []string) (int, error) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() {
			done <- Run(ctx, slog.Default(), key, stubProfile(), Options{ExtraArgs: extraArgs})
		}()

		t.Cleanup(func() {
			cancel()

			select {
			case <-done:
			case <-time.After(10 * time.Second):
				t.Error("in-process daemon did not shut down")
			}
		})

		return os.Getpid(), nil
	}
}

func newTestSupervisor(t *testing.T, server string, spawn SpawnFunc) (*Supervisor, state.Key) {
	t.Helper()

	key, err := state.NewKey(t.TempDir(), server)
	require.NoError(t, err)

	return NewSupervisor(slog.Default(), key, spawn), key
}

func TestSupervisor_Status_NothingRecorded(t *testing.T) {
	sup, _ := newTestSupervisor(t, "fresh", nil)

	status, err := sup.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateNotRunning, status.State)
}

func TestSupervisor_Status_DeadPidCleanedUp(t *testing.T) {
	sup, key := newTestSupervisor(t, "deadpid", nil)

	// A process that has already exited gives us a pid that is certainly
	// not alive.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Run())

	st := state.New(key)
	require.NoError(t, st.EnsureDir())
	require.NoError(t, st.WritePID(cmd.Process.Pid))

	status, err := sup.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateNotRunning, status.State)
	require.False(t, st.HasPID())
}

func TestSupervisor_Status_CorruptPidCleanedUp(t *testing.T) {
	sup, key := newTestSupervisor(t, "corrupt", nil)

	st := state.New(key)
	require.NoError(t, st.EnsureDir())
	require.NoError(t, os.WriteFile(st.PIDPath(), []byte("garbage"), 0o600))

	status, err := sup.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateNotRunning, status.State)
	require.False(t, st.HasPID())
}

func TestSupervisor_Status_LivePidWithoutSocketIsStale(t *testing.T) {
	sup, key := newTestSupervisor(t, "stale", nil)

	st := state.New(key)
	require.NoError(t, st.EnsureDir())
	require.NoError(t, st.WritePID(os.Getpid()))

	status, err := sup.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateStale, status.State)
	require.Equal(t, os.Getpid(), status.PID)
}

func TestSupervisor_Start_Unsupported(t *testing.T) {
	sup, _ := newTestSupervisor(t, "nodaemon", nil)

	prof := stubProfile()
	prof.SupportsDaemon = false

	_, err := sup.Start(context.Background(), prof, nil)
	require.ErrorIs(t, err, errors.ErrUnsupportedDaemonMode)
}

func TestSupervisor_Start_SpawnFailure(t *testing.T) {
	spawn := func(state.Key, string, []string) (int, error) {
		return 0, fmt.Errorf("fork bomb protection engaged")
	}

	sup, _ := newTestSupervisor(t, "spawnfail", spawn)

	_, err := sup.Start(context.Background(), stubProfile(), nil)

	var startErr *errors.DaemonStartError

	require.ErrorAs(t, err, &startErr)
	require.Equal(t, "spawnfail", startErr.Server)
}

func TestSupervisor_StartAndStatus(t *testing.T) {
	sup, _ := newTestSupervisor(t, "lifecycle", inProcessSpawn(t))

	info, err := sup.Start(context.Background(), stubProfile(), nil)
	require.NoError(t, err)
	require.Equal(t, StateRunning, info.State)
	require.Equal(t, os.Getpid(), info.PID)
	require.NotEmpty(t, info.Socket)

	status, err := sup.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateRunning, status.State)
	require.Equal(t, info.Socket, status.Socket)
}

func TestSupervisor_Start_AlreadyRunning(t *testing.T) {
	sup, _ := newTestSupervisor(t, "twice", inProcessSpawn(t))

	_, err := sup.Start(context.Background(), stubProfile(), nil)
	require.NoError(t, err)

	_, err = sup.Start(context.Background(), stubProfile(), nil)
	require.ErrorIs(t, err, errors.ErrDaemonAlreadyRunning)
}

func TestSupervisor_DirectoryIsolation(t *testing.T) {
	// A daemon for one working directory is invisible to another.
	supA, _ := newTestSupervisor(t, "isolated", inProcessSpawn(t))

	_, err := supA.Start(context.Background(), stubProfile(), nil)
	require.NoError(t, err)

	keyB, err := state.NewKey(t.TempDir(), "isolated-b")
	require.NoError(t, err)

	supB := NewSupervisor(slog.Default(), keyB, nil)

	status, err := supB.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateNotRunning, status.State)
}

func TestSupervisor_Stop_Idempotent(t *testing.T) {
	sup, key := newTestSupervisor(t, "stopnone", nil)

	// Leftover records from a long-dead daemon.
	st := state.New(key)
	require.NoError(t, st.EnsureDir())
	require.NoError(t, os.WriteFile(st.LogPath(), []byte("old log\n"), 0o600))

	require.NoError(t, sup.Stop(context.Background()))
	require.NoFileExists(t, st.LogPath())

	// Stopping again is still not an error.
	require.NoError(t, sup.Stop(context.Background()))
}

func TestSupervisor_Stop_TerminatesStaleProcess(t *testing.T) {
	sup, key := newTestSupervisor(t, "stopstale", nil)

	// A live process with recorded pid but no answering socket: the
	// supervisor still owns shutting it down.
	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())

	pid := cmd.Process.Pid

	go func() { _ = cmd.Wait() }()

	st := state.New(key)
	require.NoError(t, st.EnsureDir())
	require.NoError(t, st.WritePID(pid))

	require.NoError(t, sup.Stop(context.Background()))
	require.False(t, st.HasPID())

	require.Eventually(t, func() bool {
		return !processAlive(pid)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "not running", StateNotRunning.String())
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "stale", StateStale.String())
}
