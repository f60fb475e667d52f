package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yonaka/mcp-cli/internal/daemon"
	"github.com/yonaka/mcp-cli/internal/errors"
	"github.com/yonaka/mcp-cli/internal/profile"
	"github.com/yonaka/mcp-cli/internal/state"
)

func stubProfile(supportsDaemon bool) *profile.ServerProfile {
	return &profile.ServerProfile{
		Command:        []string{os.Args[0]},
		SupportsDaemon: supportsDaemon,
		Env:            map[string]string{serverModeEnv: "echo"},
	}
}

func testKey(t *testing.T, server string) state.Key {
	t.Helper()

	key, err := state.NewKey(t.TempDir(), server)
	require.NoError(t, err)

	return key
}

// startDaemonFor runs an in-process daemon for the key and records the
// pid the supervisor would have written, so the router sees it as
// running.
func startDaemonFor(t *testing.T, key state.Key, prof *profile.ServerProfile) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- daemon.Run(ctx, slog.Default(), key, prof, daemon.Options{})
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("daemon did not shut down")
		}
	})

	st := state.New(key)

	require.Eventually(t, func() bool {
		_, err := st.ReadAddr()

		return err == nil
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, st.WritePID(os.Getpid()))
}

func pidOfCall(t *testing.T, r *Router, key state.Key, prof *profile.ServerProfile) string {
	t.Helper()

	result, err := r.CallTool(context.Background(), key, prof, "pid", json.RawMessage(`{}`), Options{})
	require.NoError(t, err)

	return firstText(t, result)
}

func firstText(t *testing.T, result json.RawMessage) string {
	t.Helper()

	var payload struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}

	require.NoError(t, json.Unmarshal(result, &payload))
	require.NotEmpty(t, payload.Content)

	return payload.Content[0].Text
}

func TestRouter_DirectCall(t *testing.T) {
	r := New(slog.Default())
	key := testKey(t, "direct")

	result, err := r.CallTool(context.Background(), key, stubProfile(false), "echo",
		json.RawMessage(`{"text":"direct path"}`), Options{})
	require.NoError(t, err)
	require.Equal(t, "direct path", firstText(t, result))

	// Plain calls never leave daemon state behind.
	require.NoDirExists(t, filepath.Join(key.Dir, ".mcp-profile"))
}

func TestRouter_ListTools(t *testing.T) {
	r := New(slog.Default())
	key := testKey(t, "listing")

	result, err := r.ListTools(context.Background(), key, stubProfile(false), Options{})
	require.NoError(t, err)

	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}

	require.NoError(t, json.Unmarshal(result, &list))
	require.Len(t, list.Tools, 3)
}

func TestRouter_ToolErrorSurfaced(t *testing.T) {
	r := New(slog.Default())
	key := testKey(t, "failing")

	_, err := r.CallTool(context.Background(), key, stubProfile(false), "fail",
		json.RawMessage(`{}`), Options{})

	var toolErr *errors.ToolError

	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, "fail", toolErr.Tool)
	require.Equal(t, "deliberate failure", toolErr.Message)
}

func TestRouter_NoDaemonFallsBackToDirect(t *testing.T) {
	// supports_daemon is on but nothing is running: each call gets its
	// own fresh process.
	r := New(slog.Default())
	key := testKey(t, "nodaemon")
	prof := stubProfile(true)

	first := pidOfCall(t, r, key, prof)
	second := pidOfCall(t, r, key, prof)

	require.NotEqual(t, first, second)
}

func TestRouter_UsesRunningDaemon(t *testing.T) {
	r := New(slog.Default())
	key := testKey(t, "routed")
	prof := stubProfile(true)

	startDaemonFor(t, key, prof)

	// Both calls ride the daemon's one backing process.
	first := pidOfCall(t, r, key, prof)
	second := pidOfCall(t, r, key, prof)

	require.Equal(t, first, second)
	require.NotEqual(t, "", first)
}

func TestRouter_DaemonNeverUsedWhenUnsupported(t *testing.T) {
	r := New(slog.Default())
	key := testKey(t, "forbidden")

	// A daemon is running for this key, but the profile forbids daemon
	// mode; calls must go direct regardless.
	daemonProf := stubProfile(true)
	startDaemonFor(t, key, daemonProf)

	directProf := stubProfile(false)

	first := pidOfCall(t, r, key, directProf)
	second := pidOfCall(t, r, key, directProf)

	require.NotEqual(t, first, second)
}

func TestRouter_Session(t *testing.T) {
	r := New(slog.Default())
	key := testKey(t, "session")

	session, err := r.Connect(context.Background(), key, stubProfile(true), Options{})
	require.NoError(t, err)

	defer func() { _ = session.Close() }()

	list, err := session.ListTools(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, list)

	// All session calls share one server process.
	firstPID, err := session.CallTool(context.Background(), "pid", nil)
	require.NoError(t, err)

	secondPID, err := session.CallTool(context.Background(), "pid", nil)
	require.NoError(t, err)

	require.Equal(t, firstText(t, firstPID), firstText(t, secondPID))
}

func TestToolCallParams(t *testing.T) {
	params, err := toolCallParams(`we"ird`, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"we\"ird","arguments":{"a":1}}`, string(params))
}

func TestToolCallParams_DefaultsEmptyArgs(t *testing.T) {
	params, err := toolCallParams("echo", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"echo","arguments":{}}`, string(params))
}

func TestCheckToolResult(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		wantErr string
	}{
		{
			name:   "success result",
			result: `{"content":[{"type":"text","text":"ok"}]}`,
		},
		{
			name:   "explicit isError false",
			result: `{"content":[],"isError":false}`,
		},
		{
			name:    "error with message",
			result:  `{"content":[{"type":"text","text":"index unavailable"}],"isError":true}`,
			wantErr: `tool "search" failed: index unavailable`,
		},
		{
			name:    "error without content",
			result:  `{"content":[],"isError":true}`,
			wantErr: `tool "search" failed: tool execution failed`,
		},
		{
			name:   "unparseable result tolerated",
			result: `"just a string"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkToolResult("search", json.RawMessage(tt.result))
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.EqualError(t, err, tt.wantErr)
		})
	}
}
