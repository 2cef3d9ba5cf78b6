package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undolab/saferun/internal/action"
	"github.com/undolab/saferun/internal/state"
)

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "denied")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad path", errors.New("cause"))))
}

func TestExitErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := WrapExitError(ExitCommandError, "wrapped", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "wrapped: cause", err.Error())
}

func TestLoadActionFromFlags(t *testing.T) {
	opts := &ExecuteOptions{
		RootOptions: &RootOptions{},
		Target:      "post-1",
		Params:      `{"title":"New"}`,
	}
	act, err := loadAction(opts, []string{"update_post"})
	require.NoError(t, err)
	assert.Equal(t, action.UpdatePost, act.Type)
	assert.Equal(t, "post-1", act.Target)
	assert.Equal(t, state.String("New"), act.Params["title"])
}

func TestLoadActionInvalidParams(t *testing.T) {
	opts := &ExecuteOptions{RootOptions: &RootOptions{}, Params: `{not json`}
	_, err := loadAction(opts, []string{"create_post"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--params")
}

func TestLoadActionNoTypeNoFile(t *testing.T) {
	opts := &ExecuteOptions{RootOptions: &RootOptions{}, Params: "{}"}
	_, err := loadAction(opts, nil)
	require.Error(t, err)
}

func TestLoadActionFileAndArgsConflict(t *testing.T) {
	opts := &ExecuteOptions{RootOptions: &RootOptions{}, File: "action.yaml", Params: "{}"}
	_, err := loadAction(opts, []string{"create_post"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadActionFileYAML(t *testing.T) {
	path := writeTempFile(t, "action.yaml", `type: set_post_meta
target: post-7
params:
  key: views
  value: 42
`)
	act, err := loadActionFile(path)
	require.NoError(t, err)
	assert.Equal(t, action.SetPostMeta, act.Type)
	assert.Equal(t, "post-7", act.Target)
	assert.Equal(t, state.String("views"), act.Params["key"])
	assert.Equal(t, state.Int(42), act.Params["value"])
}

func TestLoadActionFileJSON(t *testing.T) {
	path := writeTempFile(t, "action.json",
		`{"type": "delete_post", "target": "post-3"}`)
	act, err := loadActionFile(path)
	require.NoError(t, err)
	assert.Equal(t, action.DeletePost, act.Type)
	assert.Equal(t, "post-3", act.Target)
	assert.Empty(t, act.Params)
}

func TestLoadActionFileMissingType(t *testing.T) {
	path := writeTempFile(t, "action.yaml", `target: post-1`)
	_, err := loadActionFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action type")
}

func TestOutputFormatterSuccessJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Success(map[string]string{"id": "snap-1"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatterErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Error("permission_denied", "capability edit_posts required", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "permission_denied", resp.Error.Code)
}

func TestOutputFormatterVerboseGoesToErrWriter(t *testing.T) {
	var out, errOut bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &out, ErrWriter: &errOut, Verbose: true}
	f.VerboseLog("loaded %d snapshots", 3)
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "loaded 3 snapshots")
}
