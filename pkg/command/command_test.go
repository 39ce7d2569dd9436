package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerRun(t *testing.T) {
	r := NewExecRunner()
	out, err := r.Run(context.Background(), "/bin/echo", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestExecRunnerExitCode(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), "/bin/sh", "-c", "echo oops >&2; exit 4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 4")
	assert.Contains(t, err.Error(), "oops")
}

func TestExecRunnerTimeout(t *testing.T) {
	r := &ExecRunner{Timeout: 50 * time.Millisecond}
	_, err := r.Run(context.Background(), "/bin/sh", "-c", "sleep 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner()
	_, err := r.Run(context.Background(), "/no/such/binary")
	require.Error(t, err)
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require("/bin/sh"))

	err := Require("/bin/sh", "/no/such/binary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/no/such/binary")
}

func TestFakeCallLine(t *testing.T) {
	c := FakeCall{Name: "/usr/bin/defaults", Args: []string{"read", "domain", "key"}}
	assert.Equal(t, "/usr/bin/defaults read domain key", c.Line())

	c.User = "alice"
	assert.Equal(t, "alice|/usr/bin/defaults read domain key", c.Line())
}

func TestFakeRunnerResponses(t *testing.T) {
	f := NewFakeRunner()
	f.Respond("/bin/tool list", "two items")

	out, err := f.Run(context.Background(), "/bin/tool", "list")
	require.NoError(t, err)
	assert.Equal(t, "two items", out)

	// Unmatched calls succeed with empty output.
	out, err = f.Run(context.Background(), "/bin/tool", "other")
	require.NoError(t, err)
	assert.Empty(t, out)

	assert.Equal(t, []string{"/bin/tool list", "/bin/tool other"}, f.CallLines())
}
