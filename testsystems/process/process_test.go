package process

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fitnesse/test-system-harness/framework"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exitTimeout = 10 * time.Second

// TestHelperProcess is not a real test. It is the child process started by the other tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PROCESS_TEST_HELPER") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	switch args[1] {
	case "echo":
		for _, a := range args[2:] {
			fmt.Println(a)
		}
		fmt.Fprintln(os.Stderr, "done")
	case "env":
		fmt.Println(os.Getenv(args[2]))
	case "exit":
		code, _ := strconv.Atoi(args[2])
		os.Exit(code)
	case "hang":
		time.Sleep(time.Hour)
	}
	os.Exit(0)
}

func helperCommand(args ...string) string {
	return shellquote.Join(append([]string{os.Args[0], "-test.run=TestHelperProcess", "--"}, args...)...)
}

var helperEnv = map[string]string{"PROCESS_TEST_HELPER": "1"} //nolint:gochecknoglobals

func withEnv(extra map[string]string) map[string]string {
	ret := map[string]string{}
	for k, v := range helperEnv {
		ret[k] = v
	}
	for k, v := range extra {
		ret[k] = v
	}
	return ret
}

func launch(t *testing.T, output framework.Logger, env map[string]string, args ...string) Process {
	p, err := ExecLauncher{}.Launch(context.Background(), helperCommand(args...), env, output)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Kill() })
	return p
}

func waitFor(t *testing.T, p Process) {
	select {
	case <-p.Done():
	case <-time.After(exitTimeout):
		require.Fail(t, "timed out waiting for process to exit")
	}
}

func TestOutputIsCaptured(t *testing.T) {
	output := &framework.CapturingLogger{}
	p := launch(t, output, helperEnv, "echo", "first line", "second")
	waitFor(t, p)

	require.NoError(t, p.Wait())
	assert.Equal(t, 0, p.ExitCode().Value())
	messages := output.Output().Messages()
	assert.Contains(t, messages, "first line")
	assert.Contains(t, messages, "second")
	assert.Contains(t, messages, "[stderr] done")
}

func TestEnvironmentIsPassed(t *testing.T) {
	output := &framework.CapturingLogger{}
	p := launch(t, output, withEnv(map[string]string{"FIT_CLASSPATH": "a:b"}), "env", "FIT_CLASSPATH")
	waitFor(t, p)
	assert.Equal(t, []string{"a:b"}, output.Output().Messages())
}

func TestNonZeroExitCode(t *testing.T) {
	p := launch(t, nil, helperEnv, "exit", "3")
	waitFor(t, p)
	assert.NoError(t, p.Wait())
	assert.Equal(t, 3, p.ExitCode().Value())
}

func TestKillIsIdempotent(t *testing.T) {
	p := launch(t, nil, helperEnv, "hang")
	assert.False(t, p.ExitCode().IsDefined())

	require.NoError(t, p.Kill())
	require.NoError(t, p.Kill())
	waitFor(t, p)
	assert.True(t, p.ExitCode().IsDefined())
	assert.NotEqual(t, 0, p.ExitCode().Value())
	assert.NoError(t, p.Kill())
}

func TestKillAfterExit(t *testing.T) {
	p := launch(t, nil, helperEnv, "exit", "0")
	waitFor(t, p)
	assert.NoError(t, p.Kill())
}

func TestLaunchErrors(t *testing.T) {
	_, err := ExecLauncher{}.Launch(context.Background(), `java "unterminated`, nil, nil)
	assert.Error(t, err)

	_, err = ExecLauncher{}.Launch(context.Background(), "   ", nil, nil)
	assert.EqualError(t, err, "command line is empty")

	_, err = ExecLauncher{}.Launch(context.Background(), "/no/such/runner -cp x", nil, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ExecLauncher{}.Launch(ctx, helperCommand("echo"), helperEnv, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunnerCannotStartTwice(t *testing.T) {
	r := NewRunner(helperCommand("exit", "0"), helperEnv, nil)
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	waitFor(t, r)
	assert.Equal(t, helperCommand("exit", "0"), r.Command())
}

func TestKillBeforeStart(t *testing.T) {
	assert.NoError(t, NewRunner("java", nil, nil).Kill())
}

func TestMergeEnvironment(t *testing.T) {
	base := []string{"PATH=/bin", "CP=old"}
	merged := MergeEnvironment(base, map[string]string{"CP": "new", "A": "1"})
	assert.Equal(t, []string{"PATH=/bin", "CP=old", "A=1", "CP=new"}, merged)
	assert.Equal(t, []string{"PATH=/bin", "CP=old"}, base)
	assert.Equal(t, base, MergeEnvironment(base, nil))
}
