package testutil

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

// CLIResult 命令执行结果
type CLIResult struct {
	Output string
	Err    error
}

// ExecuteCommand runs root with args and captures everything written through
// cmd.OutOrStdout / cmd.ErrOrStderr.
//
//	res := testutil.ExecuteCommand(newRootCmd(), "--port", port, "apps")
//	require.NoError(t, res.Err)
func ExecuteCommand(root *cobra.Command, args ...string) CLIResult {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return CLIResult{Output: buf.String(), Err: err}
}

// MustExecuteCommand fails the test when the command returns an error.
func MustExecuteCommand(t *testing.T, root *cobra.Command, args ...string) string {
	t.Helper()
	res := ExecuteCommand(root, args...)
	if res.Err != nil {
		t.Fatalf("命令执行失败: %v\n%s", res.Err, res.Output)
	}
	return res.Output
}
