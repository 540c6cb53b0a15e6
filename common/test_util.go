package common

import (
	"bytes"
	"os"
	"os/exec"
	"testing"
)

// ExecuteTestInSubProcess runs the named test of the current test binary in
// a separate process with the given additional environment variables and
// fails if the sub-process reports a failure.
func ExecuteTestInSubProcess(t *testing.T, testName string, env ...string) {
	t.Helper()
	path, err := os.Executable()
	if err != nil {
		t.Fatalf("failed to resolve path to test binary: %v", err)
	}

	cmd := exec.Command(path, "-test.run", "^"+testName+"$")
	cmd.Env = append(os.Environ(), env...)
	errBuf := new(bytes.Buffer)
	cmd.Stderr = errBuf
	stdBuf := new(bytes.Buffer)
	cmd.Stdout = stdBuf

	if err := cmd.Run(); err != nil {
		t.Errorf("Subprocess finished with error: %v\n stdout:\n%s stderr:\n%s", err, stdBuf.String(), errBuf.String())
	}
}
