//go:build !unix

package regress

import "os/exec"

// setProcessGroup is a no-op; cancellation kills the direct child and
// WaitDelay bounds the wait for its pipes.
func setProcessGroup(*exec.Cmd) {}
