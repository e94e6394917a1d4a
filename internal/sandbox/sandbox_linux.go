//go:build linux

package sandbox

import (
	"os/exec"
	"syscall"
)

// applyIsolation requests new mount, PID, and network namespaces for the
// child and returns those flags. It does not probe what the kernel grants:
// when the run then fails with EPERM/EACCES, Runner.Run retries after
// degradeIsolation and records that function's reduced flag list instead.
func applyIsolation(cmd *exec.Cmd, noSandbox bool) []string {
	if noSandbox {
		return nil
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWNET,
	}
	return []string{"namespace_mount", "namespace_pid", "namespace_net"}
}

// degradeIsolation retries without network/pid namespaces when the initial
// attempt fails with EPERM (unprivileged caller) so the scenario still runs,
// just without full isolation — the evidence record reflects this via a
// reduced sandbox_flags list.
func degradeIsolation(cmd *exec.Cmd) []string {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS,
	}
	return []string{"namespace_mount"}
}

const platformName = "linux"
