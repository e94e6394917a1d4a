//go:build !linux

package sandbox

import "os/exec"

// applyIsolation is a no-op on non-Linux platforms: bman is Linux-first
// (spec.md Non-goals explicitly excludes cross-platform sandbox parity), so
// other platforms run the child directly and report an empty sandbox_flags
// list, never claiming isolation they didn't provide.
func applyIsolation(cmd *exec.Cmd, noSandbox bool) []string {
	return nil
}

func degradeIsolation(cmd *exec.Cmd) []string {
	return nil
}

const platformName = "generic"
