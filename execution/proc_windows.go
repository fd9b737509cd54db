//go:build windows

package execution

import "os/exec"

// setPlatformSpecificAttrs keeps exec.CommandContext's default behavior:
// TerminateProcess on the direct child when the context ends.
func setPlatformSpecificAttrs(cmd *exec.Cmd) {}
