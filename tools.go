//go:build tools

// Package tools pins the code generators used by go:generate (mockgen)
// so they are versioned in go.mod.
package collab_lab

import (
	_ "go.uber.org/mock/mockgen"
)
