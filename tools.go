//go:build tools
// +build tools

// Package tools tracks code generation dependencies (mockgen) in go.mod.
package youapp

import (
	_ "go.uber.org/mock/mockgen"
)
