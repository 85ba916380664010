//go:build tools
// +build tools

// Package tools pins the versions of the code generators run by
// scripts/mockery_generate.sh.
package tools

import (
	_ "github.com/vektra/mockery/v2"
)
