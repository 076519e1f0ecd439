//go:build tools
// +build tools

// Package tools pins the code generators run by go generate (mockgen),
// so go.mod and go.sum track them like any other dependency.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
