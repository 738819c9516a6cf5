package common

import (
	"github.com/google/uuid"
)

// ID prefixes used across the service. Inside actor handlers these ids are
// always generated through a journaled step so replay reproduces them.
const (
	AdIDPrefix         = "ad"
	QuestionIDPrefix   = "qa"
	InvocationIDPrefix = "inv"
)

// NewID generates a unique id with the given prefix.
// Format: <prefix>_<uuid>
func NewID(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// NewInvocationID generates an idempotency key for one logical invocation.
func NewInvocationID() string {
	return NewID(InvocationIDPrefix)
}
