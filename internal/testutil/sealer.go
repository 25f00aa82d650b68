package testutil

import (
	"calbot-go/internal/calbot"
	"calbot-go/internal/secret"
)

// NewTestSealer creates a new test sealer for testing.
func NewTestSealer() calbot.Sealer {
	return secret.NewTestSealer()
}
