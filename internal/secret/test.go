package secret

import (
	"bytes"
	"fmt"

	"calbot-go/internal/calbot"
)

// testHeader is prepended to data by TestSealer to make sealed output
// clearly different from plaintext while remaining deterministic and
// reversible.
var testHeader = []byte("CBSEAL\x00\x00")

// TestSealer is a simple, deterministic sealer for testing. It prepends a
// fixed 8-byte header during sealing and strips it during opening. This
// ensures sealed output differs from plaintext (so code paths that forget
// to open a secret fail loudly) without requiring any crypto or key files.
type TestSealer struct {
	setupCalled bool
}

var _ calbot.Sealer = (*TestSealer)(nil)

// NewTestSealer creates a new TestSealer.
func NewTestSealer() *TestSealer {
	return &TestSealer{}
}

func (s *TestSealer) Setup() error {
	s.setupCalled = true
	return nil
}

func (s *TestSealer) IsConfigured() bool { return true }

func (s *TestSealer) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(testHeader)+len(plaintext))
	out = append(out, testHeader...)
	return append(out, plaintext...), nil
}

func (s *TestSealer) Open(ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, testHeader) {
		return nil, fmt.Errorf("invalid test seal header")
	}
	return append([]byte(nil), ciphertext[len(testHeader):]...), nil
}
