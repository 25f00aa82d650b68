package secret

import "calbot-go/internal/calbot"

// PlainSealer stores secrets unmodified. Intended for deployments where the
// database already lives on an encrypted volume and a second layer of
// sealing is unwanted.
type PlainSealer struct{}

var _ calbot.Sealer = (*PlainSealer)(nil)

// NewPlainSealer creates a new PlainSealer.
func NewPlainSealer() *PlainSealer {
	return &PlainSealer{}
}

func (*PlainSealer) Setup() error { return nil }

func (*PlainSealer) IsConfigured() bool { return true }

func (*PlainSealer) Seal(plaintext []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (*PlainSealer) Open(ciphertext []byte) ([]byte, error) {
	return append([]byte(nil), ciphertext...), nil
}
