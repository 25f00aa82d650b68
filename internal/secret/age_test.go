package secret

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"calbot-go/internal/config"
)

func newTestAgeSealer(t *testing.T) *AgeSealer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.SecretsConfig{
		Type:         "age",
		IdentityPath: filepath.Join(dir, "keys", "calbot.key"),
	}
	return NewAgeSealer(cfg)
}

func TestAgeSealer_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)
	if s.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeSealer_Setup_IsConfigured(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)

	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !s.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
}

func TestAgeSealer_Setup_KeepsExistingIdentity(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)

	if err := s.Setup(); err != nil {
		t.Fatalf("first Setup() error = %v", err)
	}
	first, err := os.ReadFile(s.identityPath)
	if err != nil {
		t.Fatalf("reading identity file: %v", err)
	}

	if err := s.Setup(); err != nil {
		t.Fatalf("second Setup() error = %v", err)
	}
	second, err := os.ReadFile(s.identityPath)
	if err != nil {
		t.Fatalf("reading identity file: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("second Setup() replaced the identity file")
	}
}

func TestAgeSealer_SealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "password", input: []byte("feed-password-123")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "long token", input: bytes.Repeat([]byte("tok"), 4096)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestAgeSealer(t)
			if err := s.Setup(); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			sealed, err := s.Seal(tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}

			if len(tt.input) > 0 && bytes.Equal(sealed, tt.input) {
				t.Error("sealed output is identical to plaintext")
			}

			opened, err := s.Open(sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}

			if !bytes.Equal(opened, tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", len(opened), len(tt.input))
			}
		})
	}
}

func TestAgeSealer_SealBeforeSetup(t *testing.T) {
	t.Parallel()

	s := newTestAgeSealer(t)
	if _, err := s.Seal([]byte("data")); err == nil {
		t.Error("Seal() before Setup should return error")
	}
}

func TestAgeSealer_OpenGarbage(t *testing.T) {
	t.Parallel()

	s := newTestAgeSealer(t)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if _, err := s.Open([]byte("not an age ciphertext")); err == nil {
		t.Error("Open() on garbage should return error")
	}
}

func TestAgeSealer_OpenWithDifferentIdentity(t *testing.T) {
	t.Parallel()

	a := newTestAgeSealer(t)
	if err := a.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	sealed, err := a.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	b := newTestAgeSealer(t)
	if err := b.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if _, err := b.Open(sealed); err == nil {
		t.Error("Open() with a different identity should return error")
	}
}
