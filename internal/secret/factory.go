package secret

import (
	"fmt"

	"calbot-go/internal/calbot"
	"calbot-go/internal/config"
)

// NewSealerFromConfig creates a Sealer based on the configuration type.
func NewSealerFromConfig(cfg config.SecretsConfig) (calbot.Sealer, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.IdentityPath == "" {
			return nil, fmt.Errorf("identity_path required for age secrets")
		}
		return NewAgeSealer(cfg), nil
	case "plain":
		return NewPlainSealer(), nil
	case "test":
		return NewTestSealer(), nil
	default:
		return nil, fmt.Errorf("unknown secrets type: %q", cfg.Type)
	}
}
