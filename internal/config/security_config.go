package config

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type SecurityConfig interface {
	GetBcryptCost() int
	GetRevocationSweepInterval() time.Duration
}

type Security struct {
	BcryptCost    int           `env:"BCRYPT_COST" envDefault:"10"`
	SweepInterval time.Duration `env:"REVOCATION_SWEEP_INTERVAL" envDefault:"1m"`
}

var _ SecurityConfig = Security{}

func (s Security) GetBcryptCost() int { return s.BcryptCost }

func (s Security) GetRevocationSweepInterval() time.Duration { return s.SweepInterval }

func (s Security) validate() error {
	if s.BcryptCost < bcrypt.MinCost || s.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if s.SweepInterval <= 0 {
		return fmt.Errorf("REVOCATION_SWEEP_INTERVAL must be positive")
	}
	return nil
}
