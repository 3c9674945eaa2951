// Package bootstrap guards account creation with the family master key and
// makes sure the deployment's single tenant exists.
package bootstrap

import (
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/larder/pkg/auth"
)

var (
	// ErrNoSecret is returned when neither a raw nor a hashed secret is configured
	ErrNoSecret = errors.New("bootstrap: no master key configured")

	// ErrWeakSecretHash is returned for a pre-hashed secret below the minimum cost
	ErrWeakSecretHash = errors.New("bootstrap: master key hash cost too low")
)

// SharedSecret is the configured master key. A raw key is hashed once, on
// first use, and the hash is kept for the life of the value.
type SharedSecret struct {
	raw       string
	preHashed string
	cost      int

	once sync.Once
	hash string
	err  error
}

// NewSharedSecret builds a secret from a raw key or a bcrypt hash. When both
// are set the hash wins. Costs below auth.MinSecretCost are raised to it.
func NewSharedSecret(raw, hash string, cost int) (*SharedSecret, error) {
	if cost < auth.MinSecretCost {
		cost = auth.MinSecretCost
	}

	if hash != "" {
		hashCost, err := auth.HashCost(hash)
		if err != nil {
			return nil, err
		}
		if hashCost < auth.MinSecretCost {
			return nil, fmt.Errorf("%w: %d < %d", ErrWeakSecretHash, hashCost, auth.MinSecretCost)
		}
		return &SharedSecret{preHashed: hash, cost: hashCost}, nil
	}

	if raw == "" {
		return nil, ErrNoSecret
	}
	return &SharedSecret{raw: raw, cost: cost}, nil
}

// Hash returns the bcrypt hash of the secret, computing it at most once
func (s *SharedSecret) Hash() (string, error) {
	if s.preHashed != "" {
		return s.preHashed, nil
	}
	s.once.Do(func() {
		s.hash, s.err = auth.HashPassword(s.raw, s.cost)
	})
	return s.hash, s.err
}

// Matches reports whether storedHash already represents this secret
func (s *SharedSecret) Matches(storedHash string) bool {
	if storedHash == "" {
		return false
	}
	if s.preHashed != "" {
		return storedHash == s.preHashed
	}
	return auth.VerifyPassword(storedHash, s.raw)
}

// VerifySharedSecret compares a candidate master key with a stored hash
func VerifySharedSecret(candidate, storedHash string) bool {
	if candidate == "" || storedHash == "" {
		return false
	}
	return auth.VerifyPassword(storedHash, candidate)
}
