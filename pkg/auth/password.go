package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultPasswordCost is the bcrypt cost for account passwords
	DefaultPasswordCost = 10

	// MinSecretCost is the lowest bcrypt cost accepted for shared secrets
	MinSecretCost = 12
)

// HashPassword returns the bcrypt hash of plaintext at the given cost
func HashPassword(plaintext string, cost int) (string, error) {
	if cost < bcrypt.MinCost {
		cost = DefaultPasswordCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares plaintext against a bcrypt hash.
// It returns ErrPasswordMismatch when they differ.
func CheckPassword(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return fmt.Errorf("failed to compare password: %w", err)
}

// VerifyPassword is CheckPassword reduced to a boolean
func VerifyPassword(hash, plaintext string) bool {
	return CheckPassword(hash, plaintext) == nil
}

// TimingHash returns a throwaway hash at cost. Comparing against it when a
// login names an unknown user makes both failure paths spend the same time
// in bcrypt, so cost must match the cost real passwords are hashed at.
func TimingHash(cost int) string {
	hash, err := HashPassword("larder-timing-equalizer", cost)
	if err != nil {
		hash, _ = HashPassword("larder-timing-equalizer", DefaultPasswordCost)
	}
	return hash
}

// BurnPasswordCheck spends one bcrypt comparison against a TimingHash
func BurnPasswordCheck(timingHash, plaintext string) {
	_ = bcrypt.CompareHashAndPassword([]byte(timingHash), []byte(plaintext))
}

// HashCost reports the bcrypt cost of an existing hash
func HashCost(hash string) (int, error) {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return 0, fmt.Errorf("invalid bcrypt hash: %w", err)
	}
	return cost, nil
}
