// Package security holds checks for hook secrets and sensitive files.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

const (
	// RecommendedSecretLength is the length below which a secret is weak.
	RecommendedSecretLength = 32

	// MinEntropy is the Shannon entropy below which a secret is weak.
	MinEntropy = 2.5

	generatedSecretBytes = 32
)

var placeholders = map[string]bool{
	"replace-with-secret":     true,
	"github-webhook-password": true,
	"topsecret":               true,
	"secret":                  true,
	"password":                true,
	"changeme":                true,
	"...":                     true,
}

// IsPlaceholder reports whether secret is a sample value copied from
// documentation rather than a real secret.
func IsPlaceholder(secret string) bool {
	lower := strings.ToLower(strings.TrimSpace(secret))
	if placeholders[lower] {
		return true
	}
	return strings.Contains(lower, "replace-with") || strings.Contains(lower, "changeme")
}

// WeakSecret explains why secret is weak, or returns "" when it is not.
// Weak secrets are accepted; callers only warn.
func WeakSecret(secret string) string {
	if len(secret) < RecommendedSecretLength {
		return fmt.Sprintf("shorter than %d characters", RecommendedSecretLength)
	}

	if len(strings.Trim(secret, string(secret[0]))) == 0 {
		return "a single repeated character"
	}

	if isSequential(secret) {
		return "mostly sequential characters"
	}

	if e := entropy(secret); e < MinEntropy {
		return fmt.Sprintf("low entropy (%.2f < %.2f)", e, MinEntropy)
	}

	return ""
}

// GenerateSecret returns a random 64-character hex secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// entropy computes the Shannon entropy of s in bits per character.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var h float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		h -= p * math.Log2(p)
	}
	return h
}

// isSequential checks if a string consists of sequential characters.
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}

	// More than 70% sequential steps is weak
	return float64(sequential) > float64(len(s))*0.7
}
