package app

import "crypto/rand"

// generateID produces a random hex identifier.
// Isolated here so the ID strategy can evolve independently.
func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, v := range b {
		out[i*2] = hex[v>>4]
		out[i*2+1] = hex[v&0x0f]
	}
	return string(out), nil
}

const (
	secretLength   = 20
	secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"
)

// generateSecret produces a database password containing at least one
// lowercase letter, one uppercase letter, one digit, and one symbol.
func generateSecret() (string, error) {
	for {
		b := make([]byte, secretLength)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		var lower, upper, digit, symbol bool
		out := make([]byte, secretLength)
		for i, v := range b {
			c := secretAlphabet[int(v)%len(secretAlphabet)]
			out[i] = c
			switch {
			case c >= 'a' && c <= 'z':
				lower = true
			case c >= 'A' && c <= 'Z':
				upper = true
			case c >= '0' && c <= '9':
				digit = true
			default:
				symbol = true
			}
		}
		if lower && upper && digit && symbol {
			return string(out), nil
		}
	}
}
