package memory

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateAPIKey returns a new agent API key of the form
// "{prefix}_sk_<token>". Only the raw key is generated here; the server
// stores a bcrypt hash when the agent registers. Show the key to the user
// once and never persist it client-side.
func GenerateAPIKey(prefix string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return fmt.Sprintf("%s_sk_%s", prefix, base64.RawURLEncoding.EncodeToString(raw)), nil
}
