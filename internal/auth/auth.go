// Package auth authenticates the front-end collaborator that relays user
// messages. Only SHA-256 hashes of API keys are ever configured or held.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tjfontaine/helpdesk-gateway/internal/core/ports"
	"github.com/tjfontaine/helpdesk-gateway/internal/pkg/config"
)

// Authenticator validates API keys against configured hashes.
type Authenticator struct {
	mu   sync.RWMutex
	keys []config.APIKeyConfig
}

var _ ports.AuthProvider = (*Authenticator)(nil)

// NewAuthenticator creates an authenticator for the given key hashes.
func NewAuthenticator(keys []config.APIKeyConfig) *Authenticator {
	a := &Authenticator{}
	a.Reload(keys)
	return a
}

// Reload replaces the accepted keys.
func (a *Authenticator) Reload(keys []config.APIKeyConfig) {
	cp := make([]config.APIKeyConfig, 0, len(keys))
	for _, k := range keys {
		k.KeyHash = strings.ToLower(strings.TrimSpace(k.KeyHash))
		if k.KeyHash != "" {
			cp = append(cp, k)
		}
	}

	a.mu.Lock()
	a.keys = cp
	a.mu.Unlock()
}

// Len returns the number of accepted keys.
func (a *Authenticator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

// Authenticate validates an API key and returns the caller context.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (*ports.AuthContext, error) {
	keyHash := HashAPIKey(apiKey)

	a.mu.RLock()
	defer a.mu.RUnlock()

	// Every configured hash is compared so timing does not reveal the match position.
	var match *config.APIKeyConfig
	for i := range a.keys {
		if subtle.ConstantTimeCompare([]byte(keyHash), []byte(a.keys[i].KeyHash)) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("invalid API key")
	}

	return &ports.AuthContext{
		KeyID:       keyID(match.KeyHash),
		Description: match.Description,
	}, nil
}

// keyID is a loggable prefix of a key hash.
func keyID(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// ExtractAPIKey extracts the API key from the Authorization header
func ExtractAPIKey(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("missing Authorization header")
	}

	// Support "Bearer <key>" format
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid Authorization header format")
	}

	if strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("unsupported authorization scheme")
	}

	return strings.TrimSpace(parts[1]), nil
}

// HashAPIKey creates a SHA-256 hash of an API key for storage
func HashAPIKey(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:])
}
