// Package credential holds the user's selected API key and the host hook
// used to ask for a new one.
package credential

import (
	"context"
	"strings"
	"sync"
)

// PromptFunc asks the user to select a key. It returns the new key, or ""
// when the host only signals the request and the key arrives later via Set.
type PromptFunc func(ctx context.Context) (string, error)

// Keyring is a mutable single-key credential store. It satisfies
// video.CredentialSelector and is the key source for provider clients.
type Keyring struct {
	mu      sync.RWMutex
	key     string
	prompt  PromptFunc
	prompts int
}

// NewKeyring creates a keyring seeded with key.
func NewKeyring(key string, prompt PromptFunc) *Keyring {
	return &Keyring{key: strings.TrimSpace(key), prompt: prompt}
}

// Key returns the current key.
func (k *Keyring) Key() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key
}

// Set replaces the current key.
func (k *Keyring) Set(key string) {
	k.mu.Lock()
	k.key = strings.TrimSpace(key)
	k.mu.Unlock()
}

// Prompts returns how many times a reselection was requested.
func (k *Keyring) Prompts() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.prompts
}

// HasCredential reports whether a key is selected.
func (k *Keyring) HasCredential(ctx context.Context) (bool, error) {
	return k.Key() != "", nil
}

// PromptForCredential asks the host for a key. A non-empty answer replaces
// the current key.
func (k *Keyring) PromptForCredential(ctx context.Context) error {
	k.mu.Lock()
	k.prompts++
	prompt := k.prompt
	k.mu.Unlock()

	if prompt == nil {
		return nil
	}
	key, err := prompt(ctx)
	if err != nil {
		return err
	}
	if key = strings.TrimSpace(key); key != "" {
		k.Set(key)
	}
	return nil
}
