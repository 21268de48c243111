// Package secrets holds signing secrets in memory and swaps them atomically
// when their source changes.
package secrets

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// JWTSecret is the vault key of the bearer token signing secret.
const JWTSecret = "jwt_secret"

// Loader retrieves secrets from a source.
type Loader func() (map[string]string, error)

// Vault holds secret values and supports reloading them without a restart.
type Vault struct {
	mu       sync.RWMutex
	values   map[string]string
	loader   Loader
	required []string
}

// NewVault creates a Vault and loads it once. Every key in required must be
// present and non-empty, both now and after each reload.
func NewVault(loader Loader, required ...string) (*Vault, error) {
	v := &Vault{loader: loader, required: required}
	vals, err := v.load()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	v.values = vals
	return v, nil
}

func (v *Vault) load() (map[string]string, error) {
	vals, err := v.loader()
	if err != nil {
		return nil, err
	}
	for _, k := range v.required {
		if vals[k] == "" {
			return nil, fmt.Errorf("secret %q is missing", k)
		}
	}
	return vals, nil
}

// Get returns the secret for key, or "" if absent.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Getter returns a function reading key on every call, so holders see
// reloaded values.
func (v *Vault) Getter(key string) func() string {
	return func() string { return v.Get(key) }
}

// Reload calls the loader and swaps in the new values. On error the current
// values stay in place.
func (v *Vault) Reload() error {
	vals, err := v.load()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = vals
	v.mu.Unlock()
	return nil
}

// Keys returns the loaded key names, sorted.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Sorted(maps.Keys(v.values))
}

// Redacted returns a masked form of the secret for logs.
func (v *Vault) Redacted(key string) string {
	s := v.Get(key)
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return s[:2] + "****"
	}
}
