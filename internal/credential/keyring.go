package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

// DefaultService is the keyring service name used when none is configured
const DefaultService = "agenda-relay"

// ErrNotFound is returned when the keyring holds no item for a key
var ErrNotFound = errors.New("credential not found")

// Store reads and writes secrets in the operating system keyring
type Store struct {
	ring keyring.Keyring
}

// Open returns a store backed by the platform keyring.
// Only OS-managed backends are allowed so no secret is needed to unlock the store itself.
func Open(service string) (*Store, error) {
	if service == "" {
		service = DefaultService
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
		},
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewStore(ring), nil
}

// NewStore wraps an already opened keyring
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves a credential value by key
func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key
func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(value),
		Label:       "agenda-relay " + key,
		Description: "IMAP password for agenda-relay",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key
func (s *Store) Delete(key string) error {
	if err := s.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}
