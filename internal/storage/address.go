package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"echoping/internal/address"
)

const (
	// AddressNamespace groups the saved address entries.
	AddressNamespace = "addresses"
	// AddressKey holds the dotted-decimal target within the namespace.
	AddressKey = "address"
)

// ErrNoAddress is returned by Load when nothing has been stored yet.
var ErrNoAddress = errors.New("no address stored")

// AddressStore is a small namespaced key-value file holding the chosen
// target address.
type AddressStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]map[string]string
}

// NewAddressStore opens the store at path, creating its directory.
func NewAddressStore(path string) (*AddressStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	s := &AddressStore{path: path, entries: make(map[string]map[string]string)}
	if _, err := readJSON(path, &s.entries); err != nil {
		return nil, err
	}
	if s.entries == nil {
		s.entries = make(map[string]map[string]string)
	}
	return s, nil
}

// Load returns the stored address. A stored value that does not parse is
// reported as an error wrapping address.ErrMalformed.
func (s *AddressStore) Load() (address.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.entries[AddressNamespace][AddressKey]
	if !ok {
		return address.Address{}, ErrNoAddress
	}
	a, err := address.Parse(raw)
	if err != nil {
		return address.Address{}, fmt.Errorf("stored address: %w", err)
	}
	return a, nil
}

// Store saves a as the current address and persists it.
func (s *AddressStore) Store(a address.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.entries[AddressNamespace]
	if ns == nil {
		ns = make(map[string]string)
		s.entries[AddressNamespace] = ns
	}
	prev, had := ns[AddressKey]
	ns[AddressKey] = a.String()
	if err := writeJSON(s.path, s.entries); err != nil {
		if had {
			ns[AddressKey] = prev
		} else {
			delete(ns, AddressKey)
		}
		return err
	}
	return nil
}
