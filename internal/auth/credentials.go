// Package auth stores API credentials in the OS keyring, falling back to
// files under the home directory where no keyring is available.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "comparethewait"
	// FallbackDir is the directory for file-based storage, relative to home
	FallbackDir = ".ctw/credentials"

	manifestKey = "_manifest"
)

// Well-known credential names
const (
	APIKey      = "firecrawl_api_key"
	DatabaseURL = "database_url"
)

// ErrNotFound is returned when no credential is stored under a name
var ErrNotFound = errors.New("credential not found")

// Credential is a stored secret
type Credential struct {
	Name      string    `json:"name"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"created_at"`
}

// Store saves credentials either in the keyring or as files in dir
type Store struct {
	fileBased bool
	dir       string
}

// NewStore returns a keyring-backed store, or a file store when the
// keyring is unusable (Codespaces, CI, headless Linux without a secret
// service)
func NewStore() (*Store, error) {
	if useFileBasedStorage() {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		return NewFileStore(filepath.Join(home, FallbackDir)), nil
	}
	return NewKeyringStore(), nil
}

// NewKeyringStore returns a store backed by the OS keyring
func NewKeyringStore() *Store {
	return &Store{}
}

// NewFileStore returns a store keeping one JSON file per credential in dir
func NewFileStore(dir string) *Store {
	return &Store{fileBased: true, dir: dir}
}

// Backend names where credentials are kept
func (s *Store) Backend() string {
	if s.fileBased {
		return "file (" + s.dir + ")"
	}
	return "keyring"
}

func useFileBasedStorage() bool {
	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		return true
	}

	testKey := "_test_keyring_access_"
	if err := keyring.Set(KeyringService, testKey, "test"); err != nil {
		return true
	}
	_ = keyring.Delete(KeyringService, testKey)
	return false
}

func (s *Store) path(name string) (string, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+".json"), nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("credential name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, "_") {
		return fmt.Errorf("invalid credential name %q", name)
	}
	return nil
}

// Save stores secret under name, replacing any previous value
func (s *Store) Save(name, secret string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("secret for %s cannot be empty", name)
	}

	data, err := json.Marshal(Credential{Name: name, Secret: secret, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to serialize credential: %w", err)
	}

	if s.fileBased {
		path, err := s.path(name)
		if err != nil {
			return fmt.Errorf("failed to get credential path: %w", err)
		}
		if err := os.WriteFile(path, data, 0600); err != nil {
			return fmt.Errorf("failed to save credential file: %w", err)
		}
		return nil
	}

	if err := keyring.Set(KeyringService, name, string(data)); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return s.updateManifest(name, true)
}

// Get returns the full stored credential
func (s *Store) Get(name string) (*Credential, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	var data string
	if s.fileBased {
		path, err := s.path(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get credential path: %w", err)
		}
		raw, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load credential file: %w", err)
		}
		data = string(raw)
	} else {
		v, err := keyring.Get(KeyringService, name)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load from keyring: %w", err)
		}
		data = v
	}

	var c Credential
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, fmt.Errorf("failed to deserialize credential: %w", err)
	}
	return &c, nil
}

// Load returns the secret stored under name
func (s *Store) Load(name string) (string, error) {
	c, err := s.Get(name)
	if err != nil {
		return "", err
	}
	return c.Secret, nil
}

// Delete removes the credential. Deleting a missing credential is not an error.
func (s *Store) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	if s.fileBased {
		path, err := s.path(name)
		if err != nil {
			return fmt.Errorf("failed to get credential path: %w", err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete credential file: %w", err)
		}
		return nil
	}

	if err := keyring.Delete(KeyringService, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return s.updateManifest(name, false)
}

// List returns the names of the stored credentials, sorted
func (s *Store) List() ([]string, error) {
	if s.fileBased {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return []string{}, nil
			}
			return nil, err
		}

		names := []string{}
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
				names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
			}
		}
		sort.Strings(names)
		return names, nil
	}

	// The keyring cannot be enumerated, so names are tracked in a manifest
	manifest, err := keyring.Get(KeyringService, manifestKey)
	if err != nil {
		return []string{}, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(manifest), &names); err != nil {
		return nil, fmt.Errorf("failed to deserialize manifest: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) updateManifest(name string, add bool) error {
	names, _ := s.List()

	out := make([]string, 0, len(names)+1)
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	if add {
		out = append(out, name)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return keyring.Set(KeyringService, manifestKey, string(data))
}

// Mask hides all but the last four characters of a secret
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
