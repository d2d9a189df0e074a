package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Cache keys shared between the client pieces.
const (
	KeyEmail       = "email"
	KeyChatService = "chatService"
	KeyCode        = "code"
	KeyServiceURL  = "serviceUrl"
)

// Cache is a small persisted key-value store, the terminal equivalent of the
// browser localStorage the web client used. Values are stored as JSON in a
// single file so a reload (process restart) can restore the session.
type Cache struct {
	mu     sync.Mutex
	path   string
	values map[string]json.RawMessage
}

// DefaultPath returns the cache file location under the user config dir.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "chadchat", "cache.json")
}

// Open loads the cache at path, creating an empty one if the file is missing.
func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache path is empty")
	}
	c := &Cache{path: path, values: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &c.values); err != nil {
		// A corrupt cache is not fatal; start over rather than refuse to boot.
		c.values = map[string]json.RawMessage{}
	}
	return c, nil
}

// Put stores value under key and persists the cache.
func (c *Cache) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return c.flush()
}

// Get unmarshals the value for key into out, reporting whether it was present.
func (c *Cache) Get(key string, out any) (bool, error) {
	c.mu.Lock()
	raw, ok := c.values[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key and persists the cache.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		return nil
	}
	delete(c.values, key)
	return c.flush()
}

func (c *Cache) flush() error {
	data, err := json.MarshalIndent(c.values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}
