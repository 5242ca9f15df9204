package exercise

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// ErrUnknownExercise is returned when a requested exercise is not in the catalog.
var ErrUnknownExercise = errors.New("unknown exercise")

// Source values recorded for catalog entries.
const (
	SourceBuiltin = "builtin"
	SourceStore   = "store"
)

// ManifestName is the file looked up in each sub-directory during discovery.
const ManifestName = "exercise.toml"

// Entry is a catalog item together with where it was loaded from.
type Entry struct {
	Config Config
	Source string
}

// Catalog is a registry of validated exercise configurations.
//
// Entries from the store shadow built-in and file definitions of the same
// name; the shadowed definition is kept in base and comes back on Remove.
type Catalog struct {
	entries map[string]Entry
	base    map[string]Entry
	mu      sync.RWMutex
}

// NewCatalog creates a catalog preloaded with the built-in exercises.
func NewCatalog() *Catalog {
	c := &Catalog{
		entries: make(map[string]Entry),
		base:    make(map[string]Entry),
	}
	for _, cfg := range Builtins() {
		e := Entry{Config: cfg, Source: SourceBuiltin}
		c.entries[cfg.Name] = e
		c.base[cfg.Name] = e
	}
	return c
}

// Register validates cfg and adds it. A stored entry replaces whatever has
// the same name; any other source replaces only non-stored entries.
func (c *Catalog) Register(cfg Config, source string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{Config: cfg.Clone(), Source: source}
	if source == SourceStore {
		c.entries[cfg.Name] = e
		return nil
	}
	c.base[cfg.Name] = e
	if cur, ok := c.entries[cfg.Name]; !ok || cur.Source != SourceStore {
		c.entries[cfg.Name] = e
	}
	return nil
}

// Remove drops a stored entry. The built-in or file definition it shadowed,
// if any, takes its place.
func (c *Catalog) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.base[name]; ok {
		c.entries[name] = e
		return
	}
	delete(c.entries, name)
}

// Get returns a copy of the named configuration.
// Returns ErrUnknownExercise if it does not exist.
func (c *Catalog) Get(name string) (Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[name]
	if !ok {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownExercise, name)
	}
	return e.Config.Clone(), nil
}

// List returns every entry sorted by name.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, Entry{Config: e.Config.Clone(), Source: e.Source})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Config.Name < entries[j].Config.Name
	})
	return entries
}

// Discover loads exercise definitions from dir. Both top-level *.toml files and
// sub-directories containing an exercise.toml manifest are recognized. Invalid
// definitions are logged and skipped; the returned error is only set when the
// directory itself cannot be read.
func (c *Catalog) Discover(dir string) (int, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return 0, nil // No exercises directory, nothing to discover
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	loaded := 0
	for _, entry := range entries {
		var path string
		switch {
		case entry.IsDir():
			path = filepath.Join(dir, entry.Name(), ManifestName)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				continue
			}
		case strings.HasSuffix(entry.Name(), ".toml"):
			path = filepath.Join(dir, entry.Name())
		default:
			continue
		}

		cfg, err := LoadFile(path)
		if err != nil {
			log.WithField("path", path).Warnf("skipping exercise definition: %v", err)
			continue
		}
		if err := c.Register(cfg, path); err != nil {
			log.WithField("path", path).Warnf("skipping exercise definition: %v", err)
			continue
		}
		loaded++
	}

	return loaded, nil
}

// LoadFile decodes and validates a TOML exercise definition.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeJSON decodes and validates a JSON exercise definition.
func DecodeJSON(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode exercise: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
