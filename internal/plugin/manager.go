package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// ManifestName is the manifest looked up in each plugin directory.
const ManifestName = "plugin.json"

// knownEvents lists the events a manifest may subscribe to.
var knownEvents = map[string]bool{
	EventRep:      true,
	EventPartial:  true,
	EventExercise: true,
}

// Manager keeps the plugins found in a directory, indexed by name and by
// the session events they subscribe to.
type Manager struct {
	dir string

	mu      sync.RWMutex
	byName  map[string]*Plugin
	byEvent map[string][]*Plugin
}

// NewManager creates a Manager for the plugins below dir. Nothing is loaded
// until Discover is called.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:     dir,
		byName:  make(map[string]*Plugin),
		byEvent: make(map[string][]*Plugin),
	}
}

// Discover rebuilds the plugin index from the directory. Every subdirectory
// holding a plugin.json is a candidate; broken manifests are logged and
// skipped so one bad plugin does not disable the others. A missing
// directory simply means no plugins.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		m.replace(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read plugin dir: %w", err)
	}

	var found []*Plugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := loadPlugin(filepath.Join(m.dir, entry.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			log.WithError(err).WithField("plugin", entry.Name()).Warn("skipping plugin")
			continue
		}
		found = append(found, p)
	}

	m.replace(found)
	log.WithFields(log.Fields{"dir": m.dir, "count": len(found)}).Info("discovered plugins")
	return nil
}

// loadPlugin reads and checks the manifest in dir. It returns an error
// wrapping os.ErrNotExist when dir has no manifest.
func loadPlugin(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, errors.New("manifest needs a name and an executable")
	}
	for _, ev := range manifest.Events {
		if !knownEvents[ev] {
			log.WithFields(log.Fields{"plugin": manifest.Name, "event": ev}).Warn("unknown event in manifest")
		}
	}

	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: filepath.Join(dir, manifest.Executable),
	}, nil
}

// replace swaps in a new set of plugins. Later duplicates of a name win,
// matching directory order.
func (m *Manager) replace(plugins []*Plugin) {
	byName := make(map[string]*Plugin, len(plugins))
	for _, p := range plugins {
		byName[p.Manifest.Name] = p
	}

	byEvent := make(map[string][]*Plugin)
	for _, p := range sortedPlugins(byName) {
		for _, ev := range p.Manifest.Events {
			byEvent[ev] = append(byEvent[ev], p)
		}
	}

	m.mu.Lock()
	m.byName = byName
	m.byEvent = byEvent
	m.mu.Unlock()
}

func sortedPlugins(byName map[string]*Plugin) []*Plugin {
	out := make([]*Plugin, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Manifest.Name < out[j].Manifest.Name
	})
	return out
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.byName[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return p, nil
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedPlugins(m.byName)
}

// Subscribers returns the plugins handling event, sorted by name.
func (m *Manager) Subscribers(event string) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Plugin(nil), m.byEvent[event]...)
}

// Dir returns the directory plugins are discovered in.
func (m *Manager) Dir() string {
	return m.dir
}
