// Package specs loads the inputs drift detection runs against:
// specification manifests (YAML), observed-snapshot manifests (JSON
// produced by external collectors), and the module's declared
// dependency set. No source code is parsed here; collectors own that.
package specs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"github.com/driftwatch/driftwatch/internal/types"
)

// Manifest is the on-disk form of one specification file. The files
// list holds glob patterns naming which watched paths this
// specification covers.
type Manifest struct {
	types.Specification `yaml:",inline"`

	// Files: glob patterns matched against watched paths. Default: the
	// specification name with a .go extension.
	Files []string `yaml:"files"`
}

// LoadManifest reads and validates a single specification manifest
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading specification %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing specification %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("specification %s: name is required", path)
	}
	if err := m.Specification.Validate(); err != nil {
		return nil, fmt.Errorf("specification %s: %w", path, err)
	}
	m.SourceRef = path
	if len(m.Files) == 0 {
		m.Files = []string{m.Name + ".go"}
	}
	return &m, nil
}

// Registry resolves watched file paths to their specifications. Reload
// replaces the whole set atomically so a scan in flight keeps the
// manifests it started with.
type Registry struct {
	dir string

	mu        sync.RWMutex
	manifests []*Manifest
}

// NewRegistry creates a registry rooted at a directory of *.yaml and
// *.yml specification manifests
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir}
}

// Reload re-reads every manifest under the registry directory. A
// missing directory is not an error; it means no specifications yet.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		r.mu.Lock()
		r.manifests = nil
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading specification directory %s: %w", r.dir, err)
	}

	var loaded []*Manifest
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		m, err := LoadManifest(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			return err
		}
		loaded = append(loaded, m)
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })

	r.mu.Lock()
	r.manifests = loaded
	r.mu.Unlock()
	return nil
}

// For returns the specification covering a watched path, or nil when no
// manifest claims it. Manifests are consulted in name order and the
// first match wins.
func (r *Registry) For(path string) *types.Specification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base := filepath.Base(path)
	norm := filepath.ToSlash(path)
	for _, m := range r.manifests {
		for _, pattern := range m.Files {
			if matchPattern(pattern, norm, base) {
				return &m.Specification
			}
		}
	}
	return nil
}

// Count returns the number of loaded manifests
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.manifests)
}

// matchPattern matches a glob against the full (slash-normalized) path,
// then against the bare filename for directory-independent patterns
// like "*.go"
func matchPattern(pattern, fullPath, base string) bool {
	if ok, _ := filepath.Match(pattern, fullPath); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// snapshotManifest is the JSON document external collectors write: one
// snapshot per observed file path.
type snapshotManifest struct {
	Files map[string]*types.Snapshot `json:"files"`
}

// LoadSnapshots reads a collector-produced snapshot manifest. Keys are
// slash-normalized before return.
func LoadSnapshots(path string) (map[string]*types.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot manifest %s: %w", path, err)
	}
	var m snapshotManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing snapshot manifest %s: %w", path, err)
	}
	out := make(map[string]*types.Snapshot, len(m.Files))
	for p, snap := range m.Files {
		out[filepath.ToSlash(p)] = snap
	}
	return out, nil
}

// GoModDependencies extracts the declared dependency versions from a
// go.mod file, keyed by module path. Indirect requirements are
// included; the specification decides which paths it cares about.
func GoModDependencies(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	deps := make(map[string]string, len(f.Require))
	for _, req := range f.Require {
		deps[req.Mod.Path] = req.Mod.Version
	}
	return deps, nil
}
