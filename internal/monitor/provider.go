package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/driftwatch/driftwatch/internal/specs"
	"github.com/driftwatch/driftwatch/internal/types"
)

// SnapshotProvider supplies the observed state of a file for detection.
// A nil snapshot (with nil error) means the file no longer exists.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, path string) (*types.Snapshot, error)
}

// ManifestProvider reads collector-produced snapshot manifests and the
// project's go.mod. Both are cached by modification time so a scan
// batch does not re-read them per file.
type ManifestProvider struct {
	root         string
	manifestPath string
	goModPath    string

	mu            sync.Mutex
	manifest      map[string]*types.Snapshot
	manifestMTime int64
	deps          map[string]string
	depsMTime     int64
}

// NewManifestProvider creates a provider rooted at the watched tree.
// manifestPath may be empty when no collector runs; dependency and
// spec-document observations still flow from go.mod.
func NewManifestProvider(root, manifestPath, goModPath string) *ManifestProvider {
	return &ManifestProvider{
		root:         root,
		manifestPath: manifestPath,
		goModPath:    goModPath,
	}
}

// Snapshot returns the observed state for path
func (p *ManifestProvider) Snapshot(_ context.Context, path string) (*types.Snapshot, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.refreshLocked(); err != nil {
		return nil, err
	}

	snap := p.lookupLocked(path)
	if snap == nil {
		// The file exists but no collector has described it yet;
		// detection proceeds with an empty observation set.
		snap = &types.Snapshot{}
	} else {
		clone := *snap
		snap = &clone
	}
	if snap.Dependencies == nil {
		snap.Dependencies = p.deps
	}
	return snap, nil
}

// refreshLocked re-reads manifest and go.mod when they changed on disk
func (p *ManifestProvider) refreshLocked() error {
	if p.manifestPath != "" {
		if info, err := os.Stat(p.manifestPath); err == nil {
			if mtime := info.ModTime().UnixNano(); mtime != p.manifestMTime {
				manifest, err := specs.LoadSnapshots(p.manifestPath)
				if err != nil {
					return err
				}
				p.manifest = manifest
				p.manifestMTime = mtime
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat snapshot manifest: %w", err)
		}
	}

	if p.goModPath != "" {
		if info, err := os.Stat(p.goModPath); err == nil {
			if mtime := info.ModTime().UnixNano(); mtime != p.depsMTime {
				deps, err := specs.GoModDependencies(p.goModPath)
				if err != nil {
					return err
				}
				p.deps = deps
				p.depsMTime = mtime
			}
		}
	}
	return nil
}

// lookupLocked finds the manifest entry for path, trying the path as
// given and relative to the watched root
func (p *ManifestProvider) lookupLocked(path string) *types.Snapshot {
	norm := filepath.ToSlash(path)
	if snap, ok := p.manifest[norm]; ok {
		return snap
	}
	if rel, err := filepath.Rel(p.root, path); err == nil {
		if snap, ok := p.manifest[filepath.ToSlash(rel)]; ok {
			return snap
		}
	}
	return nil
}
