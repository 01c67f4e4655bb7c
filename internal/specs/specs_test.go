package specs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const billingManifest = `name: billing
doc_revision: rev-3
files:
  - "billing*.go"
elements:
  - id: Charge
    signature: "Charge(amount int, currency string) error"
    public: true
  - id: Refund
    signature: "Refund(id string) error"
    public: true
    breaking_if_removed: true
dependencies:
  - path: github.com/google/uuid
    version: "^v1.6.0"
`

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "billing.yaml", billingManifest)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "billing", m.Name)
	assert.Equal(t, path, m.SourceRef)
	assert.Equal(t, "rev-3", m.DocRevision)
	assert.Len(t, m.Elements, 2)
	assert.True(t, m.Elements[1].BreakingIfRemoved)
	require.Len(t, m.Dependencies, 1)
	assert.Equal(t, "^v1.6.0", m.Dependencies[0].Version)
}

func TestLoadManifestRejectsDuplicateElements(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "dup.yaml", `name: dup
elements:
  - id: A
    signature: "A()"
  - id: A
    signature: "A(x int)"
`)
	_, err := LoadManifest(path)
	assert.Error(t, err)
}

func TestLoadManifestRequiresName(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "anon.yaml", "elements: []\n")
	_, err := LoadManifest(path)
	assert.Error(t, err)
}

func TestRegistryReloadAndMatch(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "billing.yaml", billingManifest)
	writeManifest(t, dir, "ledger.yaml", `name: ledger
files:
  - "internal/ledger/*.go"
elements: []
`)
	writeManifest(t, dir, "notes.txt", "not a manifest")

	r := NewRegistry(dir)
	require.NoError(t, r.Reload())
	assert.Equal(t, 2, r.Count())

	// Bare patterns match by filename regardless of directory.
	spec := r.For("pkg/payments/billing_core.go")
	require.NotNil(t, spec)
	assert.Equal(t, "billing", spec.Name)

	// Path patterns match the full slash-normalized path.
	spec = r.For("internal/ledger/entries.go")
	require.NotNil(t, spec)
	assert.Equal(t, "ledger", spec.Name)

	assert.Nil(t, r.For("cmd/main.go"))
}

func TestRegistryMissingDirectory(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, r.Reload())
	assert.Equal(t, 0, r.Count())
	assert.Nil(t, r.For("anything.go"))
}

func TestLoadSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")
	content := `{
  "files": {
    "internal\\billing\\billing.go": {
      "signatures": {
        "Charge": {"signature": "Charge(amount int) error"}
      },
      "doc_hash": "rev-2"
    }
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	snaps, err := LoadSnapshots(path)
	require.NoError(t, err)
	snap, ok := snaps["internal/billing/billing.go"]
	require.True(t, ok, "keys should be slash-normalized")
	assert.Equal(t, "Charge(amount int) error", snap.Signatures["Charge"].Signature)
	assert.Equal(t, "rev-2", snap.DocHash)
}

func TestGoModDependencies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "go.mod")
	content := `module example.com/demo

go 1.25

require (
	github.com/google/uuid v1.6.0
	gopkg.in/yaml.v3 v3.0.1 // indirect
)
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	deps, err := GoModDependencies(path)
	require.NoError(t, err)
	assert.Equal(t, "v1.6.0", deps["github.com/google/uuid"])
	assert.Equal(t, "v3.0.1", deps["gopkg.in/yaml.v3"])
}
