package monitor

import (
	"testing"

	"github.com/fsnotify/fsnotify"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/types"
)

func patternWatcher(root string) *watcher {
	cfg := config.Default()
	return &watcher{cfg: cfg, root: root}
}

func TestMatchesWatch(t *testing.T) {
	w := patternWatcher("/project")

	tests := []struct {
		path string
		want bool
	}{
		{"/project/main.go", true},
		{"/project/internal/billing/billing.go", true},
		{"/project/README.md", false},
		{"/project/script.py", false},
	}
	for _, tt := range tests {
		if got := w.matchesWatch(tt.path); got != tt.want {
			t.Errorf("matchesWatch(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIgnored(t *testing.T) {
	w := patternWatcher("/project")

	tests := []struct {
		path string
		want bool
	}{
		{"/project/.git/HEAD", true},
		{"/project/vendor/mod/file.go", true},
		{"/project/pkg/testdata/fixture.go", true},
		{"/project/pkg/billing.go", false},
	}
	for _, tt := range tests {
		if got := w.ignored(tt.path); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestChangeKind(t *testing.T) {
	tests := []struct {
		op     fsnotify.Op
		want   types.ChangeKind
		wantOK bool
	}{
		{fsnotify.Create, types.ChangeCreated, true},
		{fsnotify.Write, types.ChangeModified, true},
		{fsnotify.Remove, types.ChangeDeleted, true},
		{fsnotify.Rename, types.ChangeDeleted, true},
		{fsnotify.Chmod, "", false},
	}
	for _, tt := range tests {
		got, ok := changeKind(tt.op)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("changeKind(%v) = %q, %v; want %q, %v", tt.op, got, ok, tt.want, tt.wantOK)
		}
	}
}
