package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

// FSLoader loads tool profiles from a filesystem corpus: one YAML
// document per file, sorted by filename for a deterministic load order.
type FSLoader struct {
	fsys fs.FS
}

// NewFSLoader creates a loader over the given directory.
func NewFSLoader(dir string) *FSLoader {
	return &FSLoader{fsys: os.DirFS(dir)}
}

// NewFSLoaderFromFS creates a loader over an arbitrary fs.FS (tests,
// embedded corpora).
func NewFSLoaderFromFS(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

// LoadAll parses every .yaml/.yml file in the corpus. A file that fails
// to parse fails the whole load — a partially-loaded catalog would give
// the selector an inconsistent view of the world.
func (l *FSLoader) LoadAll(ctx context.Context) ([]models.ToolProfile, error) {
	var paths []string
	err := fs.WalkDir(l.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking tool corpus: %w", err)
	}
	sort.Strings(paths)

	profiles := make([]models.ToolProfile, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := fs.ReadFile(l.fsys, path)
		if err != nil {
			return nil, fmt.Errorf("reading tool profile %s: %w", path, err)
		}

		var profile models.ToolProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parsing tool profile %s: %w", path, err)
		}
		if profile.ToolName == "" {
			return nil, fmt.Errorf("tool profile %s: tool_name is required", path)
		}
		if prev, dup := seen[profile.ToolName]; dup {
			slog.Warn("Duplicate tool profile, keeping first occurrence",
				"tool", profile.ToolName, "kept", prev, "skipped", path)
			continue
		}
		seen[profile.ToolName] = path
		profiles = append(profiles, profile)
	}

	return profiles, nil
}
