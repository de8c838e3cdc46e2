// Package catalog provides the tool catalog: an ordered set of tool
// profiles indexed by name, by capability, and by intent. The catalog is
// read-only after load; Reload builds a full replacement index and swaps
// it atomically, so in-flight requests keep a consistent view.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

// Loader fetches tool profiles from an external store. Implemented by
// SQLLoader (relational tables) and FSLoader (YAML corpus).
type Loader interface {
	LoadAll(ctx context.Context) ([]models.ToolProfile, error)
}

// intentKey indexes profiles by (category, action).
type intentKey struct {
	category string
	action   string
}

// index is one immutable snapshot of the catalog. Never mutated after
// build — Reload swaps the whole pointer.
type index struct {
	profiles     []models.ToolProfile
	byName       map[string]*models.ToolProfile
	byCapability map[string][]*models.ToolProfile
	byIntent     map[intentKey][]*models.ToolProfile
}

// Catalog is the process-wide tool catalog.
type Catalog struct {
	loader Loader
	idx    atomic.Pointer[index]
}

// New loads the catalog from the given loader. An empty catalog is fatal:
// every downstream stage references tools by name, so a pipeline without
// tools cannot serve action requests.
func New(ctx context.Context, loader Loader) (*Catalog, error) {
	c := &Catalog{loader: loader}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload fetches all profiles and atomically swaps the index. On failure
// the previous index stays in place.
func (c *Catalog) Reload(ctx context.Context) error {
	profiles, err := c.loader.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading tool profiles: %w", err)
	}
	if len(profiles) == 0 {
		return fmt.Errorf("tool catalog is empty")
	}

	c.idx.Store(buildIndex(profiles))
	slog.Info("Tool catalog loaded", "tools", len(profiles))
	return nil
}

func buildIndex(profiles []models.ToolProfile) *index {
	idx := &index{
		profiles:     profiles,
		byName:       make(map[string]*models.ToolProfile, len(profiles)),
		byCapability: make(map[string][]*models.ToolProfile),
		byIntent:     make(map[intentKey][]*models.ToolProfile),
	}
	for i := range profiles {
		p := &profiles[i]
		idx.byName[p.ToolName] = p
		for _, cap := range p.Capabilities {
			idx.byCapability[cap.Name] = append(idx.byCapability[cap.Name], p)
		}
		for _, tag := range p.IntentTags {
			key := intentKey{category: tag.Category, action: tag.Action}
			idx.byIntent[key] = append(idx.byIntent[key], p)
		}
	}
	return idx
}

// All returns every profile in load order.
func (c *Catalog) All() []models.ToolProfile {
	return c.idx.Load().profiles
}

// Len returns the number of loaded profiles.
func (c *Catalog) Len() int {
	return len(c.idx.Load().profiles)
}

// ByName returns the profile for the given tool name. Lookup misses are
// returned as absent, never errors.
func (c *Catalog) ByName(name string) (*models.ToolProfile, bool) {
	p, ok := c.idx.Load().byName[name]
	return p, ok
}

// ByCapability returns all profiles advertising the named capability.
func (c *Catalog) ByCapability(capability string) []*models.ToolProfile {
	return c.idx.Load().byCapability[capability]
}

// ByIntent returns all profiles tagged with the (category, action) pair.
func (c *Catalog) ByIntent(category, action string) []*models.ToolProfile {
	return c.idx.Load().byIntent[intentKey{category: category, action: action}]
}
