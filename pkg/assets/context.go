package assets

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// compactSchema is the schema-only inventory description injected when a
// full data summary would blow the token budget. Fixed size by
// construction.
const compactSchema = `ASSET INVENTORY SCHEMA
Each managed asset carries: id, hostname, ip_address, os_type, os_version,
environment (production/staging/development), tags, status.
Query the inventory by hostname, IP, environment, or OS family.`

// CompactContext returns the schema-only context block.
func (p *Provider) CompactContext() string {
	return compactSchema
}

// ComprehensiveContext returns the schema plus a live data summary for up
// to maxAssets entries. Callers fall back to CompactContext when this
// fails; the error carries the degradation kind for warning collection.
func (p *Provider) ComprehensiveContext(ctx context.Context, maxAssets int) (string, error) {
	list, err := p.FetchAssets(ctx, "", maxAssets)
	if err != nil {
		return "", err
	}
	if len(list) > maxAssets {
		list = list[:maxAssets]
	}

	var b strings.Builder
	b.WriteString(compactSchema)
	b.WriteString("\n\nCURRENT INVENTORY")
	fmt.Fprintf(&b, " (%d assets", len(list))
	byEnv := countByEnvironment(list)
	if len(byEnv) > 0 {
		b.WriteString("; ")
		b.WriteString(formatEnvCounts(byEnv))
	}
	b.WriteString("):\n")
	for i := range list {
		b.WriteString("- ")
		b.WriteString(describeAsset(&list[i]))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func countByEnvironment(list []Asset) map[string]int {
	counts := make(map[string]int)
	for i := range list {
		if env := list[i].Environment; env != "" {
			counts[env]++
		}
	}
	return counts
}

func formatEnvCounts(counts map[string]int) string {
	envs := make([]string, 0, len(counts))
	for env := range counts {
		envs = append(envs, env)
	}
	sort.Strings(envs)

	parts := make([]string, 0, len(envs))
	for _, env := range envs {
		parts = append(parts, fmt.Sprintf("%d %s", counts[env], env))
	}
	return strings.Join(parts, ", ")
}
