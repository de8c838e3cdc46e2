package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

// SQLLoader loads tool profiles from the relational catalog store
// (tools, tool_capabilities, tool_patterns, tool_intents).
type SQLLoader struct {
	db *sql.DB
}

// NewSQLLoader creates a loader over the given database pool.
func NewSQLLoader(db *sql.DB) *SQLLoader {
	return &SQLLoader{db: db}
}

// LoadAll reads the four catalog tables and joins them into profiles.
// Load order follows tool_name for determinism.
func (l *SQLLoader) LoadAll(ctx context.Context) ([]models.ToolProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	profiles, order, err := l.loadTools(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.loadCapabilities(ctx, profiles); err != nil {
		return nil, err
	}
	if err := l.loadPatterns(ctx, profiles); err != nil {
		return nil, err
	}
	if err := l.loadIntents(ctx, profiles); err != nil {
		return nil, err
	}

	out := make([]models.ToolProfile, 0, len(order))
	for _, name := range order {
		out = append(out, *profiles[name])
	}
	return out, nil
}

func (l *SQLLoader) loadTools(ctx context.Context) (map[string]*models.ToolProfile, []string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT tool_name, platform, category, description, destructive
		 FROM tools ORDER BY tool_name`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying tools: %w", err)
	}
	defer func() { _ = rows.Close() }()

	profiles := make(map[string]*models.ToolProfile)
	var order []string
	for rows.Next() {
		var p models.ToolProfile
		if err := rows.Scan(&p.ToolName, &p.Platform, &p.Category, &p.Description, &p.Destructive); err != nil {
			return nil, nil, fmt.Errorf("scanning tool row: %w", err)
		}
		profiles[p.ToolName] = &p
		order = append(order, p.ToolName)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating tool rows: %w", err)
	}
	return profiles, order, nil
}

func (l *SQLLoader) loadCapabilities(ctx context.Context, profiles map[string]*models.ToolProfile) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT tool_name, name, description FROM tool_capabilities ORDER BY tool_name, id`)
	if err != nil {
		return fmt.Errorf("querying tool capabilities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var toolName string
		var cap models.Capability
		if err := rows.Scan(&toolName, &cap.Name, &cap.Description); err != nil {
			return fmt.Errorf("scanning capability row: %w", err)
		}
		if p, ok := profiles[toolName]; ok {
			p.Capabilities = append(p.Capabilities, cap)
		}
	}
	return rows.Err()
}

func (l *SQLLoader) loadPatterns(ctx context.Context, profiles map[string]*models.ToolProfile) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT tool_name, name, description, time_ms, cost, accuracy, completeness,
		        complexity, limitations, input_schema
		 FROM tool_patterns ORDER BY tool_name, id`)
	if err != nil {
		return fmt.Errorf("querying tool patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var toolName string
		var pattern models.Pattern
		var schemaJSON []byte
		if err := rows.Scan(&toolName, &pattern.Name, &pattern.Description,
			&pattern.Features.TimeMS, &pattern.Features.Cost, &pattern.Features.Accuracy,
			&pattern.Features.Completeness, &pattern.Features.Complexity,
			&pattern.Features.Limitations, &schemaJSON); err != nil {
			return fmt.Errorf("scanning pattern row: %w", err)
		}
		if len(schemaJSON) > 0 {
			if err := json.Unmarshal(schemaJSON, &pattern.InputSchema); err != nil {
				return fmt.Errorf("parsing input schema for %s.%s: %w", toolName, pattern.Name, err)
			}
		}
		if p, ok := profiles[toolName]; ok {
			p.Patterns = append(p.Patterns, pattern)
		}
	}
	return rows.Err()
}

func (l *SQLLoader) loadIntents(ctx context.Context, profiles map[string]*models.ToolProfile) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT tool_name, category, action FROM tool_intents ORDER BY tool_name, id`)
	if err != nil {
		return fmt.Errorf("querying tool intents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var toolName string
		var tag models.IntentTag
		if err := rows.Scan(&toolName, &tag.Category, &tag.Action); err != nil {
			return fmt.Errorf("scanning intent row: %w", err)
		}
		if p, ok := profiles[toolName]; ok {
			p.IntentTags = append(p.IntentTags, tag)
		}
	}
	return rows.Err()
}
