package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/resilience"
)

// cacheKey fingerprints one inventory query.
type cacheKey struct {
	filter string
	limit  int
}

// assetEnvelope is the inventory service response shape.
type assetEnvelope struct {
	Data struct {
		Assets []Asset `json:"assets"`
	} `json:"data"`
}

// TargetResolution is the outcome of resolving a hostname or IP against
// the inventory.
type TargetResolution struct {
	IsAsset bool
	Asset   *Asset
	Summary string
}

// Provider fetches and formats infrastructure inventory. One instance is
// shared process-wide; the cache and breaker inside it are safe for
// concurrent use.
type Provider struct {
	cfg     *config.AssetConfig
	client  *http.Client
	breaker *resilience.Breaker
	cache   *resilience.TTLCache[cacheKey, []Asset]
	logger  *slog.Logger
}

// NewProvider creates the asset-context provider.
func NewProvider(cfg *config.AssetConfig) *Provider {
	return &Provider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		breaker: resilience.NewBreaker("asset-service", uint32(cfg.BreakerThreshold), cfg.BreakerCooldown),
		cache:   resilience.NewTTLCache[cacheKey, []Asset](cfg.CacheSize, cfg.CacheTTL),
		logger:  slog.With("component", "assets"),
	}
}

// Degraded reports whether the asset-service breaker is currently open.
func (p *Provider) Degraded() bool {
	return p.breaker.Open()
}

// FetchAssets queries the inventory service, serving repeats from the
// cache. A limit of 0 uses the configured default. Breaker-open and
// transport failures surface as ASSET_SERVICE_DEGRADED.
func (p *Provider) FetchAssets(ctx context.Context, filter string, limit int) ([]Asset, error) {
	if limit <= 0 {
		limit = p.cfg.DefaultLimit
	}
	key := cacheKey{filter: filter, limit: limit}
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	fetched, err := resilience.Do(p.breaker, func() ([]Asset, error) {
		return p.fetch(ctx, filter, limit)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, models.WrapPipelineError(models.ErrKindAssetServiceDegraded,
				"Asset inventory is temporarily unavailable.", err)
		}
		return nil, models.WrapPipelineError(models.ErrKindAssetServiceDegraded,
			"Asset inventory could not be reached.", err)
	}

	p.cache.Add(key, fetched)
	return fetched, nil
}

func (p *Provider) fetch(ctx context.Context, filter string, limit int) ([]Asset, error) {
	endpoint, err := url.Parse(p.cfg.ServiceURL)
	if err != nil {
		return nil, fmt.Errorf("parsing asset service URL: %w", err)
	}
	query := endpoint.Query()
	if filter != "" {
		query.Set("search", filter)
	}
	query.Set("limit", strconv.Itoa(limit))
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building asset request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching assets: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain a little for connection reuse, ignore content.
		_, _ = io.CopyN(io.Discard, resp.Body, 1024)
		return nil, fmt.Errorf("asset service returned status %d", resp.StatusCode)
	}

	var envelope assetEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding asset response: %w", err)
	}
	return envelope.Data.Assets, nil
}

// ContextForTarget resolves a hostname or IP into an inventory record or
// an explicit "ad-hoc target" marker.
func (p *Provider) ContextForTarget(ctx context.Context, target string) (*TargetResolution, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return &TargetResolution{Summary: "no target specified"}, nil
	}

	matches, err := p.FetchAssets(ctx, target, p.cfg.DefaultLimit)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(target)
	for i := range matches {
		a := &matches[i]
		if strings.ToLower(a.Hostname) == lower || a.IPAddress == target {
			return &TargetResolution{
				IsAsset: true,
				Asset:   a,
				Summary: describeAsset(a),
			}, nil
		}
	}

	return &TargetResolution{
		IsAsset: false,
		Summary: fmt.Sprintf("%s is an ad-hoc target not present in the asset inventory", target),
	}, nil
}

func describeAsset(a *Asset) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", a.Hostname, a.IPAddress)
	if a.OSType != "" {
		fmt.Fprintf(&b, ", %s %s", a.OSType, a.OSVersion)
	}
	if a.Environment != "" {
		fmt.Fprintf(&b, ", environment %s", a.Environment)
	}
	if a.Status != "" {
		fmt.Fprintf(&b, ", status %s", a.Status)
	}
	if len(a.Tags) > 0 {
		fmt.Fprintf(&b, ", tags [%s]", strings.Join(a.Tags, ", "))
	}
	return b.String()
}
