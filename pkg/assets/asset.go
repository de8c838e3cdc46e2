// Package assets provides the asset-context provider: it decides when a
// request needs infrastructure inventory, fetches assets from the
// inventory service behind a circuit breaker and a TTL'd cache, and
// renders bounded context blocks for prompt assembly.
package assets

import "encoding/json"

// Asset is one inventory entry describing a managed host or device.
// Unknown fields from the inventory service are preserved in Extra so
// context rendering can surface them without a schema change here.
type Asset struct {
	ID          string   `json:"id"`
	Hostname    string   `json:"hostname"`
	IPAddress   string   `json:"ip_address"`
	OSType      string   `json:"os_type"`
	OSVersion   string   `json:"os_version"`
	Environment string   `json:"environment"`
	Tags        []string `json:"tags"`
	Status      string   `json:"status"`

	Extra map[string]any `json:"-"`
}

var knownAssetFields = map[string]struct{}{
	"id": {}, "hostname": {}, "ip_address": {}, "os_type": {},
	"os_version": {}, "environment": {}, "tags": {}, "status": {},
}

// UnmarshalJSON decodes the known fields and keeps everything else in
// Extra as pass-through data.
func (a *Asset) UnmarshalJSON(data []byte) error {
	type alias Asset
	var known alias
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for field := range knownAssetFields {
		delete(raw, field)
	}

	*a = Asset(known)
	if len(raw) > 0 {
		a.Extra = raw
	}
	return nil
}

// HasTag reports whether the asset carries the given tag.
func (a *Asset) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
