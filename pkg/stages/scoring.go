package stages

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

// Hybrid scoring weights, fixed at design time. Accuracy and capability
// match dominate; time, cost, and complexity are penalties.
const (
	weightAccuracy     = 0.30
	weightCompleteness = 0.20
	weightTime         = 0.15
	weightCost         = 0.10
	weightComplexity   = 0.10
	weightMatch        = 0.30
)

var tokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9_\-]*`)

func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) > 2 {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// keywordOverlap counts request tokens appearing in the profile's name,
// description, and capability names. Used only for shortlisting, not for
// the final ranking.
func keywordOverlap(requestTokens map[string]struct{}, p *models.ToolProfile) int {
	var profileText strings.Builder
	profileText.WriteString(p.ToolName)
	profileText.WriteString(" ")
	profileText.WriteString(p.Description)
	for _, c := range p.Capabilities {
		profileText.WriteString(" ")
		profileText.WriteString(c.Name)
		profileText.WriteString(" ")
		profileText.WriteString(c.Description)
	}
	profileTokens := tokenize(profileText.String())

	count := 0
	for tok := range requestTokens {
		if _, ok := profileTokens[tok]; ok {
			count++
		}
	}
	return count
}

// shortlist returns up to k profiles ranked by keyword overlap with the
// request, ties broken by name for determinism. Profiles with zero
// overlap still qualify when fewer than k have any.
func shortlist(profiles []models.ToolProfile, request string, k int) []*models.ToolProfile {
	requestTokens := tokenize(request)

	type ranked struct {
		profile *models.ToolProfile
		overlap int
	}
	all := make([]ranked, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		all = append(all, ranked{profile: p, overlap: keywordOverlap(requestTokens, p)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].overlap != all[j].overlap {
			return all[i].overlap > all[j].overlap
		}
		return all[i].profile.ToolName < all[j].profile.ToolName
	})

	if len(all) > k {
		all = all[:k]
	}
	out := make([]*models.ToolProfile, len(all))
	for i, r := range all {
		out[i] = r.profile
	}
	return out
}

// candidate is one tool under consideration by the hybrid scorer.
type candidate struct {
	profile       *models.ToolProfile
	capability    string
	pattern       *models.Pattern
	justification string
	score         float64
}

// capabilityOverlap is the fraction of required capabilities the profile
// advertises. Zero when nothing is required.
func capabilityOverlap(required []string, p *models.ToolProfile) float64 {
	if len(required) == 0 {
		return 0
	}
	matched := 0
	for _, name := range required {
		if p.HasCapability(name) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// matchedCapability picks the capability to attach to a selected tool:
// the first required capability the profile advertises, else its first.
func matchedCapability(required []string, p *models.ToolProfile) string {
	for _, name := range required {
		if p.HasCapability(name) {
			return name
		}
	}
	if len(p.Capabilities) > 0 {
		return p.Capabilities[0].Name
	}
	return ""
}

// rankCandidates scores candidates with the hybrid formula and sorts them
// descending, ties broken by tool name. Pattern time_ms is min-max
// normalized within the candidate set so one slow outlier cannot distort
// the others.
func rankCandidates(candidates []candidate, required []string) []candidate {
	minTime, maxTime := timeRange(candidates)
	span := float64(maxTime - minTime)

	for i := range candidates {
		c := &candidates[i]
		f := c.pattern.Features

		normTime := 0.0
		if span > 0 {
			normTime = float64(f.TimeMS-minTime) / span
		}

		c.score = weightAccuracy*f.Accuracy +
			weightCompleteness*f.Completeness -
			weightTime*normTime -
			weightCost*f.Cost -
			weightComplexity*f.Complexity +
			weightMatch*capabilityOverlap(required, c.profile)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].profile.ToolName < candidates[j].profile.ToolName
	})
	return candidates
}

func timeRange(candidates []candidate) (minT, maxT int) {
	for i, c := range candidates {
		t := c.pattern.Features.TimeMS
		if i == 0 || t < minT {
			minT = t
		}
		if t > maxT {
			maxT = t
		}
	}
	return minT, maxT
}

func describeCandidate(c *candidate) string {
	return fmt.Sprintf("%s (capability %s, pattern %s): %s",
		c.profile.ToolName, c.capability, c.pattern.Name, c.profile.Description)
}
