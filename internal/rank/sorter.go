// Package rank orders processed sources deterministically.
package rank

import (
	"cmp"
	"slices"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/ppiankov/sourcerank/internal/model"
	"github.com/ppiankov/sourcerank/internal/release"
)

// Release group penalties
const (
	penaltyTrusted     = 0
	penaltyNeutral     = 5
	penaltyUnknown     = 10
	penaltyBlacklisted = 50
)

// Maximum edit distance at which a group still counts as a listed one,
// e.g. "YIFY" against "YIFY1"
const groupFuzz = 2

// Availability classes, lowest sorts first
const (
	classReady = iota
	classViable
	classCritical
)

// Sorter orders ProcessedSourceData with a fixed lexicographic comparator:
//
//  1. availability class (cached first, CRITICAL uncached last)
//  2. quality score, descending
//  3. health score, descending
//  4. provider tier, descending
//  5. release group penalty, ascending
//  6. distance from the preferred size, ascending
//  7. source id
//
// The order is total, so sorting is stable and repeatable.
type Sorter struct {
	blacklisted []string
	trusted     []string
}

// NewSorter creates a sorter using the configured release group lists
func NewSorter(cfg model.RankingConfig) *Sorter {
	return &Sorter{
		blacklisted: cleanGroups(cfg.BlacklistedGroups),
		trusted:     cleanGroups(cfg.TrustedGroups),
	}
}

// sortKey holds everything the comparator reads, computed once per item
type sortKey struct {
	class    int
	quality  int
	health   int
	tier     model.ReliabilityTier
	penalty  int
	sizeDist int64
	id       string
}

// Sort returns a sorted copy of items. The input slice is not modified.
func (s *Sorter) Sort(items []model.ProcessedSourceData, prefs model.SourcePreferences) []model.ProcessedSourceData {
	type keyed struct {
		key  sortKey
		item model.ProcessedSourceData
	}

	ks := make([]keyed, len(items))
	for i, it := range items {
		ks[i] = keyed{key: s.keyFor(it, prefs), item: it}
	}

	slices.SortStableFunc(ks, func(a, b keyed) int { return compareKeys(a.key, b.key) })

	out := make([]model.ProcessedSourceData, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out
}

// Compare orders two items the way Sort does.
func (s *Sorter) Compare(a, b model.ProcessedSourceData, prefs model.SourcePreferences) int {
	return compareKeys(s.keyFor(a, prefs), s.keyFor(b, prefs))
}

// GroupPenalty returns the ordering penalty for a release group. Unknown
// groups are penalized, blacklisted ones heavily.
func (s *Sorter) GroupPenalty(group string) int {
	group = strings.TrimSpace(group)
	switch {
	case group == "":
		return penaltyUnknown
	case matchesGroup(group, s.blacklisted):
		return penaltyBlacklisted
	case matchesGroup(group, s.trusted):
		return penaltyTrusted
	default:
		return penaltyNeutral
	}
}

func (s *Sorter) keyFor(p model.ProcessedSourceData, prefs model.SourcePreferences) sortKey {
	group := p.Source.Release.Group
	if strings.TrimSpace(group) == "" {
		group = release.Inspect(p.Source).Group
	}

	var dist int64
	if prefs.TargetSizeBytes > 0 {
		dist = p.Source.File.SizeBytes - prefs.TargetSizeBytes
		if dist < 0 {
			dist = -dist
		}
	}

	return sortKey{
		class:    availabilityClass(p),
		quality:  p.QualityScore,
		health:   p.Health.OverallScore,
		tier:     p.Source.Provider.Tier,
		penalty:  s.GroupPenalty(group),
		sizeDist: dist,
		id:       p.Source.ID,
	}
}

func compareKeys(a, b sortKey) int {
	if c := cmp.Compare(a.class, b.class); c != 0 {
		return c
	}
	if c := cmp.Compare(b.quality, a.quality); c != 0 {
		return c
	}
	if c := cmp.Compare(b.health, a.health); c != 0 {
		return c
	}
	if c := cmp.Compare(b.tier, a.tier); c != 0 {
		return c
	}
	if c := cmp.Compare(a.penalty, b.penalty); c != 0 {
		return c
	}
	if c := cmp.Compare(a.sizeDist, b.sizeDist); c != 0 {
		return c
	}
	return strings.Compare(a.id, b.id)
}

// availabilityClass puts cached sources first and uncached CRITICAL ones last
func availabilityClass(p model.ProcessedSourceData) int {
	switch {
	case p.Source.Cached:
		return classReady
	case p.Health.Risk == model.RiskCritical:
		return classCritical
	default:
		return classViable
	}
}

func matchesGroup(group string, list []string) bool {
	for _, g := range list {
		if strings.EqualFold(g, group) {
			return true
		}
		if rank := fuzzy.RankMatchNormalizedFold(g, group); rank >= 0 && rank <= groupFuzz {
			return true
		}
	}
	return false
}

func cleanGroups(groups []string) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
