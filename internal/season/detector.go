// Package season detects whether a release bundles whole seasons.
package season

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/moistari/rls"

	"github.com/ppiankov/sourcerank/internal/model"
)

// Confidence ceiling when no episode-count hint verifies completeness
const unverifiedCap = 70

var (
	episodePattern = regexp.MustCompile(`(?i)\bS\d{1,2}\s?E\d{1,3}|\b\d{1,2}x\d{2,3}\b`)

	rangePattern          = regexp.MustCompile(`(?i)\bS(\d{1,2})\s?(?:-|to)\s?S?(\d{1,2})\b`)
	seasonsRangePattern   = regexp.MustCompile(`(?i)\bSeasons?\s(\d{1,2})\s?(?:-|to|&|and)\s?(\d{1,2})\b`)
	completeSeriesPattern = regexp.MustCompile(`(?i)\bComplete\s(?:Series|Collection)\b|\bAll\sSeasons\b`)
	completeSeasonPattern = regexp.MustCompile(`(?i)\bComplete\sSeason\s?(\d{1,2})?\b|\bSeason\s(\d{1,2})\sComplete\b|\bS(\d{1,2})\sComplete\b`)
	bareSeasonPattern     = regexp.MustCompile(`(?i)\bS(\d{1,2})\b`)
	seasonWordPattern     = regexp.MustCompile(`(?i)\bSeason\s(\d{1,2})\b`)
)

// rule is one title pattern. Rules are tried in order and the first match
// wins, so looser patterns carry lower confidence.
type rule struct {
	name       string
	confidence int
	match      func(title string) (seasons []int, ok bool)
	multi      bool // A match may cover a full series
}

var rules = []rule{
	{name: "season-range", confidence: 95, multi: true, match: matchRange(rangePattern)},
	{name: "seasons-words", confidence: 85, multi: true, match: matchRange(seasonsRangePattern)},
	{name: "complete-series", confidence: 90, multi: true, match: func(title string) ([]int, bool) {
		return nil, completeSeriesPattern.MatchString(title)
	}},
	{name: "complete-season", confidence: 90, match: func(title string) ([]int, bool) {
		m := completeSeasonPattern.FindStringSubmatch(title)
		if m == nil {
			return nil, false
		}
		for _, g := range m[1:] {
			if n, err := strconv.Atoi(g); err == nil {
				return []int{n}, true
			}
		}
		return nil, true
	}},
	{name: "single-season", confidence: 85, match: matchSingle(bareSeasonPattern)},
	{name: "season-word", confidence: 75, match: matchSingle(seasonWordPattern)},
}

// Detector applies the ordered title rules
type Detector struct {
	threshold int
}

// NewDetector creates a detector. Matches below threshold are reported as
// not being season packs.
func NewDetector(cfg model.SeasonConfig) *Detector {
	return &Detector{threshold: cfg.ConfidenceThreshold}
}

// Detect classifies title. hint may be nil.
func (d *Detector) Detect(title string, hint *model.EpisodeHint) model.SeasonPackInfo {
	normalized := normalize(title)
	if normalized == "" || episodePattern.MatchString(normalized) {
		return model.SeasonPackInfo{}
	}

	info, ok := d.matchRules(normalized)
	if !ok {
		info, ok = d.matchParsed(title)
		if !ok {
			return model.SeasonPackInfo{}
		}
	}

	d.applyHint(&info, hint)

	if info.Confidence < d.threshold {
		return model.SeasonPackInfo{Confidence: info.Confidence, Pattern: info.Pattern}
	}
	info.IsSeasonPack = true
	return info
}

// DetectSource classifies a source from its title (or file name) and hint.
func (d *Detector) DetectSource(src model.SourceMetadata) model.SeasonPackInfo {
	title := src.Title
	if strings.TrimSpace(title) == "" {
		title = src.File.Name
	}
	return d.Detect(title, src.Episodes)
}

func (d *Detector) matchRules(title string) (model.SeasonPackInfo, bool) {
	for _, r := range rules {
		seasons, ok := r.match(title)
		if !ok {
			continue
		}
		return model.SeasonPackInfo{
			Seasons:      seasons,
			Confidence:   r.confidence,
			Completeness: 1,
			Pattern:      r.name,
		}, true
	}
	return model.SeasonPackInfo{}, false
}

// matchParsed falls back to the release parser's own notion of a series pack.
func (d *Detector) matchParsed(title string) (model.SeasonPackInfo, bool) {
	r := rls.ParseString(title)
	if r.Type != rls.Series || r.Series <= 0 || r.Episode > 0 {
		return model.SeasonPackInfo{}, false
	}
	return model.SeasonPackInfo{
		Seasons:      []int{r.Series},
		Confidence:   60,
		Completeness: 1,
		Pattern:      "parsed-series",
	}, true
}

// applyHint sets completeness from the episode counts and decides whether a
// multi-season match covers the whole series.
func (d *Detector) applyHint(info *model.SeasonPackInfo, hint *model.EpisodeHint) {
	if hint != nil && hint.Expected > 0 {
		info.Completeness = min(1, float64(max(hint.Present, 0))/float64(hint.Expected))
	} else {
		info.Completeness = 1
		info.Confidence = min(info.Confidence, unverifiedCap)
	}

	known := 0
	if hint != nil {
		known = hint.KnownSeasonCount
	}
	if !isMulti(info.Pattern) || known <= 0 {
		return
	}
	if info.Pattern == "complete-series" && len(info.Seasons) == 0 {
		info.Seasons = seasonRange(1, known)
	}
	info.IsCompleteSeries = len(info.Seasons) == known && info.Seasons[0] == 1 && info.Seasons[len(info.Seasons)-1] == known
}

func isMulti(pattern string) bool {
	for _, r := range rules {
		if r.name == pattern {
			return r.multi
		}
	}
	return false
}

func matchRange(re *regexp.Regexp) func(string) ([]int, bool) {
	return func(title string) ([]int, bool) {
		m := re.FindStringSubmatch(title)
		if m == nil {
			return nil, false
		}
		lo, err1 := strconv.Atoi(m[1])
		hi, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return nil, false
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		return seasonRange(lo, hi), true
	}
}

func matchSingle(re *regexp.Regexp) func(string) ([]int, bool) {
	return func(title string) ([]int, bool) {
		m := re.FindStringSubmatch(title)
		if m == nil {
			return nil, false
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, false
		}
		return []int{n}, true
	}
}

func seasonRange(lo, hi int) []int {
	out := make([]int, 0, hi-lo+1)
	for s := lo; s <= hi; s++ {
		out = append(out, s)
	}
	return out
}

// normalize turns scene separators into spaces.
func normalize(title string) string {
	t := strings.NewReplacer(".", " ", "_", " ", "[", " ", "]", " ", "(", " ", ")", " ").Replace(title)
	return strings.Join(strings.Fields(t), " ")
}
