// Package decision implements the release scoring policy: a pure,
// deterministic ranking of indexer candidates against configured preferences.
// The same (candidate, preferences) input always produces the same result.
package decision

import (
	"fmt"
	"strings"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/config"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/release"
)

// Preferences holds the scoring configuration in scoring-ready form.
type Preferences struct {
	ResolutionWeights map[string]float64
	SourceWeights     map[string]float64
	CodecWeights      map[string]float64
	MinimumScore      float64
	PreferredGroups   []string
	ForbiddenGroups   []string
	ForbiddenKeywords []string
	MinSeeders        int
	SeederPenalty     float64
	GroupBonus        float64
	FreeleechBonus    float64
	InternalBonus     float64
	MaxSizeBytes      int64
	SizeEpsilon       float64
}

// PreferencesFromConfig converts the raw scoring section into Preferences.
func PreferencesFromConfig(cfg config.Scoring) Preferences {
	return Preferences{
		ResolutionWeights: cfg.ResolutionWeights,
		SourceWeights:     cfg.SourceWeights,
		CodecWeights:      cfg.CodecWeights,
		MinimumScore:      cfg.MinimumScore,
		PreferredGroups:   cfg.PreferredGroups,
		ForbiddenGroups:   cfg.ForbiddenGroups,
		ForbiddenKeywords: cfg.ForbiddenKeywords,
		MinSeeders:        cfg.MinSeeders,
		SeederPenalty:     cfg.SeederPenalty,
		GroupBonus:        cfg.GroupBonus,
		FreeleechBonus:    cfg.FreeleechBonus,
		InternalBonus:     cfg.InternalBonus,
		MaxSizeBytes:      int64(cfg.MaxSizeGB * 1024 * 1024 * 1024),
		SizeEpsilon:       cfg.SizeEpsilon,
	}
}

// DefaultPreferences returns the built-in preferences.
func DefaultPreferences() Preferences {
	return PreferencesFromConfig(config.Default().Scoring)
}

// Decision is the scored outcome for one candidate.
type Decision struct {
	Candidate release.Candidate
	Score     float64
	Accepted  bool
	Reason    string
}

// Score evaluates one candidate against the preferences.
func Score(c release.Candidate, prefs Preferences) Decision {
	c.ParseTags()

	title := strings.ToLower(c.Title)
	for _, keyword := range prefs.ForbiddenKeywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(title, keyword) {
			return reject(c, "forbidden keyword %q", keyword)
		}
	}
	if containsFold(prefs.ForbiddenGroups, c.Group) {
		return reject(c, "forbidden release group %q", c.Group)
	}
	if c.Seeders <= 0 {
		return reject(c, "no seeders")
	}
	if prefs.MaxSizeBytes > 0 && c.SizeBytes > prefs.MaxSizeBytes {
		return reject(c, "size %d exceeds cap %d", c.SizeBytes, prefs.MaxSizeBytes)
	}

	value := resolutionWeight(c.Resolution, prefs)
	value += prefs.SourceWeights[strings.ToLower(c.Source)]
	value += prefs.CodecWeights[strings.ToLower(c.Codec)]

	if containsFold(prefs.PreferredGroups, c.Group) {
		value += prefs.GroupBonus
	}
	if c.Freeleech {
		value += prefs.FreeleechBonus
	}
	if c.Internal {
		value += prefs.InternalBonus
	}

	// Thin swarms are increasingly penalized as seeder count approaches zero.
	if prefs.MinSeeders > 0 && c.Seeders < prefs.MinSeeders {
		shortfall := float64(prefs.MinSeeders-c.Seeders) / float64(prefs.MinSeeders)
		value -= prefs.SeederPenalty * shortfall
	}

	if value < prefs.MinimumScore {
		return Decision{
			Candidate: c,
			Score:     value,
			Reason:    fmt.Sprintf("score %.1f below minimum %.1f", value, prefs.MinimumScore),
		}
	}
	return Decision{Candidate: c, Score: value, Accepted: true}
}

// Select scores all candidates and returns the winner: the accepted candidate
// with the highest value, ties within SizeEpsilon broken toward the larger
// file. Returns false when nothing is acceptable and the caller should fall
// back to manual selection.
func Select(candidates []release.Candidate, prefs Preferences) (Decision, bool) {
	decisions := make([]Decision, 0, len(candidates))
	for _, c := range candidates {
		d := Score(c, prefs)
		if d.Accepted {
			decisions = append(decisions, d)
		}
	}
	if len(decisions) == 0 {
		return Decision{}, false
	}

	best := decisions[0]
	for _, d := range decisions[1:] {
		switch {
		case d.Score > best.Score+prefs.SizeEpsilon:
			best = d
		case best.Score-d.Score <= prefs.SizeEpsilon && d.Candidate.SizeBytes > best.Candidate.SizeBytes:
			// Within epsilon: larger same-tier encodes tend to carry more bitrate.
			best = d
		}
	}
	return best, true
}

func resolutionWeight(resolution string, prefs Preferences) float64 {
	if weight, ok := prefs.ResolutionWeights[strings.ToLower(resolution)]; ok {
		return weight
	}
	// Unrecognized resolution tags score at the lowest configured tier.
	lowest := 0.0
	first := true
	for _, weight := range prefs.ResolutionWeights {
		if first || weight < lowest {
			lowest = weight
			first = false
		}
	}
	return lowest
}

func containsFold(list []string, value string) bool {
	if value == "" {
		return false
	}
	for _, entry := range list {
		if strings.EqualFold(strings.TrimSpace(entry), value) {
			return true
		}
	}
	return false
}

func reject(c release.Candidate, format string, args ...any) Decision {
	return Decision{Candidate: c, Reason: fmt.Sprintf(format, args...)}
}
