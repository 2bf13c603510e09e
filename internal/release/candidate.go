// Package release defines the ephemeral release candidate value produced by
// indexer searches and consumed by the scoring policy. Candidates are never
// persisted; only the grabbed winner becomes a queue item.
package release

import "strings"

// Candidate is one discovered release advertised by an indexer.
type Candidate struct {
	ID          string
	Title       string
	DownloadURL string
	SizeBytes   int64
	Resolution  string
	Source      string
	Codec       string
	Group       string
	Seeders     int
	Leechers    int
	Freeleech   bool
	Internal    bool
	Indexer     string
}

// ParseTags fills Resolution, Source, Codec, and Group from the release title
// when the indexer did not report them explicitly.
func (c *Candidate) ParseTags() {
	if c.Resolution == "" {
		c.Resolution = PickResolution(c.Title)
	}
	if c.Source == "" {
		c.Source = PickSource(c.Title)
	}
	if c.Codec == "" {
		c.Codec = PickCodec(c.Title)
	}
	if c.Group == "" {
		c.Group = PickGroup(c.Title)
	}
}

// PickResolution extracts the resolution tag from a release title. An
// unrecognized title yields the empty string and scores at the
// standard-definition tier.
func PickResolution(title string) string {
	title = strings.ToLower(title)
	for _, tag := range []string{"2160p", "1080p", "720p", "480p"} {
		if strings.Contains(title, tag) {
			return tag
		}
	}
	return ""
}

// PickSource extracts the source tag from a release title.
func PickSource(title string) string {
	title = strings.ToLower(title)
	switch {
	case strings.Contains(title, "remux"):
		return "remux"
	case strings.Contains(title, "bluray"), strings.Contains(title, "blu-ray"), strings.Contains(title, "bdrip"):
		return "bluray"
	case strings.Contains(title, "web-dl"), strings.Contains(title, "webdl"):
		return "web-dl"
	case strings.Contains(title, "webrip"), strings.Contains(title, "web "):
		return "webrip"
	case strings.Contains(title, "hdtv"):
		return "hdtv"
	case strings.Contains(title, "hdcam"), strings.Contains(title, "cam "), strings.Contains(title, "telesync"), strings.Contains(title, "telecine"):
		return "cam"
	default:
		return ""
	}
}

// PickCodec extracts the codec tag from a release title, normalizing encoder
// aliases to the codec family.
func PickCodec(title string) string {
	title = strings.ToLower(title)
	for _, tag := range []string{"av1", "x265", "hevc", "h265", "x264", "h264"} {
		if strings.Contains(title, tag) {
			switch tag {
			case "x265", "h265":
				return "hevc"
			case "x264":
				return "h264"
			default:
				return tag
			}
		}
	}
	return ""
}

// PickGroup extracts the release group from the trailing hyphen segment of a
// scene-style title.
func PickGroup(title string) string {
	parts := strings.Split(title, "-")
	if len(parts) < 2 {
		return ""
	}
	group := strings.TrimSpace(parts[len(parts)-1])
	// A trailing segment with spaces is part of the name, not a group tag.
	if group == "" || strings.ContainsRune(group, ' ') {
		return ""
	}
	return group
}
