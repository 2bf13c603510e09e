package release

import "testing"

func TestPickResolution(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Example Movie 2024 2160p WEB-DL", "2160p"},
		{"Example Movie 2024 1080p BluRay", "1080p"},
		{"Example.Movie.720p.HDTV", "720p"},
		{"Example Movie 480p", "480p"},
		{"Example Movie DVDRip", ""},
	}
	for _, tc := range cases {
		if got := PickResolution(tc.title); got != tc.want {
			t.Errorf("PickResolution(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestPickSource(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Example Movie 2160p Remux AVC", "remux"},
		{"Example Movie 1080p BluRay x264", "bluray"},
		{"Example Movie 1080p Blu-Ray", "bluray"},
		{"Example Movie 1080p WEB-DL", "web-dl"},
		{"Example Movie 1080p WEBDL", "web-dl"},
		{"Example Movie 1080p WEBRip", "webrip"},
		{"Example Movie HDTV x264", "hdtv"},
		{"Example Movie HDCAM", "cam"},
		{"Example Movie", ""},
	}
	for _, tc := range cases {
		if got := PickSource(tc.title); got != tc.want {
			t.Errorf("PickSource(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestPickCodec(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Example Movie 1080p x265-GRP", "hevc"},
		{"Example Movie 1080p H265", "hevc"},
		{"Example Movie 1080p HEVC", "hevc"},
		{"Example Movie 1080p x264-GRP", "h264"},
		{"Example Movie 1080p AV1", "av1"},
		{"Example Movie XviD", ""},
	}
	for _, tc := range cases {
		if got := PickCodec(tc.title); got != tc.want {
			t.Errorf("PickCodec(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestPickGroup(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Example.Movie.2024.1080p.BluRay.x264-SPARKS", "SPARKS"},
		{"Example Movie no group", ""},
		{"Example Movie 2024 - Director's Cut", ""},
	}
	for _, tc := range cases {
		if got := PickGroup(tc.title); got != tc.want {
			t.Errorf("PickGroup(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestParseTagsFillsOnlyMissing(t *testing.T) {
	c := Candidate{
		Title:      "Example.Movie.2024.1080p.BluRay.x264-SPARKS",
		Resolution: "2160p",
	}
	c.ParseTags()
	if c.Resolution != "2160p" {
		t.Errorf("explicit resolution overwritten: %q", c.Resolution)
	}
	if c.Source != "bluray" || c.Codec != "h264" || c.Group != "SPARKS" {
		t.Errorf("missing tags not filled: %+v", c)
	}
}
