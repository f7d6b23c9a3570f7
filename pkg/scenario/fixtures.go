package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/waftester/mediaprobe/pkg/defaults"
	"github.com/waftester/mediaprobe/pkg/mediaapi"
)

//go:embed fixtures.yaml
var embeddedFixtures []byte

// ErrNoPlatforms is returned when a fixture file lists no platforms.
var ErrNoPlatforms = errors.New("scenario: fixtures contain no platforms")

// Platform is a named sample media URL.
type Platform struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// FormatSpec is one format/quality pair.
type FormatSpec struct {
	Format  mediaapi.Format `yaml:"format" json:"format"`
	Quality string          `yaml:"quality" json:"quality"`
}

// Fixtures is the declarative scenario catalogue.
type Fixtures struct {
	// Limit caps how many platforms Selected returns. Zero means 5.
	Limit     int          `yaml:"limit"`
	Formats   []FormatSpec `yaml:"formats"`
	Platforms []Platform   `yaml:"platforms"`
}

// DefaultFixtures returns the catalogue compiled into the binary.
func DefaultFixtures() (*Fixtures, error) {
	return ParseFixtures(embeddedFixtures)
}

// LoadFixtures reads a catalogue from disk. An empty path returns the
// embedded one.
func LoadFixtures(path string) (*Fixtures, error) {
	if path == "" {
		return DefaultFixtures()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes and checks a YAML catalogue.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("scenario: parse fixtures: %w", err)
	}
	if len(f.Platforms) == 0 {
		return nil, ErrNoPlatforms
	}
	for i, p := range f.Platforms {
		if p.Name == "" || p.URL == "" {
			return nil, fmt.Errorf("scenario: platform %d: name and url are required", i)
		}
		// Every platform URL is sent as an extraction request, so it must
		// pass the same check Extract applies.
		req := mediaapi.ExtractionRequest{URL: p.URL, Format: mediaapi.FormatMP4}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("scenario: platform %d (%s): %w", i, p.Name, err)
		}
	}
	for i, fs := range f.Formats {
		req := mediaapi.ExtractionRequest{URL: f.Platforms[0].URL, Format: fs.Format, Quality: fs.Quality}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("scenario: format %d: %w", i, err)
		}
	}
	if f.Limit <= 0 {
		f.Limit = defaults.ScenarioLimit
	}
	return &f, nil
}

// Selected returns the first Limit platforms, or all of them when all is
// set.
func (f *Fixtures) Selected(all bool) []Platform {
	if all || f.Limit >= len(f.Platforms) {
		return f.Platforms
	}
	return f.Platforms[:f.Limit]
}

// DefaultFormat is the first listed format, or mp4/720p when none are
// listed.
func (f *Fixtures) DefaultFormat() FormatSpec {
	if len(f.Formats) > 0 {
		return f.Formats[0]
	}
	return FormatSpec{Format: mediaapi.FormatMP4, Quality: "720p"}
}
