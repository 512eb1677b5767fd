package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type ArchiveConfig struct {
	Input      string           `yaml:"input"`
	Output     string           `yaml:"output"`
	NumWorkers int              `yaml:"numWorkers"`
	Quality    int              `yaml:"quality"`
	// MaxDimension is the longest image side kept during conversion. Larger
	// images are scaled down before the WebP encode. Zero disables scaling.
	MaxDimension int `yaml:"maxDimension"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Grid       GridConfig       `yaml:"grid"`
	Ffmpeg     FfmpegConfig     `yaml:"ffmpeg"`
	GtagID     string           `yaml:"gtagId"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ThumbnailsConfig struct {
	Width       int `yaml:"width"`
	Height      int `yaml:"height"`
	StoryWidth  int `yaml:"storyWidth"`
	StoryHeight int `yaml:"storyHeight"`
}

type GridConfig struct {
	LazyLoadAfter int `yaml:"lazyLoadAfter"`
}

type FfmpegConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

type LoggingConfig struct {
	Directory string `yaml:"directory"`
	Colors    bool   `yaml:"colors"`
	JsonLogs  bool   `yaml:"json"`
	Level     string `yaml:"level"`
}

func NewDefaultConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Input:        "",
		Output:       "./output",
		NumWorkers:   defaultWorkers(),
		Quality:      70,
		MaxDimension: 1200,
		Thumbnails: ThumbnailsConfig{
			Width:       292,
			Height:      292,
			StoryWidth:  270,
			StoryHeight: 480,
		},
		Grid: GridConfig{
			LazyLoadAfter: 30,
		},
		Ffmpeg: FfmpegConfig{
			TimeoutSeconds: 30,
		},
		GtagID: "",
		Logging: LoggingConfig{
			Directory: "-",
			Colors:    false,
			JsonLogs:  false,
			Level:     "info",
		},
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// Load reads a yaml config file over the top of the defaults. An empty path
// returns the defaults untouched.
func Load(path string) (*ArchiveConfig, error) {
	c := NewDefaultConfig()
	if path == "" {
		return c, nil
	}

	buffer, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err = yaml.Unmarshal(buffer, c); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return c, nil
}

// ParseDimensions parses a "WxH" string (or a single number for a square)
// into pixel dimensions.
func ParseDimensions(s string) (int, int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, 0, errors.New("empty dimensions")
	}
	if !strings.Contains(s, "x") {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("invalid dimensions: %s", s)
		}
		return n, n, nil
	}
	parts := strings.SplitN(s, "x", 2)
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid dimensions: %s", s)
	}
	return w, h, nil
}

// Validate catches configuration that would otherwise fail midway through a
// long media run.
func (c *ArchiveConfig) Validate() error {
	if c.Input == "" {
		return errors.New("no input directory configured")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be within 1-100, got %d", c.Quality)
	}
	if c.MaxDimension < 0 {
		return fmt.Errorf("maxDimension must not be negative, got %d", c.MaxDimension)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("numWorkers must be at least 1, got %d", c.NumWorkers)
	}
	if c.Thumbnails.Width < 1 || c.Thumbnails.Height < 1 {
		return errors.New("thumbnail dimensions must be positive")
	}
	if c.Thumbnails.StoryWidth < 1 || c.Thumbnails.StoryHeight < 1 {
		return errors.New("story thumbnail dimensions must be positive")
	}
	return nil
}
