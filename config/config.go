// Package config holds the capture settings shared by every frame source.
package config

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	goutils "go.viam.com/utils"

	"github.com/meteorcam/frameinput/logging"
)

// BeginningTimeLayout is the layout of capture times embedded in directory and file names.
const BeginningTimeLayout = "20060102_150405.000000"

// Binning methods for detection mode.
const (
	BinningAverage  = "avg"
	BinningDecimate = "decimate"
)

// Config describes the camera and how frames are prepared for detection.
type Config struct {
	Width                  int            `json:"width"`
	Height                 int            `json:"height"`
	FPS                    float64        `json:"fps"`
	DetectionBinningFactor int            `json:"detection_binning_factor"`
	DetectionBinningMethod string         `json:"detection_binning_method"`
	ChunkSizes             map[string]int `json:"chunk_sizes,omitempty"`
	BeginningTime          string         `json:"beginning_time,omitempty"`
}

// Default returns the settings of a standard 720p 25 fps station.
func Default() *Config {
	return &Config{
		Width:                  1280,
		Height:                 720,
		FPS:                    25,
		DetectionBinningFactor: 2,
		DetectionBinningMethod: BinningAverage,
	}
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Width <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "width")
	}
	if conf.Height <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "height")
	}
	if conf.FPS <= 0 {
		return goutils.NewConfigValidationError(path, errors.Errorf("fps must be positive, got %v", conf.FPS))
	}
	if conf.DetectionBinningFactor < 1 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("detection_binning_factor must be at least 1, got %d", conf.DetectionBinningFactor))
	}
	switch conf.DetectionBinningMethod {
	case BinningAverage, BinningDecimate:
	default:
		return goutils.NewConfigValidationError(path,
			errors.Errorf("detection_binning_method must be %q or %q, got %q",
				BinningAverage, BinningDecimate, conf.DetectionBinningMethod))
	}
	for kind, size := range conf.ChunkSizes {
		if size < 1 {
			return goutils.NewConfigValidationError(path, errors.Errorf("chunk_sizes[%q] must be at least 1, got %d", kind, size))
		}
	}
	if conf.BeginningTime != "" {
		if _, err := ParseTime(conf.BeginningTime); err != nil {
			return goutils.NewConfigValidationError(path, err)
		}
	}
	return nil
}

// ChunkSize returns the configured chunk size for a source kind, or fallback.
func (conf *Config) ChunkSize(kind string, fallback int) int {
	if size, ok := conf.ChunkSizes[kind]; ok && size > 0 {
		return size
	}
	return fallback
}

// Beginning returns the configured beginning time, if any.
func (conf *Config) Beginning() (time.Time, bool) {
	if conf.BeginningTime == "" {
		return time.Time{}, false
	}
	t, err := ParseTime(conf.BeginningTime)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseTime parses a capture time either in the name layout or any layout understood by cast
// (RFC3339, "2006-01-02 15:04:05" and friends). Times without a zone are UTC.
func ParseTime(value string) (time.Time, error) {
	if t, err := time.Parse(BeginningTimeLayout, value); err == nil {
		return t, nil
	}
	t, err := cast.ToTimeInDefaultLocationE(value, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cannot parse time %q", value)
	}
	return t, nil
}

// FromAttributes decodes a loosely typed attribute map over the defaults. Numbers given as
// strings are accepted. Unknown keys are logged and ignored.
func FromAttributes(attributes map[string]interface{}, logger logging.Logger) (*Config, error) {
	conf := Default()
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           conf,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "cannot decode config attributes")
	}
	if len(md.Unused) != 0 && logger != nil {
		sort.Strings(md.Unused)
		logger.Warnw("ignoring unknown config attributes", "keys", md.Unused)
	}
	return conf, nil
}

// Read loads a JSON config file over the defaults and validates it.
func Read(path string, logger logging.Logger) (*Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	var attributes map[string]interface{}
	if err := json.Unmarshal(data, &attributes); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", path)
	}
	conf, err := FromAttributes(attributes, logger)
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(path); err != nil {
		return nil, err
	}
	return conf, nil
}
