package params

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EnvPrefix is prepended to every parameter name when reading overrides from
// the environment, e.g. BENTHIC_DARK_THRESHOLD.
const EnvPrefix = "BENTHIC_"

// neutralLevel is the grey value of "no change" in a background-difference frame.
// Thresholds are measured as deviations from it, so they cannot exceed it.
const neutralLevel = 127

// maxFileSize caps parameter files.
const maxFileSize = 1 * 1024 * 1024

// Detection controls blob segmentation and shadow/reflection coupling.
type Detection struct {
	DarkThreshold    int     `json:"dark_threshold"`
	BrightThreshold  int     `json:"bright_threshold"`
	MinArea          int     `json:"min_area"`
	MaxArea          int     `json:"max_area"`
	CouplingDistance float64 `json:"coupling_distance"`
	MorphKernelSize  int     `json:"morph_kernel_size"`
	MaxAspectRatio   float64 `json:"max_aspect_ratio"` // 0 disables the filter
	MinCircularity   float64 `json:"min_circularity"`
	CouplingBoost    float64 `json:"coupling_boost"`
	RequireCoupling  bool    `json:"require_coupling"`
}

// Tracking governs frame-to-frame assignment and track aging.
type Tracking struct {
	MaxDistance      float64 `json:"max_distance"`
	MaxSkipFrames    int     `json:"max_skip_frames"`
	RestZoneRadius   float64 `json:"rest_zone_radius"`
	RestZoneDiscount float64 `json:"rest_zone_discount"`
}

// Validation holds the post-hoc thresholds a finished track must meet.
type Validation struct {
	MinTrackLength  int     `json:"min_track_length"`
	MinDisplacement float64 `json:"min_displacement"`
	MinSpeed        float64 `json:"min_speed"`
	MaxSpeed        float64 `json:"max_speed"`
}

// Set bundles the three parameter blocks of a run.
type Set struct {
	Detection  Detection  `json:"detection"`
	Tracking   Tracking   `json:"tracking"`
	Validation Validation `json:"validation"`
}

// Default returns the field-tested defaults for seafloor footage.
func Default() Set {
	return Set{
		Detection: Detection{
			DarkThreshold:    10,
			BrightThreshold:  25,
			MinArea:          30,
			MaxArea:          2000,
			CouplingDistance: 100,
			MorphKernelSize:  5,
			MaxAspectRatio:   3.0,
			MinCircularity:   0.3,
			CouplingBoost:    1.3,
		},
		Tracking: Tracking{
			MaxDistance:      50,
			MaxSkipFrames:    60,
			RestZoneRadius:   100,
			RestZoneDiscount: 0.5,
		},
		Validation: Validation{
			MinTrackLength:  5,
			MinDisplacement: 10,
			MinSpeed:        0.1,
			MaxSpeed:        30,
		},
	}
}

// Validate checks every block. It must pass before any frame is read.
func (s Set) Validate() error {
	for _, f := range s.fields() {
		if v, ok := f.ptr.(*float64); ok && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return errors.Errorf("%s must be a finite number, got %g", f.name, *v)
		}
	}
	if err := s.Detection.Validate(); err != nil {
		return errors.Wrap(err, "detection")
	}
	if err := s.Tracking.Validate(); err != nil {
		return errors.Wrap(err, "tracking")
	}
	if err := s.Validation.Validate(); err != nil {
		return errors.Wrap(err, "validation")
	}
	return nil
}

func (d Detection) Validate() error {
	switch {
	case d.DarkThreshold < 0 || d.DarkThreshold > neutralLevel:
		return errors.Errorf("dark_threshold must be between 0 and %d, got %d", neutralLevel, d.DarkThreshold)
	case d.BrightThreshold < 0 || d.BrightThreshold > neutralLevel:
		return errors.Errorf("bright_threshold must be between 0 and %d, got %d", neutralLevel, d.BrightThreshold)
	case d.MinArea < 1:
		return errors.Errorf("min_area must be >= 1, got %d", d.MinArea)
	case d.MinArea > d.MaxArea:
		return errors.Errorf("min_area (%d) must not exceed max_area (%d)", d.MinArea, d.MaxArea)
	case d.CouplingDistance < 0:
		return errors.Errorf("coupling_distance must not be negative, got %g", d.CouplingDistance)
	case d.MorphKernelSize < 0:
		return errors.Errorf("morph_kernel_size must not be negative, got %d", d.MorphKernelSize)
	case d.MaxAspectRatio < 0:
		return errors.Errorf("max_aspect_ratio must not be negative, got %g", d.MaxAspectRatio)
	case d.MinCircularity < 0 || d.MinCircularity > 1:
		return errors.Errorf("min_circularity must be between 0 and 1, got %g", d.MinCircularity)
	case d.CouplingBoost < 0:
		return errors.Errorf("coupling_boost must not be negative, got %g", d.CouplingBoost)
	}
	return nil
}

func (t Tracking) Validate() error {
	switch {
	case t.MaxDistance < 0:
		return errors.Errorf("max_distance must not be negative, got %g", t.MaxDistance)
	case t.MaxSkipFrames < 0:
		return errors.Errorf("max_skip_frames must not be negative, got %d", t.MaxSkipFrames)
	case t.RestZoneRadius < 0:
		return errors.Errorf("rest_zone_radius must not be negative, got %g", t.RestZoneRadius)
	case t.RestZoneDiscount <= 0 || t.RestZoneDiscount > 1:
		return errors.Errorf("rest_zone_discount must be in (0, 1], got %g", t.RestZoneDiscount)
	}
	return nil
}

func (v Validation) Validate() error {
	switch {
	case v.MinTrackLength < 1:
		return errors.Errorf("min_track_length must be >= 1, got %d", v.MinTrackLength)
	case v.MinDisplacement < 0:
		return errors.Errorf("min_displacement must not be negative, got %g", v.MinDisplacement)
	case v.MinSpeed < 0:
		return errors.Errorf("min_speed must not be negative, got %g", v.MinSpeed)
	case v.MaxSpeed < v.MinSpeed:
		return errors.Errorf("max_speed (%g) must not be below min_speed (%g)", v.MaxSpeed, v.MinSpeed)
	}
	return nil
}

// LoadFile overlays a JSON parameter file on s. Keys missing from the file
// keep their current values, so partial files are fine.
func (s *Set) LoadFile(path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return errors.Errorf("parameter file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return errors.Wrap(err, "stat parameter file")
	}
	if info.Size() > maxFileSize {
		return errors.Errorf("parameter file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return errors.Wrap(err, "read parameter file")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return errors.Wrapf(err, "parse %s", cleanPath)
	}
	return nil
}

type field struct {
	name string
	ptr  any
}

// fields maps each CLI/env parameter name onto its storage.
func (s *Set) fields() []field {
	return []field{
		{"dark-threshold", &s.Detection.DarkThreshold},
		{"bright-threshold", &s.Detection.BrightThreshold},
		{"min-area", &s.Detection.MinArea},
		{"max-area", &s.Detection.MaxArea},
		{"coupling-distance", &s.Detection.CouplingDistance},
		{"morph-kernel-size", &s.Detection.MorphKernelSize},
		{"max-aspect-ratio", &s.Detection.MaxAspectRatio},
		{"min-circularity", &s.Detection.MinCircularity},
		{"coupling-boost", &s.Detection.CouplingBoost},
		{"require-coupling", &s.Detection.RequireCoupling},
		{"max-distance", &s.Tracking.MaxDistance},
		{"max-skip-frames", &s.Tracking.MaxSkipFrames},
		{"rest-zone-radius", &s.Tracking.RestZoneRadius},
		{"rest-zone-discount", &s.Tracking.RestZoneDiscount},
		{"min-track-length", &s.Validation.MinTrackLength},
		{"min-displacement", &s.Validation.MinDisplacement},
		{"min-speed", &s.Validation.MinSpeed},
		{"max-speed", &s.Validation.MaxSpeed},
	}
}

// Names lists every overridable parameter in flag form.
func Names() []string {
	var s Set
	fs := s.fields()
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.name
	}
	return names
}

// EnvKey converts a parameter name into its environment variable.
func EnvKey(name string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Assign parses value into the named parameter.
func (s *Set) Assign(name, value string) error {
	for _, f := range s.fields() {
		if f.name != name {
			continue
		}
		value = strings.TrimSpace(value)
		switch p := f.ptr.(type) {
		case *int:
			v, err := strconv.Atoi(value)
			if err != nil {
				return errors.Wrapf(err, "parameter %s", name)
			}
			*p = v
		case *float64:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return errors.Wrapf(err, "parameter %s", name)
			}
			*p = v
		case *bool:
			v, err := strconv.ParseBool(value)
			if err != nil {
				return errors.Wrapf(err, "parameter %s", name)
			}
			*p = v
		}
		return nil
	}
	return errors.Errorf("unknown parameter %q", name)
}

// ApplyEnv overrides parameters from BENTHIC_* variables found by lookup.
func (s *Set) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, name := range Names() {
		if v, ok := lookup(EnvKey(name)); ok && v != "" {
			if err := s.Assign(name, v); err != nil {
				return errors.Wrapf(err, "env %s", EnvKey(name))
			}
		}
	}
	return nil
}
