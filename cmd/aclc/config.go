package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/motionforge/acl/compress"
	"github.com/motionforge/acl/database"
	"github.com/motionforge/acl/errormetric"
	"github.com/motionforge/acl/qmath"
	"github.com/motionforge/acl/skeleton"
)

// settingsFile is the sidecar YAML schema for compression and database
// settings. Every field is optional; zero values fall back to the
// library defaults.
type settingsFile struct {
	CompressionLevel string  `yaml:"compression_level"`
	RotationFormat   string  `yaml:"rotation_format"`
	ErrorThreshold   float32 `yaml:"error_threshold"`
	IdealNumSamples  int     `yaml:"ideal_num_samples"`
	ShellDistance    float32 `yaml:"shell_distance"`

	MaxChunkSize     int     `yaml:"max_chunk_size"`
	MediumProportion float32 `yaml:"medium_importance_tier_proportion"`
	LowProportion    float32 `yaml:"low_importance_tier_proportion"`
}

func loadSettings(path string) (compress.Settings, database.Config, error) {
	settings := compress.DefaultSettings()
	dbCfg := database.DefaultConfig()
	if path == "" {
		return settings, dbCfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return settings, dbCfg, err
	}
	var f settingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return settings, dbCfg, fmt.Errorf("parse %s: %w", path, err)
	}

	switch f.CompressionLevel {
	case "":
	case "lowest":
		settings.CompressionLevel = compress.LevelLowest
	case "low":
		settings.CompressionLevel = compress.LevelLow
	case "medium":
		settings.CompressionLevel = compress.LevelMedium
	case "high":
		settings.CompressionLevel = compress.LevelHigh
	case "highest":
		settings.CompressionLevel = compress.LevelHighest
	default:
		return settings, dbCfg, fmt.Errorf("unknown compression_level %q", f.CompressionLevel)
	}

	switch f.RotationFormat {
	case "":
	case "quat_full":
		settings.RotationFormat = compress.RotationFormatQuatFull
	case "quat_drop_w_variable":
		settings.RotationFormat = compress.RotationFormatQuatDropWVariable
	default:
		return settings, dbCfg, fmt.Errorf("unknown rotation_format %q", f.RotationFormat)
	}

	if f.ErrorThreshold > 0 {
		settings.ErrorThreshold = f.ErrorThreshold
	}
	if f.IdealNumSamples > 0 {
		settings.IdealNumSamples = f.IdealNumSamples
	}
	if f.ShellDistance > 0 {
		settings.Metric = errormetric.ShellMetric{ShellDistance: f.ShellDistance}
	}

	if f.MaxChunkSize > 0 {
		dbCfg.MaxChunkSize = f.MaxChunkSize
	}
	dbCfg.MediumImportanceProportion = f.MediumProportion
	dbCfg.LowImportanceProportion = f.LowProportion
	return settings, dbCfg, nil
}

// clipFile is the YAML schema for a raw clip: a skeleton plus per-bone
// sample arrays. Omitted tracks default to the channel's identity.
type clipFile struct {
	Name       string         `yaml:"name"`
	SampleRate float32        `yaml:"sample_rate"`
	NumSamples int            `yaml:"num_samples"`
	Bones      []clipFileBone `yaml:"bones"`
}

type clipFileBone struct {
	Name         string       `yaml:"name"`
	Parent       int32        `yaml:"parent"`
	Rotations    [][4]float32 `yaml:"rotations"`
	Translations [][3]float32 `yaml:"translations"`
	Scales       [][3]float32 `yaml:"scales"`
}

func loadClip(path string) (*skeleton.RawClip, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f clipFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if f.SampleRate <= 0 {
		return nil, fmt.Errorf("%s: sample_rate must be positive", path)
	}
	if f.NumSamples <= 0 {
		return nil, fmt.Errorf("%s: num_samples must be positive", path)
	}

	clip := &skeleton.RawClip{
		Name:       f.Name,
		SampleRate: f.SampleRate,
		NumSamples: f.NumSamples,
		Bones:      make([]skeleton.BoneTracks, len(f.Bones)),
	}
	clip.Skeleton.Bones = make([]skeleton.Bone, len(f.Bones))

	for i, b := range f.Bones {
		clip.Skeleton.Bones[i] = skeleton.Bone{
			Name:        b.Name,
			ParentIndex: b.Parent,
			OutputIndex: int32(i),
		}

		rotations := make([]qmath.Quat, f.NumSamples)
		translations := make([]qmath.Vector3, f.NumSamples)
		scales := make([]qmath.Vector3, f.NumSamples)
		for s := 0; s < f.NumSamples; s++ {
			rotations[s] = qmath.QuatIdentity
			scales[s] = qmath.VectorIdentityOne
			if s < len(b.Rotations) {
				r := b.Rotations[s]
				rotations[s] = qmath.Quat{X: r[0], Y: r[1], Z: r[2], W: r[3]}
			}
			if s < len(b.Translations) {
				v := b.Translations[s]
				translations[s] = qmath.Vector3{X: v[0], Y: v[1], Z: v[2]}
			}
			if s < len(b.Scales) {
				v := b.Scales[s]
				scales[s] = qmath.Vector3{X: v[0], Y: v[1], Z: v[2]}
			}
		}
		clip.Bones[i] = skeleton.BoneTracks{
			Rotation:    skeleton.Track{Channel: skeleton.ChannelRotation, Rotations: rotations},
			Translation: skeleton.Track{Channel: skeleton.ChannelTranslation, Vectors: translations},
			Scale:       skeleton.Track{Channel: skeleton.ChannelScale, Vectors: scales},
		}
	}
	return clip, nil
}
