// Package navconfig holds the flat set of tunable constants the planner
// and localizer are configured with, mirroring the game server's own
// worldConfig: a plain struct with JSON tags and a normalized() defaulting
// method, loaded once at startup.
package navconfig

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config captures the navigation-stack knobs enumerated by the external
// interfaces contract: particle count, observation and motion noise
// parameters, and the planner's geometric constants. The A* iteration cap
// is not among them; it is a fixed constant in the planner package.
type Config struct {
	MapFile string `json:"mapFile"`

	// Planner.
	Resolution           float64 `json:"resolution"`
	CushionHalfWidth     float64 `json:"cushionHalfWidth"`
	SocialDistanceCutoff float64 `json:"socialDistanceCutoff"`
	ReplanRadius         float64 `json:"replanRadius"`
	DeadEndRadiusFactor  float64 `json:"deadEndRadiusFactor"`

	// Particle filter.
	ParticleCount        int     `json:"particleCount"`
	ObservationVariance  float64 `json:"observationVariance"`
	DShort               float64 `json:"dShort"`
	DLong                float64 `json:"dLong"`
	MotionK1             float64 `json:"motionK1"`
	MotionK2             float64 `json:"motionK2"`
	MotionK3             float64 `json:"motionK3"`
	MotionK4             float64 `json:"motionK4"`
	InitStdLoc           float64 `json:"initStdLoc"`
	InitStdAngle         float64 `json:"initStdAngle"`
	SensorForwardOffset  float64 `json:"sensorForwardOffset"`
	MotionResetThreshold float64 `json:"motionResetThreshold"`
	ObservationGateMin   float64 `json:"observationGateMin"`
	ObservationGateMax   float64 `json:"observationGateMax"`
	ResamplePeriod       int     `json:"resamplePeriod"`
	BeamSubsampleFactor  int     `json:"beamSubsampleFactor"`

	RandomSeed int64 `json:"randomSeed"`
}

// Default returns the configuration matching the contract's enumerated
// defaults.
func Default() Config {
	return Config{
		MapFile: "maps/GDC1.txt",

		Resolution:           1.0,
		CushionHalfWidth:     0.5,
		SocialDistanceCutoff: 10.0,
		ReplanRadius:         2.0,
		DeadEndRadiusFactor:  3.0,

		ParticleCount:        50,
		ObservationVariance:  1.0,
		DShort:               0.5,
		DLong:                0.5,
		MotionK1:             0.40,
		MotionK2:             0.02,
		MotionK3:             0.20,
		MotionK4:             0.40,
		InitStdLoc:           0.25,
		InitStdAngle:         0.5235987755982988, // pi/6
		SensorForwardOffset:  0.2,
		MotionResetThreshold: 1.0,
		ObservationGateMin:   0.10,
		ObservationGateMax:   1.00,
		ResamplePeriod:       6,
		BeamSubsampleFactor:  10,

		RandomSeed: 1,
	}
}

// Normalized returns cfg with zero-valued fields replaced by Default's.
func (cfg Config) Normalized() Config {
	def := Default()
	normalized := cfg

	if normalized.MapFile == "" {
		normalized.MapFile = def.MapFile
	}
	if normalized.Resolution == 0 {
		normalized.Resolution = def.Resolution
	}
	if normalized.CushionHalfWidth == 0 {
		normalized.CushionHalfWidth = def.CushionHalfWidth
	}
	if normalized.SocialDistanceCutoff == 0 {
		normalized.SocialDistanceCutoff = def.SocialDistanceCutoff
	}
	if normalized.ReplanRadius == 0 {
		normalized.ReplanRadius = def.ReplanRadius
	}
	if normalized.DeadEndRadiusFactor == 0 {
		normalized.DeadEndRadiusFactor = def.DeadEndRadiusFactor
	}
	if normalized.ParticleCount == 0 {
		normalized.ParticleCount = def.ParticleCount
	}
	if normalized.ObservationVariance == 0 {
		normalized.ObservationVariance = def.ObservationVariance
	}
	if normalized.DShort == 0 {
		normalized.DShort = def.DShort
	}
	if normalized.DLong == 0 {
		normalized.DLong = def.DLong
	}
	if normalized.MotionK1 == 0 && normalized.MotionK2 == 0 && normalized.MotionK3 == 0 && normalized.MotionK4 == 0 {
		normalized.MotionK1, normalized.MotionK2 = def.MotionK1, def.MotionK2
		normalized.MotionK3, normalized.MotionK4 = def.MotionK3, def.MotionK4
	}
	if normalized.InitStdLoc == 0 {
		normalized.InitStdLoc = def.InitStdLoc
	}
	if normalized.InitStdAngle == 0 {
		normalized.InitStdAngle = def.InitStdAngle
	}
	if normalized.SensorForwardOffset == 0 {
		normalized.SensorForwardOffset = def.SensorForwardOffset
	}
	if normalized.MotionResetThreshold == 0 {
		normalized.MotionResetThreshold = def.MotionResetThreshold
	}
	if normalized.ObservationGateMin == 0 && normalized.ObservationGateMax == 0 {
		normalized.ObservationGateMin = def.ObservationGateMin
		normalized.ObservationGateMax = def.ObservationGateMax
	}
	if normalized.ResamplePeriod == 0 {
		normalized.ResamplePeriod = def.ResamplePeriod
	}
	if normalized.BeamSubsampleFactor == 0 {
		normalized.BeamSubsampleFactor = def.BeamSubsampleFactor
	}
	if normalized.RandomSeed == 0 {
		normalized.RandomSeed = def.RandomSeed
	}
	return normalized
}

// Load reads a JSON config file from path and returns it normalized.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("navconfig: load %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("navconfig: parse %s: %w", path, err)
	}
	return cfg.Normalized(), nil
}
