package tracker

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the tracker parameters
type Config struct {
	// NClasses is the total number of detection classes.  Tracks of
	// different classes never compete for association
	NClasses int `yaml:"n_classes"`
	// TrackActivationThreshold is the detection confidence threshold for
	// track activation.  Raising it improves stability at the cost of
	// missing weaker true detections
	TrackActivationThreshold float32 `yaml:"track_activation_threshold"`
	// LostTrackBuffer is the number of frames to buffer a lost track
	// before it is permanently removed.  Larger buffers handle longer
	// occlusions at the risk of stale recoveries
	LostTrackBuffer int `yaml:"lost_track_buffer"`
	// MinimumMatchingThreshold is the association cost cutoff for matching
	// tracks with detections
	MinimumMatchingThreshold float32 `yaml:"minimum_matching_threshold"`
	// FrameRate is the frame rate of the video, used to scale the lost
	// track buffer
	FrameRate int `yaml:"frame_rate"`
	// MinimumConsecutiveFrames is the number of consecutive matched frames
	// before a new track is considered confirmed.  A value of 1 confirms
	// tracks immediately
	MinimumConsecutiveFrames int `yaml:"minimum_consecutive_frames"`
}

// DefaultConfig returns a Config for the given number of classes with the
// standard ByteTrack defaults
func DefaultConfig(nClasses int) Config {
	return Config{
		NClasses:                 nClasses,
		TrackActivationThreshold: 0.25,
		LostTrackBuffer:          30,
		MinimumMatchingThreshold: 0.8,
		FrameRate:                30,
		MinimumConsecutiveFrames: 1,
	}
}

// LoadConfig reads tracker parameters from a YAML file, applied on top of
// the defaults
func LoadConfig(path string) (Config, error) {

	cfg := DefaultConfig(1)

	data, err := os.ReadFile(path)

	if err != nil {
		return cfg, errors.Wrapf(err, "can't read config file %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "can't parse config file %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config file %s", path)
	}

	return cfg, nil
}

// Validate checks the configuration, failing fast rather than silently
// clamping out of range values
func (c Config) Validate() error {

	if c.NClasses < 1 {
		return errors.Errorf("n_classes must be at least 1, got %d", c.NClasses)
	}

	if c.TrackActivationThreshold < 0 || c.TrackActivationThreshold > 1 {
		return errors.Errorf("track_activation_threshold must be in [0,1], got %v",
			c.TrackActivationThreshold)
	}

	if c.MinimumMatchingThreshold < 0 || c.MinimumMatchingThreshold > 1 {
		return errors.Errorf("minimum_matching_threshold must be in [0,1], got %v",
			c.MinimumMatchingThreshold)
	}

	if c.LostTrackBuffer < 0 {
		return errors.Errorf("lost_track_buffer must be non-negative, got %d",
			c.LostTrackBuffer)
	}

	if c.FrameRate < 0 {
		return errors.Errorf("frame_rate must be non-negative, got %d",
			c.FrameRate)
	}

	if c.MinimumConsecutiveFrames < 0 {
		return errors.Errorf("minimum_consecutive_frames must be non-negative, got %d",
			c.MinimumConsecutiveFrames)
	}

	return nil
}
