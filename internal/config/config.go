package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/camcorder.defaults.json"

// CamCorderConfig is the root configuration. Scalar fields are pointers so
// a partial file leaves the rest at the defaults returned by the Get*
// accessors.
type CamCorderConfig struct {
	// Frame geometry and capture
	FrameWidth      *int     `json:"frame_width,omitempty"`
	FrameHeight     *int     `json:"frame_height,omitempty"`
	FrameRate       *float64 `json:"frame_rate,omitempty"`
	MetadataRows    *int     `json:"metadata_rows,omitempty"`
	PlaybackSpeedup *float64 `json:"playback_speedup,omitempty"`
	LogWindow       *int     `json:"log_window_frames,omitempty"`

	// Writer queue
	QueueCapacity *int    `json:"queue_capacity,omitempty"`
	QueueTimeout  *string `json:"queue_timeout,omitempty"` // duration string like "500ms"

	// Tracker params
	ThreshMask   *int     `json:"thresh_mask,omitempty"`
	ThreshDetect *int     `json:"thresh_detect,omitempty"`
	ThreshLED    *int     `json:"thresh_led,omitempty"`
	MinArea      *float64 `json:"min_area,omitempty"`
	NodeRadius   *float64 `json:"node_radius,omitempty"`
	TrailLength  *int     `json:"trail_length,omitempty"`
	PollInterval *string  `json:"poll_interval,omitempty"`

	// Kalman params
	ProcessNoise     *float64 `json:"process_noise,omitempty"`
	MeasurementNoise *float64 `json:"measurement_noise,omitempty"`

	Cameras []CameraConfig `json:"cameras,omitempty"`
}

// CameraConfig describes one capture source and the scene it watches.
type CameraConfig struct {
	Source string       `json:"source"`
	LED    Point        `json:"led"`
	Nodes  []NodeConfig `json:"nodes,omitempty"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type NodeConfig struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyConfig returns a CamCorderConfig with every field unset.
func EmptyConfig() *CamCorderConfig {
	return &CamCorderConfig{}
}

// LoadConfig loads a CamCorderConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadConfig(path string) (*CamCorderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *CamCorderConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *CamCorderConfig) Validate() error {
	if c.FrameWidth != nil && *c.FrameWidth < 22 {
		return fmt.Errorf("frame_width must be at least 22, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight < 1 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}
	if c.MetadataRows != nil && *c.MetadataRows < 1 {
		return fmt.Errorf("metadata_rows must be at least 1, got %d", *c.MetadataRows)
	}
	if c.PlaybackSpeedup != nil && *c.PlaybackSpeedup <= 0 {
		return fmt.Errorf("playback_speedup must be positive, got %f", *c.PlaybackSpeedup)
	}
	if c.QueueCapacity != nil && *c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", *c.QueueCapacity)
	}

	for name, v := range map[string]*string{"queue_timeout": c.QueueTimeout, "poll_interval": c.PollInterval} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	for name, v := range map[string]*int{"thresh_mask": c.ThreshMask, "thresh_detect": c.ThreshDetect, "thresh_led": c.ThreshLED} {
		if v != nil && (*v < 0 || *v > 255) {
			return fmt.Errorf("%s must be between 0 and 255, got %d", name, *v)
		}
	}

	if c.TrailLength != nil && *c.TrailLength < 1 {
		return fmt.Errorf("trail_length must be at least 1, got %d", *c.TrailLength)
	}
	if c.ProcessNoise != nil && *c.ProcessNoise < 0 {
		return fmt.Errorf("process_noise must be non-negative, got %f", *c.ProcessNoise)
	}
	if c.MeasurementNoise != nil && *c.MeasurementNoise <= 0 {
		return fmt.Errorf("measurement_noise must be positive, got %f", *c.MeasurementNoise)
	}

	for i, cam := range c.Cameras {
		if cam.Source == "" {
			return fmt.Errorf("cameras[%d]: source is required", i)
		}
		seen := make(map[int]bool, len(cam.Nodes))
		for _, n := range cam.Nodes {
			if seen[n.ID] {
				return fmt.Errorf("cameras[%d]: duplicate node id %d", i, n.ID)
			}
			seen[n.ID] = true
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetFrameWidth returns the frame_width value or the default.
func (c *CamCorderConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 640
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the frame_height value or the default.
func (c *CamCorderConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 360
	}
	return *c.FrameHeight
}

// GetFrameRate returns the requested capture rate in frames per second.
func (c *CamCorderConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 30
	}
	return *c.FrameRate
}

func (c *CamCorderConfig) GetMetadataRows() int {
	if c.MetadataRows == nil {
		return 1
	}
	return *c.MetadataRows
}

func (c *CamCorderConfig) GetPlaybackSpeedup() float64 {
	if c.PlaybackSpeedup == nil {
		return 1
	}
	return *c.PlaybackSpeedup
}

// GetLogWindow returns how many frames make up one fps log window.
func (c *CamCorderConfig) GetLogWindow() int {
	if c.LogWindow == nil || *c.LogWindow < 1 {
		return 500
	}
	return *c.LogWindow
}

func (c *CamCorderConfig) GetQueueCapacity() int {
	if c.QueueCapacity == nil {
		return 16
	}
	return *c.QueueCapacity
}

// GetQueueTimeout parses and returns the QueueTimeout as a time.Duration.
func (c *CamCorderConfig) GetQueueTimeout() time.Duration {
	return durationOr(c.QueueTimeout, 500*time.Millisecond)
}

// GetPollInterval parses and returns how often trackers poll their slot.
func (c *CamCorderConfig) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, 10*time.Millisecond)
}

func (c *CamCorderConfig) GetThreshMask() int {
	if c.ThreshMask == nil {
		return 100
	}
	return *c.ThreshMask
}

// GetThreshDetect returns the detection threshold. The binarisation cut is
// applied at 255 minus this value on the inverted image.
func (c *CamCorderConfig) GetThreshDetect() int {
	if c.ThreshDetect == nil {
		return 35
	}
	return *c.ThreshDetect
}

func (c *CamCorderConfig) GetThreshLED() int {
	if c.ThreshLED == nil {
		return 70
	}
	return *c.ThreshLED
}

// GetMinArea returns the minimum contour area in pixels.
func (c *CamCorderConfig) GetMinArea() float64 {
	if c.MinArea == nil {
		return 50
	}
	return *c.MinArea
}

// GetNodeRadius returns the node matching radius in pixels.
func (c *CamCorderConfig) GetNodeRadius() float64 {
	if c.NodeRadius == nil {
		return 100
	}
	return *c.NodeRadius
}

func (c *CamCorderConfig) GetTrailLength() int {
	if c.TrailLength == nil {
		return 512
	}
	return *c.TrailLength
}

// GetProcessNoise returns the Kalman process noise scale.
func (c *CamCorderConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 0.03
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the Kalman measurement noise scale.
func (c *CamCorderConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 1.0
	}
	return *c.MeasurementNoise
}
