package floor

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPublishPrefix is the topic prefix used when none is configured
const DefaultPublishPrefix = "pinfloor"

// LoadConfig loads the configuration from a YAML file and fills in defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with every default applied and MQTT disabled
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with the defaults
func (c *Config) ApplyDefaults() {
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
	prefix := strings.TrimSuffix(c.MQTT.PublishPrefix, "/")

	if c.Topics.Surfaces == "" {
		c.Topics.Surfaces = prefix + "/surfaces"
	}
	if c.Topics.Remove == "" {
		c.Topics.Remove = prefix + "/surfaces/remove"
	}
	if c.Topics.Place == "" {
		c.Topics.Place = prefix + "/pins/place"
	}
	if c.Topics.Reset == "" {
		c.Topics.Reset = prefix + "/pins/reset"
	}

	if c.Evaluation.FarThreshold == 0 {
		c.Evaluation.FarThreshold = DefaultFarThreshold
	}
	if c.Evaluation.ProjectionEpsilon == 0 {
		c.Evaluation.ProjectionEpsilon = DefaultProjectionEpsilon
	}
	if c.Evaluation.PlacementDistance == 0 {
		c.Evaluation.PlacementDistance = DefaultPlacementDistance
	}

	if c.Render.PixelsPerMeter == 0 {
		c.Render.PixelsPerMeter = 100
	}
	if c.Render.Padding == 0 {
		c.Render.Padding = 0.5
	}
	if c.Render.GridSpacing == 0 {
		c.Render.GridSpacing = 1.0
	}
	if c.Render.Resolution == 0 {
		c.Render.Resolution = 300
	}
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Evaluation.FarThreshold < 0 {
		return fmt.Errorf("evaluation.farThreshold must be positive")
	}
	if c.Evaluation.ProjectionEpsilon < 0 {
		return fmt.Errorf("evaluation.projectionEpsilon must be positive")
	}
	if c.Evaluation.PlacementDistance < 0 {
		return fmt.Errorf("evaluation.placementDistance must be positive")
	}
	if c.Render.PixelsPerMeter < 0 {
		return fmt.Errorf("render.pixelsPerMeter must be positive")
	}

	seen := make(map[string]string)
	for name, topic := range map[string]string{
		"surfaces": c.Topics.Surfaces,
		"remove":   c.Topics.Remove,
		"place":    c.Topics.Place,
		"reset":    c.Topics.Reset,
	} {
		if other, ok := seen[topic]; ok {
			first, second := other, name
			if second < first {
				first, second = second, first
			}
			return fmt.Errorf("topics.%s and topics.%s must differ", first, second)
		}
		seen[topic] = name
	}

	return nil
}

// SubscribedTopics returns the topics the service listens on
func (c *Config) SubscribedTopics() []string {
	return []string{c.Topics.Surfaces, c.Topics.Remove, c.Topics.Place, c.Topics.Reset}
}
