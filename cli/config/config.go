package config

import (
	"fmt"
	"time"

	"github.com/justapithecus/ticktape/itch"
)

// Config represents a ticktape.yaml configuration file.
// All values are optional and act as defaults for ticktape decode flags.
// CLI flags always override config values.
type Config struct {
	Feed    string        `yaml:"feed"`
	Decoder DecoderConfig `yaml:"decoder"`
	Input   InputConfig   `yaml:"input"`
	Storage StorageConfig `yaml:"storage"`
	Policy  PolicyConfig  `yaml:"policy"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// DecoderConfig holds decoder defaults.
type DecoderConfig struct {
	StrictLength bool `yaml:"strict_length"`
	MaxMessages  int  `yaml:"max_messages"`
}

// InputConfig holds capture input defaults.
type InputConfig struct {
	Format string `yaml:"format"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds policy defaults from the config file.
type PolicyConfig struct {
	Name           string   `yaml:"name"`
	BufferMessages int      `yaml:"buffer_messages"`
	BufferBytes    int64    `yaml:"buffer_bytes"`
	Droppable      []string `yaml:"droppable,omitempty"`
	FlushCount     int      `yaml:"flush_count"`
	FlushInterval  Duration `yaml:"flush_interval"`
}

// DroppableTypes parses the droppable list into message types.
func (p PolicyConfig) DroppableTypes() ([]itch.MessageType, error) {
	out := make([]itch.MessageType, 0, len(p.Droppable))
	for _, s := range p.Droppable {
		var t itch.MessageType
		if err := t.UnmarshalText([]byte(s)); err != nil {
			return nil, fmt.Errorf("policy.droppable: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
