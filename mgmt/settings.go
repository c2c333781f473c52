// Package mgmt assembles the management kernel: settings, the shared
// execution substrate, event publishing, health monitoring and the index of
// managed entities. A Context is the unit of isolation; independent contexts
// never share state.
package mgmt

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rohankumardubey/brooklyn-server/errors"
)

// Duration is a time.Duration that unmarshals from YAML strings like "10s"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Settings is the static configuration of one management context
type Settings struct {
	Platform PlatformSettings `yaml:"platform"`
	Exec     ExecSettings     `yaml:"exec"`
	Events   EventSettings    `yaml:"events"`
	Shutdown ShutdownSettings `yaml:"shutdown"`
}

// PlatformSettings identifies the management context
type PlatformSettings struct {
	Name string `yaml:"name"`
}

// ExecSettings sizes the execution substrate
type ExecSettings struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// EventSettings configures external event publishing
type EventSettings struct {
	// NATSURL enables publishing when non-empty
	NATSURL string `yaml:"nats_url"`
}

// ShutdownSettings bounds context termination
type ShutdownSettings struct {
	Timeout Duration `yaml:"timeout"`
}

// DefaultSettings returns settings suitable for tests and embedded use
func DefaultSettings() Settings {
	return Settings{
		Platform: PlatformSettings{Name: "local"},
		Exec:     ExecSettings{Workers: 8, QueueSize: 256},
		Shutdown: ShutdownSettings{Timeout: Duration(10 * time.Second)},
	}
}

// Validate checks settings for internal consistency
func (s *Settings) Validate() error {
	if s.Platform.Name == "" {
		return errors.WrapInvalid(errors.New("platform.name is required"), "Settings", "Validate", "platform check")
	}
	if s.Exec.Workers <= 0 {
		return errors.WrapInvalid(errors.New("exec.workers must be positive"), "Settings", "Validate", "exec check")
	}
	if s.Exec.QueueSize <= 0 {
		return errors.WrapInvalid(errors.New("exec.queue_size must be positive"), "Settings", "Validate", "exec check")
	}
	if s.Shutdown.Timeout <= 0 {
		return errors.WrapInvalid(errors.New("shutdown.timeout must be positive"), "Settings", "Validate", "shutdown check")
	}
	return nil
}

// LoadSettings reads settings from a YAML file, filling unset fields from
// defaults before validation.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
