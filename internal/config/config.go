package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"roadwork/internal/logging"
	"roadwork/internal/schedule"
	"roadwork/internal/workflow"
)

const FileName = "roadwork.yml"

// Config models roadwork.yml.
type Config struct {
	Schedule struct {
		SoftDeadlineDays int `yaml:"soft_deadline_days"`
		NearDays         int `yaml:"near_days"`
		OverdueGraceDays int `yaml:"overdue_grace_days"`
	} `yaml:"schedule"`
	Consultation struct {
		FeedbackPhases []string `yaml:"feedback_phases"`
	} `yaml:"consultation"`
	Assignment struct {
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"assignment"`
	Server struct {
		Addr             string `yaml:"addr"`
		JWTSecret        string `yaml:"jwt_secret"`
		LegacyUserHeader bool   `yaml:"legacy_user_header"`
	} `yaml:"server"`
	Log   logging.Config `yaml:"log"`
	Relay RelayConfig    `yaml:"relay"`
}

type RelayConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Brokers         []string `yaml:"brokers"`
	Topic           string   `yaml:"topic"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	BatchSize       int      `yaml:"batch_size"`
}

// Validate rejects non-positive durations, unknown phases and an enabled
// relay without brokers.
func (c *Config) Validate() error {
	if c.Schedule.SoftDeadlineDays <= 0 {
		return fmt.Errorf("config.schedule.soft_deadline_days must be positive")
	}
	if c.Schedule.NearDays < 0 {
		return fmt.Errorf("config.schedule.near_days must not be negative")
	}
	if c.Schedule.OverdueGraceDays < 0 {
		return fmt.Errorf("config.schedule.overdue_grace_days must not be negative")
	}
	for _, p := range c.Consultation.FeedbackPhases {
		st, ok := workflow.Parse(p)
		if !ok || !workflow.IsActivityStatus(st) {
			return fmt.Errorf("config.consultation.feedback_phases has unknown status %q", p)
		}
	}
	if c.Assignment.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.assignment.timeout_seconds must be positive")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config.log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	if c.Relay.Enabled {
		if len(c.Relay.Brokers) == 0 {
			return fmt.Errorf("config.relay.brokers is required when relay is enabled")
		}
		if c.Relay.Topic == "" {
			return fmt.Errorf("config.relay.topic is required when relay is enabled")
		}
		if c.Relay.IntervalSeconds <= 0 || c.Relay.BatchSize <= 0 {
			return fmt.Errorf("config.relay.interval_seconds and batch_size must be positive")
		}
	}
	return nil
}

// DueDatePolicy converts the schedule section.
func (c *Config) DueDatePolicy() schedule.DueDatePolicy {
	day := 24 * time.Hour
	return schedule.DueDatePolicy{
		SoftDeadline: time.Duration(c.Schedule.SoftDeadlineDays) * day,
		NearWindow:   time.Duration(c.Schedule.NearDays) * day,
		OverdueGrace: time.Duration(c.Schedule.OverdueGraceDays) * day,
	}
}

func (c *Config) FeedbackPhases() []workflow.Status {
	out := make([]workflow.Status, 0, len(c.Consultation.FeedbackPhases))
	for _, p := range c.Consultation.FeedbackPhases {
		out = append(out, workflow.Status(p))
	}
	return out
}

func (c *Config) AssignmentTimeout() time.Duration {
	return time.Duration(c.Assignment.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.NewDecoder(bytes.NewBufferString(DefaultYAML)).Decode(&cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// Load reads the workspace config, falling back to Default when the file
// does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses data over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// DefaultYAML is written by rw init.
const DefaultYAML = `schedule:
  soft_deadline_days: 7
  near_days: 3
  overdue_grace_days: 1

consultation:
  feedback_phases: [inconsult, reporting]

assignment:
  timeout_seconds: 10

server:
  addr: 127.0.0.1:8080
  jwt_secret: ""
  legacy_user_header: true

log:
  level: info
  format: json

relay:
  enabled: false
  brokers: []
  topic: roadwork.events
  interval_seconds: 5
  batch_size: 100
`
