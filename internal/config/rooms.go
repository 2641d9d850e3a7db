package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"roombook/internal/rooms"
)

// RoomsConfig is the root of rooms.yaml.
type RoomsConfig struct {
	Rooms []rooms.Room `yaml:"rooms"`
}

// LoadRoomsConfig loads and validates rooms.yaml.
func LoadRoomsConfig(path string) (*RoomsConfig, error) {
	if path == "" {
		path = "configs/rooms.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms config: %w", err)
	}

	var cfg RoomsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rooms config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate rooms config: %w", err)
	}
	return &cfg, nil
}

// Validate checks ids, names and capacities.
func (c *RoomsConfig) Validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("no rooms defined")
	}

	ids := make(map[int]bool)
	names := make(map[string]bool)
	for i, r := range c.Rooms {
		if r.ID <= 0 {
			return fmt.Errorf("room[%d]: id must be positive, got %d", i, r.ID)
		}
		if ids[r.ID] {
			return fmt.Errorf("room[%d]: duplicate id %d", i, r.ID)
		}
		ids[r.ID] = true

		name := strings.TrimSpace(r.Name)
		if name == "" {
			return fmt.Errorf("room[%d]: name is required", i)
		}
		if names[strings.ToLower(name)] {
			return fmt.Errorf("room[%d]: duplicate name '%s'", i, name)
		}
		names[strings.ToLower(name)] = true

		if r.Capacity < 0 {
			return fmt.Errorf("room[%d]: capacity cannot be negative", i)
		}
	}
	return nil
}

func (c *RoomsConfig) String() string {
	return fmt.Sprintf("RoomsConfig: %d rooms", len(c.Rooms))
}
