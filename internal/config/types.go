package config

import "time"

// CoordinatorConfig holds the coordinator policy knobs.
type CoordinatorConfig struct {
	Debounce              time.Duration `yaml:"debounce" validate:"gt=0"`
	ConfidenceThreshold   int           `yaml:"confidenceThreshold" validate:"gte=0,lte=100"`
	GeofenceRadiusMeters  float64       `yaml:"geofenceRadiusMeters" validate:"gt=0"`
	LastGeofencePolicy    string        `yaml:"lastGeofencePolicy" validate:"oneof=replace if_absent never"`
	QueryTimeout          time.Duration `yaml:"queryTimeout" validate:"gt=0"`
	CommandTimeout        time.Duration `yaml:"commandTimeout" validate:"gt=0"`
	PositionInterval      time.Duration `yaml:"positionInterval" validate:"gt=0"`
	MinDisplacementMeters float64       `yaml:"minDisplacementMeters" validate:"gte=0"`
	MaxAccuracyMeters     float64       `yaml:"maxAccuracyMeters" validate:"gte=0"` // 0 disables the accuracy guard
	CommandsPerSecond     float64       `yaml:"commandsPerSecond" validate:"gte=0"` // 0 disables throttling
}

// StoreConfig selects the StateStore backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" validate:"oneof=memory file redis"`
	Path        string `yaml:"path" validate:"required_if=Driver file"`
	RedisAddr   string `yaml:"redisAddr" validate:"required_if=Driver redis"`
	RedisPrefix string `yaml:"redisPrefix"`
}

// SinkConfig configures the observability log destinations.
type SinkConfig struct {
	PostgresDSN string `yaml:"postgresDSN"`
	Buffer      int    `yaml:"buffer" validate:"gte=0"`
	RingSize    int    `yaml:"ringSize" validate:"gt=0"`
}

// ServerConfig contains the control API listener.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// LogConfig controls diagnostic logging and file rotation.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Config is the root configuration structure.
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Store       StoreConfig       `yaml:"store"`
	Sink        SinkConfig        `yaml:"sink"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}
