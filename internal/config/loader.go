package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/primitives"
)

// Environment overrides.
const (
	EnvDebounce    = "TRACKCOORD_DEBOUNCE"
	EnvStoreDriver = "TRACKCOORD_STORE_DRIVER"
	EnvStorePath   = "TRACKCOORD_STORE_PATH"
	EnvRedisAddr   = "TRACKCOORD_REDIS_ADDR"
	EnvPostgresDSN = "TRACKCOORD_POSTGRES_DSN"
	EnvAddr        = "TRACKCOORD_ADDR"
	EnvLogLevel    = "TRACKCOORD_LOG_LEVEL"
	EnvLogFile     = "TRACKCOORD_LOG_FILE"
	EnvLastPolicy  = "TRACKCOORD_LAST_POLICY"
	EnvConfidence  = "TRACKCOORD_CONFIDENCE"
)

// Default returns the configuration used when no file is given.
func Default() Config {
	req := core.DefaultPositionRequest()
	return Config{
		Coordinator: CoordinatorConfig{
			Debounce:              core.DefaultDebounce,
			ConfidenceThreshold:   core.DefaultConfidenceThreshold,
			GeofenceRadiusMeters:  primitives.DefaultGeofenceRadiusMeters,
			LastGeofencePolicy:    core.LastReplace.String(),
			QueryTimeout:          core.DefaultQueryTimeout,
			CommandTimeout:        core.DefaultCommandTimeout,
			PositionInterval:      req.Interval,
			MinDisplacementMeters: req.MinDisplacementMeters,
		},
		Store:  StoreConfig{Driver: "memory"},
		Sink:   SinkConfig{Buffer: 256, RingSize: 200},
		Server: ServerConfig{Addr: ":8080"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 7,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file. envFile, when set,
// is loaded into the environment first; a missing envFile is ignored.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("yaml unmarshal %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags.
func Validate(cfg Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebounce, err)
		}
		cfg.Coordinator.Debounce = d
	}
	if v := os.Getenv(EnvConfidence); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvConfidence, err)
		}
		cfg.Coordinator.ConfidenceThreshold = n
	}
	setString(&cfg.Coordinator.LastGeofencePolicy, EnvLastPolicy)
	setString(&cfg.Store.Driver, EnvStoreDriver)
	setString(&cfg.Store.Path, EnvStorePath)
	setString(&cfg.Store.RedisAddr, EnvRedisAddr)
	setString(&cfg.Sink.PostgresDSN, EnvPostgresDSN)
	setString(&cfg.Server.Addr, EnvAddr)
	setString(&cfg.Log.Level, EnvLogLevel)
	setString(&cfg.Log.File, EnvLogFile)
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Options converts the coordinator section into coordinator options.
// Guards and runners that live outside core are wired by the caller.
func (c CoordinatorConfig) Options() ([]core.Option, error) {
	policy, err := core.ParseLastGeofencePolicy(c.LastGeofencePolicy)
	if err != nil {
		return nil, err
	}
	req := core.DefaultPositionRequest()
	req.Interval = c.PositionInterval
	req.MinDisplacementMeters = c.MinDisplacementMeters
	return []core.Option{
		core.WithDebounce(c.Debounce),
		core.WithConfidenceThreshold(c.ConfidenceThreshold),
		core.WithGeofenceRadius(c.GeofenceRadiusMeters),
		core.WithLastGeofencePolicy(policy),
		core.WithQueryTimeout(c.QueryTimeout),
		core.WithCommandTimeout(c.CommandTimeout),
		core.WithPositionRequest(req),
	}, nil
}
