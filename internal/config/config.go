package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration shared by the server and the client
// binaries. Values come from an optional YAML file with environment overrides
// on top; everything has a working default so the server runs with no
// configuration at all.
type Config struct {
	Server struct {
		Port       int    `yaml:"port"`
		ScriptPath string `yaml:"script_path"`
	} `yaml:"server"`

	Sync struct {
		AnchorLeadMs       int     `yaml:"anchor_lead_ms"`
		PingIntervalMs     int     `yaml:"ping_interval_ms"`
		StartThresholdMs   int     `yaml:"start_threshold_ms"`
		ResyncToleranceSec float64 `yaml:"resync_tolerance_sec"`
	} `yaml:"sync"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	cfg.Server.Port = 5174
	cfg.Server.ScriptPath = "data/playData.json"
	cfg.Sync.AnchorLeadMs = 250
	cfg.Sync.PingIntervalMs = 1000
	cfg.Sync.StartThresholdMs = 60
	cfg.Sync.ResyncToleranceSec = 0.5
	cfg.NATS.SubjectPrefix = "stagecue.events"
	return cfg
}

// Load builds the configuration from the YAML file at path (skipped when
// empty or missing) and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Server.Port = getEnvAsInt("PORT", cfg.Server.Port)
	cfg.Server.ScriptPath = getEnv("SCRIPT_PATH", cfg.Server.ScriptPath)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
