package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from environment variables, optionally
// overlaying a YAML file named by SENTINEL_CONFIG_FILE.
// Falls back to defaults for any missing values.
func Load() *Config {
	cfg := Default()

	if path := os.Getenv("SENTINEL_CONFIG_FILE"); path != "" {
		if err := overlayYAMLFile(cfg, path); err != nil {
			log.Fatalf("Invalid configuration file %s: %v", path, err)
		}
	}

	if port := os.Getenv("SENTINEL_DIAGNOSTICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Diagnostics.Port = p
		}
	}

	if host := os.Getenv("SENTINEL_DIAGNOSTICS_HOST"); host != "" {
		cfg.Diagnostics.Host = host
	}

	if logLevel := os.Getenv("SENTINEL_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if mavPort := os.Getenv("SENTINEL_MAVLINK_PORT"); mavPort != "" {
		cfg.MAVLink.Port = mavPort
	}

	if mavBaud := os.Getenv("SENTINEL_MAVLINK_BAUD"); mavBaud != "" {
		if b, err := strconv.Atoi(mavBaud); err == nil {
			cfg.MAVLink.BaudRate = b
		}
	}

	if endpoint := os.Getenv("SENTINEL_UPLINK_ENDPOINT"); endpoint != "" {
		cfg.Uplink.Endpoint = endpoint
	}

	if token := os.Getenv("SENTINEL_UPLINK_TOKEN"); token != "" {
		cfg.Uplink.AuthToken = token
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return cfg
}

// overlayYAMLFile decodes a YAML document on top of an existing Config,
// so unset fields keep their defaults (YAML unmarshalling into a
// pre-populated struct only touches keys present in the document).
func overlayYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}
