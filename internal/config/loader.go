package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "yaml"

	// EnvConfigPath points at an operator-mounted config directory whose
	// values override the base config.
	envConfigPath = "CONFIG_PATH"
	envPrefix     = "ARK_EVALUATOR"

	defaultPort = 8000
)

// LoadConfig reads config.yaml from configDir (plus an optional override
// directory named by CONFIG_PATH) and applies environment overrides with the
// ARK_EVALUATOR_ prefix. A missing config file is not an error: every setting
// has a default so the service can start with no configuration at all.
func LoadConfig(logger *slog.Logger, version string, build string, buildDate string, configDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service.port", defaultPort)

	if configDir != "" {
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("failed to read config from %s: %w", configDir, err)
			}
			logger.Info("No config file found, using defaults", "config_dir", configDir)
		} else {
			logger.Info("Loaded config", "file", v.ConfigFileUsed())
		}
	}

	// operator-mounted overrides win over the base config
	if overrideDir := os.Getenv(envConfigPath); overrideDir != "" {
		override := viper.New()
		override.SetConfigName(configName)
		override.SetConfigType(configType)
		override.AddConfigPath(overrideDir)
		if err := override.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("failed to read override config from %s: %w", overrideDir, err)
			}
		} else {
			if err := v.MergeConfigMap(override.AllSettings()); err != nil {
				return nil, fmt.Errorf("failed to merge override config: %w", err)
			}
			logger.Info("Merged override config", "file", override.ConfigFileUsed())
		}
	}

	serviceConfig := &Config{}
	if err := v.Unmarshal(serviceConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if serviceConfig.Service == nil {
		serviceConfig.Service = &ServiceConfig{Port: defaultPort}
	}
	if serviceConfig.Service.Port == 0 {
		serviceConfig.Service.Port = defaultPort
	}
	serviceConfig.Service.Version = version
	serviceConfig.Service.Build = build
	serviceConfig.Service.BuildDate = buildDate
	return serviceConfig, nil
}
