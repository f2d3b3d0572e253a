// Package config loads process configuration from environment variables and
// optional .env files.
package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Store     StoreConfig
	Artifacts ArtifactsConfig
	Log       LogConfig
	Workers   int
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	Backend string
	DBPath  string
}

// ArtifactsConfig locates the on-disk run artifacts.
type ArtifactsConfig struct {
	Dir string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// Load reads configuration from environment variables, falling back to an
// optional .env file in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("NEUROSIM_STORE", "memory")
	v.SetDefault("NEUROSIM_DB_PATH", "neurosim.db")
	v.SetDefault("NEUROSIM_ARTIFACTS_DIR", "artifacts")
	v.SetDefault("NEUROSIM_LOG_LEVEL", "info")
	v.SetDefault("NEUROSIM_WORKERS", 4)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // file may not exist

	v.AutomaticEnv()

	v.BindEnv("NEUROSIM_STORE")
	v.BindEnv("NEUROSIM_DB_PATH")
	v.BindEnv("NEUROSIM_ARTIFACTS_DIR")
	v.BindEnv("NEUROSIM_LOG_LEVEL")
	v.BindEnv("NEUROSIM_WORKERS")

	var config Config
	config.Store.Backend = v.GetString("NEUROSIM_STORE")
	config.Store.DBPath = v.GetString("NEUROSIM_DB_PATH")
	config.Artifacts.Dir = v.GetString("NEUROSIM_ARTIFACTS_DIR")
	config.Log.Level = v.GetString("NEUROSIM_LOG_LEVEL")
	config.Workers = v.GetInt("NEUROSIM_WORKERS")

	return &config, nil
}
