// Package config loads the simulator configuration via viper and exposes the
// typed sub-configs the services consume.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SqliteConfig holds SQLite storage backend settings
type SqliteConfig struct {
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// WebsocketConfig holds live-streaming backend settings
type WebsocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the recording backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	Sqlite    SqliteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Websocket WebsocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OriginConfig is the initial session origin
type OriginConfig struct {
	Lat    float64 `json:"lat" mapstructure:"lat"`
	Lon    float64 `json:"lon" mapstructure:"lon"`
	Height float64 `json:"height" mapstructure:"height"`
}

// SimConfig holds frame-loop settings
type SimConfig struct {
	TickMs        int    `json:"tickMs" mapstructure:"tickMs"`
	WorldName     string `json:"worldName" mapstructure:"worldName"`
	SessionName   string `json:"sessionName" mapstructure:"sessionName"`
	WaveSize      int    `json:"waveSize" mapstructure:"waveSize"`
	WaveStaggerMs int    `json:"waveStaggerMs" mapstructure:"waveStaggerMs"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./simlogs")

	viper.SetDefault("origin.lat", 48.1374)
	viper.SetDefault("origin.lon", 11.5755)
	viper.SetDefault("origin.height", 520.0)

	viper.SetDefault("sim.tickMs", 1000)
	viper.SetDefault("sim.worldName", "local")
	viper.SetDefault("sim.sessionName", "session")
	viper.SetDefault("sim.waveSize", 8)
	viper.SetDefault("sim.waveStaggerMs", 400)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "30s")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5001/ws")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "simcore")

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "simcore-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "simcore")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName("simcore.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetOriginConfig returns the configured initial origin.
func GetOriginConfig() OriginConfig {
	return OriginConfig{
		Lat:    viper.GetFloat64("origin.lat"),
		Lon:    viper.GetFloat64("origin.lon"),
		Height: viper.GetFloat64("origin.height"),
	}
}

// GetSimConfig returns the frame-loop settings.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickMs:        viper.GetInt("sim.tickMs"),
		WorldName:     viper.GetString("sim.worldName"),
		SessionName:   viper.GetString("sim.sessionName"),
		WaveSize:      viper.GetInt("sim.waveSize"),
		WaveStaggerMs: viper.GetInt("sim.waveStaggerMs"),
	}
}

// GetStorageConfig returns the recording backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		Sqlite: SqliteConfig{
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Websocket: WebsocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// OTelConfig holds OpenTelemetry export settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// GetOTelConfig returns the OpenTelemetry export configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
