package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "bouncelog.cfg.json"

// EnvPrefix is prepended to every environment override, e.g. BOUNCELOG_LOGLEVEL.
const EnvPrefix = "BOUNCELOG"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Bind      string `json:"bind" mapstructure:"bind"`
	Port      int    `json:"port" mapstructure:"port"`
	StaticDir string `json:"staticDir" mapstructure:"staticDir"`
}

// Addr returns the host:port the server listens on.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// MemoryConfig holds in-memory storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// StorageConfig selects and configures the persisted log store.
type StorageConfig struct {
	Type     string         `json:"type" mapstructure:"type"` // sqlite, postgres or memory
	SQLite   SQLiteConfig   `json:"sqlite" mapstructure:"sqlite"`
	Memory   MemoryConfig   `json:"memory" mapstructure:"memory"`
	Postgres PostgresConfig `json:"db" mapstructure:"db"`
}

// SimConfig holds the simulation parameters.
type SimConfig struct {
	RoomSize   float64    `json:"roomSize" mapstructure:"roomSize"`
	BallRadius float64    `json:"ballRadius" mapstructure:"ballRadius"`
	Velocity   [3]float64 `json:"velocity" mapstructure:"velocity"`
	FrameRate  int        `json:"frameRate" mapstructure:"frameRate"`
}

// ViewerConfig holds viewer client settings.
type ViewerConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB mirror settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the InfluxDB server URL.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// GraylogConfig holds GELF output settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// SentryConfig holds error reporting settings
type SentryConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	DSN         string  `json:"dsn" mapstructure:"dsn"`
	Environment string  `json:"environment" mapstructure:"environment"`
	SampleRate  float64 `json:"sampleRate" mapstructure:"sampleRate"`
	Debug       bool    `json:"debug" mapstructure:"debug"`
}

// SetDefaults registers default values and environment overrides.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.bind", "0.0.0.0")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.staticDir", "")

	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./bouncelog.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "0s")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.memory.outputDir", "")
	viper.SetDefault("storage.memory.compressOutput", false)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "bouncelog")
	viper.SetDefault("db.sslMode", "disable")

	viper.SetDefault("sim.roomSize", 100.0)
	viper.SetDefault("sim.ballRadius", 5.0)
	viper.SetDefault("sim.velocity", []float64{1, 2, 1.5})
	viper.SetDefault("sim.frameRate", 60)

	viper.SetDefault("viewer.serverUrl", "http://localhost:3000")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "bouncelog")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "bouncelog")
	viper.SetDefault("influx.bucket", "positions")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "development")
	viper.SetDefault("sentry.sampleRate", 1.0)
	viper.SetDefault("sentry.debug", false)

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults stay in
// effect when the file is missing; the error is still returned so callers
// can decide whether that is fatal.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
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

// GetServerConfig returns the HTTP listener configuration.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Bind:      viper.GetString("server.bind"),
		Port:      viper.GetInt("server.port"),
		StaticDir: viper.GetString("server.staticDir"),
	}
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: strings.ToLower(viper.GetString("storage.type")),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
			SSLMode:  viper.GetString("db.sslMode"),
		},
	}
}

// GetSimConfig returns the simulation configuration. An unparseable velocity
// is reported as an error rather than silently replaced.
func GetSimConfig() (SimConfig, error) {
	velocity, err := toVec3(viper.Get("sim.velocity"))
	if err != nil {
		return SimConfig{}, fmt.Errorf("sim.velocity: %w", err)
	}
	return SimConfig{
		RoomSize:   viper.GetFloat64("sim.roomSize"),
		BallRadius: viper.GetFloat64("sim.ballRadius"),
		Velocity:   velocity,
		FrameRate:  viper.GetInt("sim.frameRate"),
	}, nil
}

// GetViewerConfig returns the viewer client configuration.
func GetViewerConfig() ViewerConfig {
	return ViewerConfig{
		ServerURL: strings.TrimRight(viper.GetString("viewer.serverUrl"), "/"),
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB mirror configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetGraylogConfig returns the GELF output configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetSentryConfig returns the error reporting configuration.
func GetSentryConfig() SentryConfig {
	return SentryConfig{
		Enabled:     viper.GetBool("sentry.enabled"),
		DSN:         viper.GetString("sentry.dsn"),
		Environment: viper.GetString("sentry.environment"),
		SampleRate:  viper.GetFloat64("sentry.sampleRate"),
		Debug:       viper.GetBool("sentry.debug"),
	}
}

// toVec3 accepts the forms a three-component vector arrives in: the default
// []float64, a decoded JSON array, or a comma separated env string.
func toVec3(raw any) ([3]float64, error) {
	var parts []any
	switch v := raw.(type) {
	case []float64:
		for _, f := range v {
			parts = append(parts, f)
		}
	case []any:
		parts = v
	case string:
		for _, s := range strings.Split(v, ",") {
			parts = append(parts, strings.TrimSpace(s))
		}
	default:
		return [3]float64{}, fmt.Errorf("unsupported type %T", raw)
	}

	if len(parts) != 3 {
		return [3]float64{}, fmt.Errorf("expected 3 components, got %d", len(parts))
	}

	var out [3]float64
	for i, p := range parts {
		switch n := p.(type) {
		case float64:
			out[i] = n
		case int:
			out[i] = float64(n)
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return [3]float64{}, fmt.Errorf("component %d: %w", i, err)
			}
			out[i] = f
		default:
			return [3]float64{}, fmt.Errorf("component %d: unsupported type %T", i, p)
		}
	}
	return out, nil
}
