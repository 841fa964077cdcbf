package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "pilgrim_tracker.cfg.json"

// Config is the typed view of every key Load registers.
type Config struct {
	LogLevel      string `json:"logLevel" mapstructure:"logLevel" validate:"oneof=debug info warn error"`
	LogsDir       string `json:"logsDir" mapstructure:"logsDir" validate:"required"`
	ReferenceFile string `json:"referenceFile" mapstructure:"referenceFile"`

	Sampler    SamplerConfig    `json:"sampler" mapstructure:"sampler"`
	Animation  AnimationConfig  `json:"animation" mapstructure:"animation"`
	Tracking   TrackingConfig   `json:"tracking" mapstructure:"tracking"`
	Route      RouteConfig      `json:"route" mapstructure:"route"`
	View       ViewConfig       `json:"view" mapstructure:"view"`
	Hint       HintConfig       `json:"hint" mapstructure:"hint"`
	Routing    RoutingConfig    `json:"routing" mapstructure:"routing"`
	Sensor     SensorConfig     `json:"sensor" mapstructure:"sensor"`
	Membership MembershipConfig `json:"membership" mapstructure:"membership"`
	MapStream  MapStreamConfig  `json:"mapStream" mapstructure:"mapStream"`
	Storage    StorageConfig    `json:"storage" mapstructure:"storage"`
	DB         DBConfig         `json:"db" mapstructure:"db"`
	Influx     InfluxConfig     `json:"influx" mapstructure:"influx"`
	API        APIConfig        `json:"api" mapstructure:"api"`
	HTTP       HTTPConfig       `json:"http" mapstructure:"http"`
	OTel       OTelConfig       `json:"otel" mapstructure:"otel"`
	Graylog    GraylogConfig    `json:"graylog" mapstructure:"graylog"`
}

// SamplerConfig bounds the randomized throttle window.
type SamplerConfig struct {
	MinInterval time.Duration `json:"minInterval" mapstructure:"minInterval" validate:"gt=0"`
	MaxInterval time.Duration `json:"maxInterval" mapstructure:"maxInterval" validate:"gtefield=MinInterval"`
}

type AnimationConfig struct {
	Duration time.Duration `json:"duration" mapstructure:"duration" validate:"gte=0"`
}

type TrackingConfig struct {
	RecentPathLimit int           `json:"recentPathLimit" mapstructure:"recentPathLimit" validate:"gte=0"`
	OnlineWindow    time.Duration `json:"onlineWindow" mapstructure:"onlineWindow" validate:"gt=0"`
}

type RouteConfig struct {
	FitPaddingPx int `json:"fitPaddingPx" mapstructure:"fitPaddingPx" validate:"gte=0"`
}

// ViewConfig holds the initial camera and the zoom levels used by actions.
type ViewConfig struct {
	DefaultLat   float64 `json:"defaultLat" mapstructure:"defaultLat" validate:"gte=-90,lte=90"`
	DefaultLng   float64 `json:"defaultLng" mapstructure:"defaultLng" validate:"gte=-180,lte=180"`
	DefaultZoom  float64 `json:"defaultZoom" mapstructure:"defaultZoom" validate:"gt=0"`
	RecenterZoom float64 `json:"recenterZoom" mapstructure:"recenterZoom" validate:"gt=0"`
	HintZoom     float64 `json:"hintZoom" mapstructure:"hintZoom" validate:"gt=0"`
}

type HintConfig struct {
	Highlight  time.Duration `json:"highlight" mapstructure:"highlight" validate:"gt=0"`
	BufferSize int           `json:"bufferSize" mapstructure:"bufferSize" validate:"gte=0"`
}

// RoutingConfig selects the routing adapter.
type RoutingConfig struct {
	Provider        string        `json:"provider" mapstructure:"provider" validate:"oneof=osrm direct"`
	OsrmURL         string        `json:"osrmUrl" mapstructure:"osrmUrl" validate:"required_if=Provider osrm"`
	Profile         string        `json:"profile" mapstructure:"profile" validate:"required"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout" validate:"gt=0"`
	Alternatives    bool          `json:"alternatives" mapstructure:"alternatives"`
	WalkingSpeedMps float64       `json:"walkingSpeedMps" mapstructure:"walkingSpeedMps" validate:"gt=0"`
}

// SensorConfig drives the simulated walking sensor.
type SensorConfig struct {
	Interval     time.Duration `json:"interval" mapstructure:"interval" validate:"gt=0"`
	StartLat     float64       `json:"startLat" mapstructure:"startLat" validate:"gte=-90,lte=90"`
	StartLng     float64       `json:"startLng" mapstructure:"startLng" validate:"gte=-180,lte=180"`
	SpeedMps     float64       `json:"speedMps" mapstructure:"speedMps" validate:"gte=0"`
	JitterMeters float64       `json:"jitterMeters" mapstructure:"jitterMeters" validate:"gte=0"`
}

type MembershipConfig struct {
	DriftInterval time.Duration `json:"driftInterval" mapstructure:"driftInterval" validate:"gte=0"`
	DriftMeters   float64       `json:"driftMeters" mapstructure:"driftMeters" validate:"gte=0"`
}

// MapStreamConfig points the websocket map surface at a renderer.
type MapStreamConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url" validate:"required_if=Enabled true"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite backend.
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// WebSocketConfig holds settings for the streaming storage backend.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the track recording backend.
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type" validate:"oneof=memory sqlite postgres influx websocket"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol" validate:"oneof=http https"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// APIConfig points at the recordings server that receives exported sessions.
type APIConfig struct {
	ServerURL string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string `json:"apiKey" mapstructure:"apiKey"`
}

type HTTPConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// EnvPrefix prefixes environment overrides: PILGRIM_DB_PASSWORD sets
// db.password.
const EnvPrefix = "PILGRIM"

// Load registers the defaults and environment overrides, then reads
// FileName from configDir. The defaults stay in effect when the file is
// missing, so callers may log the error and continue.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.SetConfigType("json")
	viper.AddConfigPath(configDir)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./pilgrimlogs")
	viper.SetDefault("referenceFile", "")

	viper.SetDefault("sampler.minInterval", "3s")
	viper.SetDefault("sampler.maxInterval", "5s")
	viper.SetDefault("animation.duration", "300ms")
	viper.SetDefault("tracking.recentPathLimit", 20)
	viper.SetDefault("tracking.onlineWindow", "2m")
	viper.SetDefault("route.fitPaddingPx", 48)

	viper.SetDefault("view.defaultLat", 23.1828)
	viper.SetDefault("view.defaultLng", 75.7682)
	viper.SetDefault("view.defaultZoom", 15)
	viper.SetDefault("view.recenterZoom", 17)
	viper.SetDefault("view.hintZoom", 18)

	viper.SetDefault("hint.highlight", "5500ms")
	viper.SetDefault("hint.bufferSize", 64)

	viper.SetDefault("routing.provider", "osrm")
	viper.SetDefault("routing.osrmUrl", "https://router.project-osrm.org")
	viper.SetDefault("routing.profile", "foot")
	viper.SetDefault("routing.timeout", "10s")
	viper.SetDefault("routing.alternatives", true)
	viper.SetDefault("routing.walkingSpeedMps", 1.3)

	viper.SetDefault("sensor.interval", "1s")
	viper.SetDefault("sensor.startLat", 23.2595)
	viper.SetDefault("sensor.startLng", 77.4118)
	viper.SetDefault("sensor.speedMps", 1.2)
	viper.SetDefault("sensor.jitterMeters", 3)

	viper.SetDefault("membership.driftInterval", "4s")
	viper.SetDefault("membership.driftMeters", 15)

	viper.SetDefault("mapStream.enabled", false)
	viper.SetDefault("mapStream.url", "ws://localhost:8090/map")
	viper.SetDefault("mapStream.secret", "")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./recordings/tracks.db")
	viper.SetDefault("storage.websocket.url", "")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "pilgrim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "pilgrim-metrics")
	viper.SetDefault("influx.bucket", "tracks")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("http.addr", ":8080")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "pilgrim-tracker")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// Get decodes the loaded keys into a Config and validates it.
func Get() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
