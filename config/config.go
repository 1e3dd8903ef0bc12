// config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"parknet-api-server/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"corsOrigins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type HoldsConfig struct {
	DefaultTTL    time.Duration `mapstructure:"defaultTTL"`
	MaxTTL        time.Duration `mapstructure:"maxTTL"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

type BusConfig struct {
	QueueSize      int    `mapstructure:"queueSize"`
	OverflowPolicy string `mapstructure:"overflowPolicy"`
	SinkWorkers    int    `mapstructure:"sinkWorkers"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type S3Config struct {
	Enabled          bool   `mapstructure:"enabled"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

type RateLimitConfig struct {
	RPS          float64       `mapstructure:"rps"`
	Burst        int           `mapstructure:"burst"`
	IdleTTL      time.Duration `mapstructure:"idleTTL"`
	CleanupEvery time.Duration `mapstructure:"cleanupEvery"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type SeedFacility struct {
	FacilityID string  `mapstructure:"facilityID"`
	Name       string  `mapstructure:"name"`
	Address    string  `mapstructure:"address"`
	Latitude   float64 `mapstructure:"latitude"`
	Longitude  float64 `mapstructure:"longitude"`
	Rating     float64 `mapstructure:"rating"`
	ImageURL   string  `mapstructure:"imageURL"`
	Slots      int     `mapstructure:"slots"`
}

type SeedConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	Facilities []SeedFacility `mapstructure:"facilities"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Holds     HoldsConfig     `mapstructure:"holds"`
	Bus       BusConfig       `mapstructure:"bus"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Journal   JournalConfig   `mapstructure:"journal"`
	S3        S3Config        `mapstructure:"s3"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	Log       LogConfig       `mapstructure:"log"`
	Seed      SeedConfig      `mapstructure:"seed"`
}

var envBindings = map[string]string{
	"server.port":         "SERVER_PORT",
	"mongo.uri":           "MONGO_URI",
	"mongo.dbName":        "MONGO_DBNAME",
	"jwt.secret":          "JWT_SECRET",
	"jwt.issuer":          "JWT_ISSUER",
	"jwt.expiration":      "JWT_EXPIRATION",
	"holds.defaultTTL":    "HOLDS_DEFAULT_TTL",
	"holds.maxTTL":        "HOLDS_MAX_TTL",
	"bus.overflowPolicy":  "BUS_OVERFLOW_POLICY",
	"nats.enabled":        "NATS_ENABLED",
	"nats.url":            "NATS_URL",
	"journal.path":        "JOURNAL_PATH",
	"s3.enabled":          "S3_ENABLED",
	"s3.bucket":           "S3_BUCKET",
	"s3.region":           "S3_REGION",
	"s3.accessKeyID":      "S3_ACCESS_KEY_ID",
	"s3.secretAccessKey":  "S3_SECRET_ACCESS_KEY",
	"s3.cloudFrontDomain": "S3_CLOUDFRONT_DOMAIN",
	"log.level":           "LOG_LEVEL",
	"log.development":     "LOG_DEVELOPMENT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.corsOrigins", []string{"*"})
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.dbName", "parknet")
	v.SetDefault("jwt.issuer", "parknet")
	v.SetDefault("jwt.expiration", 24*time.Hour)
	v.SetDefault("holds.defaultTTL", 15*time.Minute)
	v.SetDefault("holds.maxTTL", 2*time.Hour)
	v.SetDefault("holds.sweepInterval", 5*time.Second)
	v.SetDefault("bus.queueSize", 64)
	v.SetDefault("bus.overflowPolicy", "drop-oldest")
	v.SetDefault("bus.sinkWorkers", 4)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subjectPrefix", "parknet.slots")
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "./data/journal")
	v.SetDefault("rateLimit.rps", 1.0)
	v.SetDefault("rateLimit.burst", 5)
	v.SetDefault("rateLimit.idleTTL", 15*time.Minute)
	v.SetDefault("rateLimit.cleanupEvery", 2*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("seed.enabled", true)
}

// LoadConfig reads config.yaml from path, then .env, then the environment.
// Environment variables win over the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if err := godotenv.Load(filepath.Join(path, "..", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return cfg, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine: defaults and the environment still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.JWT.Secret == "":
		return errors.New("jwt.secret (JWT_SECRET) is required")
	case c.Holds.DefaultTTL <= 0 || c.Holds.MaxTTL <= 0:
		return errors.New("holds.defaultTTL and holds.maxTTL must be positive")
	case c.Holds.DefaultTTL > c.Holds.MaxTTL:
		return fmt.Errorf("holds.defaultTTL %s exceeds holds.maxTTL %s", c.Holds.DefaultTTL, c.Holds.MaxTTL)
	case c.S3.Enabled && c.S3.Bucket == "":
		return errors.New("s3.bucket is required when s3 is enabled")
	}
	return nil
}

// SeedFacilities converts the configured catalogue into facilities with
// slots numbered 1..Slots.
func (s SeedConfig) SeedFacilities() []models.Facility {
	out := make([]models.Facility, 0, len(s.Facilities))
	for _, f := range s.Facilities {
		numbers := make([]int, 0, f.Slots)
		for n := 1; n <= f.Slots; n++ {
			numbers = append(numbers, n)
		}
		out = append(out, models.Facility{
			FacilityID:  f.FacilityID,
			Name:        f.Name,
			Address:     models.Address{FullText: f.Address, Latitude: f.Latitude, Longitude: f.Longitude},
			Rating:      f.Rating,
			ImageURL:    f.ImageURL,
			SlotNumbers: numbers,
		})
	}
	return out
}
