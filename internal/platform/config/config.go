// Package config loads service configuration from an optional YAML file with
// environment overrides, so containers configure everything through env vars
// while local runs can keep a config.yaml.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Database selects the SQL driver and DSN for the audit record store.
// Driver is a database/sql driver name; pgx and postgres (lib/pq) are both
// registered by the server binary.
type Database struct {
	Driver string
	DSN    string
}

// Redis configures the optional history read cache. An empty URL disables
// caching entirely.
type Redis struct {
	URL      string
	CacheTTL time.Duration
	PoolSize int
}

// Kafka configures the optional journal relay.
type Kafka struct {
	Enabled    bool
	Brokers    []string
	Topic      string
	Partitions int32
}

// Auth configures gateway-forwarded-token validation. GatewaySecretHash is
// an optional bcrypt hash; when set, requests must carry the matching
// X-Gateway-Secret header.
type Auth struct {
	JWTSigningKey     string
	GatewaySecretHash string
}

// Lifecycle configures orchestrator flag files.
type Lifecycle struct {
	FlagDir string
}

// Config is the root configuration for the chronicle server.
type Config struct {
	Server    Server
	Database  Database
	Redis     Redis
	Kafka     Kafka
	Auth      Auth
	Lifecycle Lifecycle
}

// Load reads config.yaml from configPath (optional) and applies environment
// overrides with the CHRONICLE prefix, e.g. CHRONICLE_SERVER_ADDR.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHRONICLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.dsn", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache_ttl", "30s")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "chronicle.audit")
	v.SetDefault("kafka.partitions", 6)
	v.SetDefault("auth.jwt_signing_key", "")
	v.SetDefault("auth.gateway_secret_hash", "")
	v.SetDefault("lifecycle.flag_dir", "")

	if err := v.ReadInConfig(); err != nil {
		// Missing file is fine; defaults plus env cover containers.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	return Config{
		Server: Server{
			Addr: v.GetString("server.addr"),
		},
		Database: Database{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Redis: Redis{
			URL:      v.GetString("redis.url"),
			CacheTTL: v.GetDuration("redis.cache_ttl"),
			PoolSize: v.GetInt("redis.pool_size"),
		},
		Kafka: Kafka{
			Enabled:    v.GetBool("kafka.enabled"),
			Brokers:    v.GetStringSlice("kafka.brokers"),
			Topic:      v.GetString("kafka.topic"),
			Partitions: v.GetInt32("kafka.partitions"),
		},
		Auth: Auth{
			JWTSigningKey:     v.GetString("auth.jwt_signing_key"),
			GatewaySecretHash: v.GetString("auth.gateway_secret_hash"),
		},
		Lifecycle: Lifecycle{
			FlagDir: v.GetString("lifecycle.flag_dir"),
		},
	}, nil
}
