package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	JWTSecret   string
	JWTUser     string
	JWTPassword string
	Addr        string
	TLSCertFile string
	TLSKeyFile  string

	HarvestTimeout   time.Duration
	CacheTTL         time.Duration
	ScheduleInterval time.Duration
	DaysAhead        int
	Days             int
	Adults           int

	Airports  []string
	Routes    []string
	Providers []ProviderConfig

	Storage StorageConfig
	Kafka   KafkaConfig
	Redis   RedisConfig

	LogLevel  string
	LogFormat string
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	CSVDir      string `mapstructure:"csv_dir"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth_user", "demo")
	v.SetDefault("auth_pass", "demo123")
	v.SetDefault("addr", ":8080")
	v.SetDefault("harvest_timeout", "5m")
	v.SetDefault("cache_ttl", "30s")
	v.SetDefault("schedule_interval", "6h")
	v.SetDefault("days_ahead", 2)
	v.SetDefault("days", 1)
	v.SetDefault("adults", 1)
	v.SetDefault("airports", []string{"SGN", "HAN", "DAD"})
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "harvester.db")
	v.SetDefault("kafka.topic", "flight-offers")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load reads .env, then the config file (explicit path, HARVESTER_CONFIG, or
// config.yaml in the usual places), then the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("HARVESTER_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/harvester")
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		log.Printf("no config file found, using defaults + env vars: %v", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	durations := map[string]*time.Duration{}
	cfg := &Config{
		JWTSecret:   v.GetString("jwt_secret"),
		JWTUser:     v.GetString("auth_user"),
		JWTPassword: v.GetString("auth_pass"),
		Addr:        v.GetString("addr"),
		TLSCertFile: v.GetString("tls_cert_file"),
		TLSKeyFile:  v.GetString("tls_key_file"),
		DaysAhead:   v.GetInt("days_ahead"),
		Days:        v.GetInt("days"),
		Adults:      v.GetInt("adults"),
		Airports:    upper(v.GetStringSlice("airports")),
		Routes:      upper(v.GetStringSlice("routes")),
		LogLevel:    v.GetString("log_level"),
		LogFormat:   v.GetString("log_format"),
	}
	durations["harvest_timeout"] = &cfg.HarvestTimeout
	durations["cache_ttl"] = &cfg.CacheTTL
	durations["schedule_interval"] = &cfg.ScheduleInterval
	for key, dst := range durations {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("bad %s: %w", key, err)
		}
		*dst = d
	}

	cfg.Storage = StorageConfig{
		Driver:      v.GetString("storage.driver"),
		SQLitePath:  v.GetString("storage.sqlite_path"),
		PostgresDSN: v.GetString("storage.postgres_dsn"),
		CSVDir:      v.GetString("storage.csv_dir"),
	}
	cfg.Kafka = KafkaConfig{
		Brokers: v.GetStringSlice("kafka.brokers"),
		Topic:   v.GetString("kafka.topic"),
	}
	cfg.Redis = RedisConfig{
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
	}
	if err := v.UnmarshalKey("providers", &cfg.Providers); err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	for i := range cfg.Providers {
		cfg.Providers[i].expandSecrets()
	}
	if cfg.Days < 1 {
		cfg.Days = 1
	}
	return cfg, nil
}

func upper(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
