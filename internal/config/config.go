package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StoreMemory и StoreRedis - поддерживаемые бэкенды реестра стримов
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Duration принимает в YAML строки вида "30s" и целые секунды
type Duration time.Duration

// UnmarshalYAML реализует yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// Std возвращает стандартный time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config представляет конфигурацию приложения
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Бэкенд реестра стримов: memory или redis
	Store string `yaml:"store"`

	Redis     RedisConfig     `yaml:"redis"`
	Video     VideoConfig     `yaml:"video"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
	CORS      CORSConfig      `yaml:"cors"`
	Server    ServerConfig    `yaml:"server"`
	TLS       TLSConfig       `yaml:"tls"`
}

// RedisConfig - подключение к Redis для реестра стримов
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  Duration `yaml:"dial_timeout"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// VideoConfig - ограничения на принимаемые кадры
type VideoConfig struct {
	MaxFrameSize  int    `yaml:"max_frame_size"`
	DefaultFormat string `yaml:"default_format"`
}

// RetentionConfig - хранение остановленных стримов
type RetentionConfig struct {
	StoppedTTL    Duration `yaml:"stopped_ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CORSConfig - настройки CORS
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// ServerConfig - таймауты HTTP сервера
type ServerConfig struct {
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	IdleTimeout     Duration `yaml:"idle_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// TLSConfig - сертификаты для HTTPS
type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// LoadConfig загружает конфигурацию из файла с переопределением из окружения
func LoadConfig(path string) (*Config, error) {
	// .env опционален
	_ = godotenv.Load()

	cfg := GetDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv переопределяет значения из переменных окружения
func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate проверяет согласованность конфигурации
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("store is %q but redis.addr is empty", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store)
	}
	if c.Video.MaxFrameSize <= 0 {
		return fmt.Errorf("video.max_frame_size must be positive")
	}
	return nil
}

// GetDefaultConfig возвращает конфигурацию по умолчанию
func GetDefaultConfig() *Config {
	return &Config{
		Host:  "0.0.0.0",
		Port:  8080,
		Store: StoreMemory,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DB:           0,
			DialTimeout:  Duration(10 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		Video: VideoConfig{
			MaxFrameSize:  10 * 1024 * 1024, // 10MB
			DefaultFormat: "jpeg",
		},
		Retention: RetentionConfig{
			StoppedTTL:    Duration(time.Hour),
			SweepInterval: Duration(time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "Accept", "Origin"},
		},
		Server: ServerConfig{
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(60 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}
