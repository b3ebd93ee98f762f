package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvProduction = "production"

type Config struct {
	Environment string          `koanf:"environment"`
	Server      ServerConfig    `koanf:"server"`
	Database    DatabaseConfig  `koanf:"database"`
	Redis       RedisConfig     `koanf:"redis"`
	Log         LogConfig       `koanf:"log"`
	Auth        AuthConfig      `koanf:"auth"`
	CORS        CORSConfig      `koanf:"cors"`
	RateLimit   RateLimitConfig `koanf:"ratelimit"`
	Audit       AuditConfig     `koanf:"audit"`
}

// IsProduction reports whether internal error detail must be hidden.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

type AuthConfig struct {
	SigningKey  string `koanf:"signingkey"`
	Issuer      string `koanf:"issuer"`
	ExpiryHours int    `koanf:"expiryhours"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	URL            string `koanf:"url"`
	MigrationsPath string `koanf:"migrationspath"`
	MaxConns       int    `koanf:"maxconns"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

type RateLimitConfig struct {
	// Login is the number of login attempts allowed per IP per minute.
	Login int `koanf:"login"`
}

type AuditConfig struct {
	BufferSize int `koanf:"buffersize"`
	BatchSize  int `koanf:"batchsize"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"environment":             "development",
		"server.port":             8080,
		"server.host":             "0.0.0.0",
		"database.maxconns":       25,
		"database.migrationspath": "migrations",
		"redis.addr":              "localhost:6379",
		"redis.db":                0,
		"log.level":               "info",
		"log.format":              "json",
		"auth.issuer":             "ledger",
		"auth.expiryhours":        24,
		"cors.origins":            []string{"http://localhost:5173"},
		"ratelimit.login":         10,
		"audit.buffersize":        4096,
		"audit.batchsize":         100,
	}, "."), nil)

	// YAML file (optional)
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Config file is optional, skip if not found
			continue
		}
	}

	// Environment variables override everything
	// LEDGER_SERVER_PORT -> server.port
	_ = k.Load(env.Provider("LEDGER_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "LEDGER_")),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
