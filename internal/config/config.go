package config

import (
	"errors"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	JWTSecret            string `env:"JWT_SECRET"`
	JWTAccessTTLMinutes  int    `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"15"`
	JWTRefreshTTLMinutes int    `env:"JWT_REFRESH_TTL_MINUTES" envDefault:"43200"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// GoogleAuthEnabled es un puntero a propósito: sin valor explícito,
	// el proveedor queda habilitado cuando hay client ids configurados.
	// Un "false" explícito lo apaga siempre.
	GoogleAuthEnabled    *bool    `env:"GOOGLE_AUTH_ENABLED"`
	GoogleClientIDs      []string `env:"GOOGLE_CLIENT_IDS" envSeparator:","`
	GoogleAllowedDomains []string `env:"GOOGLE_ALLOWED_DOMAINS" envSeparator:","`
	GoogleAutoCreate     bool     `env:"GOOGLE_AUTO_CREATE_USERS" envDefault:"true"`
}

var ErrGoogleAuthConfig = errors.New("google auth misconfigured")

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.GoogleClientIDs = cleanList(cfg.GoogleClientIDs)
	cfg.GoogleAllowedDomains = cleanList(cfg.GoogleAllowedDomains)
	return &cfg, nil
}

// GoogleAuthActive indica si el proveedor federado está activo.
// Sin flag explícito, una lista de client ids no vacía implica activo.
func (c *Config) GoogleAuthActive() bool {
	if c.GoogleAuthEnabled != nil {
		return *c.GoogleAuthEnabled
	}
	return len(c.GoogleClientIDs) > 0
}

// ValidateGoogleAuth falla cerrado: el proveedor activo exige
// audiencias y dominios permitidos no vacíos.
func (c *Config) ValidateGoogleAuth() error {
	if !c.GoogleAuthActive() {
		return nil
	}
	if len(c.GoogleClientIDs) == 0 || len(c.GoogleAllowedDomains) == 0 {
		return ErrGoogleAuthConfig
	}
	return nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
