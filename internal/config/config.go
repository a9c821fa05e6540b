package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort            string        `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	RedisAddr           string        `env:"REDIS_ADDR"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB" envDefault:"0"`
	RedisChannel        string        `env:"REDIS_CHANNEL" envDefault:"chatfeed:events"`
	JWTSecret           string        `env:"JWT_SECRET"`
	JWTAccessTTLMinutes int           `env:"JWT_ACCESS_TTL_MINUTES" envDefault:"60"`
	TypingTimeout       time.Duration `env:"TYPING_TIMEOUT" envDefault:"3s"`
	TypingSweepInterval time.Duration `env:"TYPING_SWEEP_INTERVAL" envDefault:"3s"`
	BusInboxSize        int           `env:"BUS_INBOX_SIZE" envDefault:"64"`
	PageSizeDefault     int           `env:"PAGE_SIZE_DEFAULT" envDefault:"10"`
	PageSizeMax         int           `env:"PAGE_SIZE_MAX" envDefault:"100"`
	MessageMaxLength    int           `env:"MESSAGE_MAX_LENGTH" envDefault:"2000"`
	PostRateLimit       int           `env:"POST_RATE_LIMIT" envDefault:"5"`
	PostRateWindow      time.Duration `env:"POST_RATE_WINDOW" envDefault:"3s"`
}

// ClientConfig es lo que necesita el visor de terminal.
type ClientConfig struct {
	ServerURL string `env:"CHATFEED_SERVER" envDefault:"http://localhost:8080"`
	Token     string `env:"CHATFEED_TOKEN"`
	PageSize  int    `env:"CHATFEED_PAGE_SIZE" envDefault:"20"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClientConfig carga la configuración del cliente desde variables de entorno.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
