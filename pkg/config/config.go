package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		Tiles     Tiles     `envPrefix:"TILES_"`
		Image     Image     `envPrefix:"IMAGE_"`
		Fetch     Fetch     `envPrefix:"FETCH_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
	}

	Tiles struct {
		URLTemplate string `env:"URL_TEMPLATE,required" validate:"required,contains={zoom},contains={x},contains={y}"`
		MaxZoom     int    `env:"MAX_ZOOM,required" validate:"gte=0"`
		Size        int    `env:"SIZE" envDefault:"256" validate:"gt=0"`
		Overlap     int    `env:"OVERLAP" envDefault:"0" validate:"gte=0,ltfield=Size"`
		Extension   string `env:"EXTENSION" envDefault:"jpg" validate:"required,alphanum"`
	}

	Image struct {
		Width      int    `env:"WIDTH,required" validate:"gt=0"`
		Height     int    `env:"HEIGHT,required" validate:"gt=0"`
		Output     string `env:"OUTPUT"`
		Background string `env:"BACKGROUND" envDefault:"#ffffff" validate:"hexcolor,len=4|len=7"`
	}

	Fetch struct {
		Workers    int           `env:"WORKERS" envDefault:"50" validate:"gt=0"`
		Retries    int           `env:"RETRIES" envDefault:"3" validate:"gte=1"`
		Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s" validate:"gt=0"`
		RetryDelay time.Duration `env:"RETRY_DELAY" envDefault:"0s" validate:"gte=0"`
		UserAgent  string        `env:"USER_AGENT" envDefault:"download-image-from-tiles/1.0"`
		Referer    string        `env:"REFERER"`
	}

	Cache struct {
		Backend    string `env:"BACKEND" envDefault:"filesystem" validate:"oneof=filesystem sqlite redis memory"`
		Dir        string `env:"DIR" envDefault:"tiles" validate:"required"`
		SQLitePath string `env:"SQLITE_PATH" envDefault:"tiles.db"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"0s"`
	}

	HTTP struct {
		Server Server `envPrefix:"SERVER_"`
	}

	Server struct {
		Enabled      bool          `env:"ENABLED" envDefault:"false"`
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level string `env:"LEVEL" envDefault:"info"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"download-image-from-tiles"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"development"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	if cfg.Image.Output == "" {
		cfg.Image.Output = fmt.Sprintf("stitched_map_zoom%d.jpg", cfg.Tiles.MaxZoom)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
