package history_api_config

import (
	"time"

	pginfra "github.com/NordCoder/Courier/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
	Region  string `mapstructure:"region"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" validate:"gt=0"`
}

type OTEL struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"otlp_endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type History struct {
	Retention time.Duration `mapstructure:"retention" validate:"gt=0"`
}

type Config struct {
	App     App            `mapstructure:"app"`
	Server  Server         `mapstructure:"server"`
	DB      pginfra.Config `mapstructure:"db"`
	OTEL    OTEL           `mapstructure:"otel"`
	Log     Log            `mapstructure:"log"`
	History History        `mapstructure:"history"`
}
